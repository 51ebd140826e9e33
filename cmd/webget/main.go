// Command webget fetches a path from a host over this module's own
// user-space TCP/IP stack, end to end: ARP, Ethernet, IPv4, and TCP, all
// running in a simulated two-subnet network inside this process. There
// is no real NIC or TAP device involved (see SPEC_FULL.md §3); it
// demonstrates the stack the way the lab's TUN/TAP-backed webget
// demonstrated the original.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netlace/tcpstack/internal/conn"
	"github.com/netlace/tcpstack/internal/config"
	"github.com/netlace/tcpstack/internal/logging"
	"github.com/netlace/tcpstack/internal/wrap32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.FromFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New(cfg.Verbose, false)
	slog.SetDefault(log)

	if cfg.MetricsOn {
		startMetricsServer(log, cfg.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	body, err := fetch(ctx, log, cfg)
	if err != nil {
		log.Error("webget: fetch failed", "host", cfg.Host, "path", cfg.Path, "error", err)
		os.Exit(1)
	}
	os.Stdout.Write(body)
}

func startMetricsServer(log *slog.Logger, addr string) {
	buildInfo := promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcpstack_build_info",
			Help: "Build information for the webget binary",
		},
		[]string{"version", "commit"},
	)
	buildInfo.WithLabelValues(version, commit).Set(1)

	go func() {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			log.Error("webget: failed to start metrics listener", "error", err)
			return
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("webget: metrics server started", "address", listener.Addr().String())
		if err := http.Serve(listener, mux); err != nil {
			log.Error("webget: metrics server exited", "error", err)
		}
	}()
}

// fetch brings up a simulated two-subnet network (client + origin
// server, joined by a router), performs the handshake and HTTP GET over
// this module's own TCP/IP stack, and returns the whole response as
// received (status line, headers and body).
func fetch(ctx context.Context, log *slog.Logger, cfg config.Config) ([]byte, error) {
	macClient := [6]byte{0x02, 0, 0, 0, 0, 1}
	macRouterA := [6]byte{0x02, 0, 0, 0, 0, 2}
	macRouterB := [6]byte{0x02, 0, 0, 0, 0, 3}
	macServer := [6]byte{0x02, 0, 0, 0, 0, 4}

	ipClient := netip.MustParseAddr("10.0.0.2")
	ipRouterA := netip.MustParseAddr("10.0.0.1")
	ipRouterB := netip.MustParseAddr("10.0.1.1")
	ipServer := netip.MustParseAddr("10.0.1.2")
	subnetA := netip.MustParsePrefix("10.0.0.0/24")
	subnetB := netip.MustParsePrefix("10.0.1.0/24")

	medium := conn.NewNetworkLoopback(macClient, macRouterA, macRouterB, macServer, ipClient, ipRouterA, ipRouterB, ipServer, subnetA, subnetB)

	tcpCfg := cfg.TCPConfig()
	clientTransport := conn.TransportFor(medium.IfaceA, ipClient, ipServer, ipRouterA)
	serverTransport := conn.TransportFor(medium.IfaceB, ipServer, ipClient, ipRouterB)

	const clientPort, serverPort = 49152, 80

	server := conn.New(log, wrap32.New(0x9000), tcpCfg, serverPort, clientPort, serverTransport)
	server.Start(ctx)
	defer server.Stop()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go serveOrigin(server)

	client, err := conn.Dial(ctx, log, cfg.Host+cfg.Path, func() *conn.Peer {
		return conn.New(log, wrap32.New(0x1000), tcpCfg, clientPort, serverPort, clientTransport)
	}, func(ctx context.Context, peer *conn.Peer) error {
		return waitHandshake(ctx, medium, peer, server)
	})
	if err != nil {
		return nil, fmt.Errorf("webget: dial: %w", err)
	}
	defer client.Stop()

	go medium.Run(runCtx, client, server, 5*time.Millisecond)

	request := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", cfg.Path, cfg.Host)
	if _, err := client.Write([]byte(request)); err != nil {
		return nil, fmt.Errorf("webget: write request: %w", err)
	}
	client.CloseWrite()

	return readAll(ctx, client)
}

// waitHandshake blocks (pumping the network itself, since no other
// goroutine is driving it yet during bring-up) until the client's SYN has
// been acknowledged.
func waitHandshake(ctx context.Context, medium *conn.NetworkLoopback, client, server *conn.Peer) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		medium.Tick(5)
		medium.Pump(client, server)
		if client.HasError() {
			return fmt.Errorf("webget: connection reset during handshake")
		}
		if client.IsEstablished() {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("webget: handshake timed out")
}

// serveOrigin is the simulated HTTP server on the far side of the
// router: it waits for a full request, then responds with a canned page
// and closes its write side.
func serveOrigin(server *conn.Peer) {
	buf := make([]byte, 4096)
	for !server.IsFinished() {
		server.Read(buf)
		time.Sleep(5 * time.Millisecond)
	}

	body := "<html><body>It works.</body></html>"
	response := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s", len(body), body)
	server.Write([]byte(response))
	server.CloseWrite()
}

func readAll(ctx context.Context, peer *conn.Peer) ([]byte, error) {
	buf := make([]byte, 4096)
	var out []byte
	for !peer.IsFinished() {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		n, err := peer.Read(buf)
		if err != nil {
			return out, err
		}
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}
