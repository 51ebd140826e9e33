package conn

import (
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/netlace/tcpstack/internal/tcp"
	"github.com/netlace/tcpstack/internal/wrap32"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestDirectLoopback_HandshakeAndDataTransfer(t *testing.T) {
	cfg := tcp.Config{MaxPayloadSize: 1000, InitialRTOMs: 1000}
	a := New(discardLogger(), wrap32.New(1000), cfg, 5000, 80, nil)
	b := New(discardLogger(), wrap32.New(2000), cfg, 80, 5000, nil)
	DirectLoopback(a, b)

	a.Open()
	require.False(t, a.HasError())

	n, err := a.Write([]byte("GET / HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)
	require.Equal(t, 18, n)
	a.CloseWrite()

	buf := make([]byte, 256)
	total := 0
	for i := 0; i < 10 && !b.IsFinished(); i++ {
		n, _ := b.Read(buf[total:])
		total += n
	}
	require.Equal(t, "GET / HTTP/1.0\r\n\r\n", string(buf[:total]))
	require.True(t, b.IsFinished())
}

func TestNetworkLoopback_DeliversAcrossRouter(t *testing.T) {
	macA := [6]byte{1}
	macRA := [6]byte{2}
	macRB := [6]byte{3}
	macB := [6]byte{4}
	ipA := netip.MustParseAddr("10.0.0.2")
	ipRA := netip.MustParseAddr("10.0.0.1")
	ipRB := netip.MustParseAddr("10.0.1.1")
	ipB := netip.MustParseAddr("10.0.1.2")
	subnetA := netip.MustParsePrefix("10.0.0.0/24")
	subnetB := netip.MustParsePrefix("10.0.1.0/24")

	medium := NewNetworkLoopback(macA, macRA, macRB, macB, ipA, ipRA, ipRB, ipB, subnetA, subnetB)

	cfg := tcp.Config{MaxPayloadSize: 1000, InitialRTOMs: 1000}
	transportA := TransportFor(medium.IfaceA, ipA, ipB, ipRA)
	transportB := TransportFor(medium.IfaceB, ipB, ipA, ipRB)

	peerA := New(discardLogger(), wrap32.New(10), cfg, 5000, 80, transportA)
	peerB := New(discardLogger(), wrap32.New(20), cfg, 80, 5000, transportB)

	peerA.Open()
	for i := 0; i < 20; i++ {
		medium.Pump(peerA, peerB)
	}

	peerA.Write([]byte("hi"))
	for i := 0; i < 20; i++ {
		medium.Pump(peerA, peerB)
	}

	buf := make([]byte, 16)
	n, _ := peerB.Read(buf)
	require.Equal(t, "hi", string(buf[:n]))
}
