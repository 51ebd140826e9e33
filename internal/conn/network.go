package conn

import (
	"context"
	"net/netip"
	"time"

	"github.com/netlace/tcpstack/internal/ipv4"
	"github.com/netlace/tcpstack/internal/link"
	"github.com/netlace/tcpstack/internal/router"
	"github.com/netlace/tcpstack/internal/tcp"
)

// directLink wires a Peer's Transmitter straight to another Peer's
// Deliver, as a function call: no goroutines, no framing, just the
// synchronous core talking to itself through the shortest possible path.
type directLink struct {
	to *Peer
}

func (d *directLink) Transmit(seg tcp.WireSegment) { d.to.Deliver(seg) }

// DirectLoopback wires two freshly constructed Peers directly together,
// bypassing NetworkInterface/Router entirely. Used by tests where only
// the TCP core, not the link layer, needs exercising.
func DirectLoopback(a, b *Peer) {
	a.transport = &directLink{to: b}
	b.transport = &directLink{to: a}
}

// NetworkTransport carries a Peer's wire segments through a
// NetworkInterface, addressed to dstIP via nextHop (the directly
// reachable neighbor that will forward, or resolve, the datagram).
type NetworkTransport struct {
	Iface   *link.Interface
	SrcIP   netip.Addr
	DstIP   netip.Addr
	NextHop netip.Addr
}

// Transmit encapsulates seg as an IPv4/TCP datagram and hands it to the
// underlying interface for ARP-resolved delivery.
func (t *NetworkTransport) Transmit(seg tcp.WireSegment) {
	src4, dst4 := t.SrcIP.As4(), t.DstIP.As4()
	payload, err := seg.Encode(src4, dst4)
	if err != nil {
		return
	}
	dgram := ipv4.Datagram{TTL: 64, Protocol: 6, Src: t.SrcIP, Dst: t.DstIP, Payload: payload}
	t.Iface.SendDatagram(dgram, t.NextHop)
}

// NetworkLoopback is the full-fidelity demo/test medium: two peers, each
// on its own subnet, connected through a Router — exercising ARP,
// Ethernet framing, IPv4 forwarding, and TCP end to end, entirely
// in-process with no real sockets.
type NetworkLoopback struct {
	IfaceA, RouterIfaceA *link.Interface
	RouterIfaceB, IfaceB *link.Interface
	Router               *router.Router
}

// NewNetworkLoopback wires up the two-subnet, router-in-the-middle
// topology and installs the routes each side needs to reach the other.
func NewNetworkLoopback(
	macPeerA, macRouterA, macRouterB, macPeerB [6]byte,
	ipPeerA, ipRouterA, ipRouterB, ipPeerB netip.Addr,
	subnetA, subnetB netip.Prefix,
) *NetworkLoopback {
	ifaceA := link.NewInterface(macPeerA, ipPeerA).WithLabel("peerA")
	routerA := link.NewInterface(macRouterA, ipRouterA).WithLabel("router-a")
	routerB := link.NewInterface(macRouterB, ipRouterB).WithLabel("router-b")
	ifaceB := link.NewInterface(macPeerB, ipPeerB).WithLabel("peerB")

	r := router.New().WithLabel("demo")
	idxA := r.AddInterface(routerA)
	idxB := r.AddInterface(routerB)
	r.AddRoute(subnetA, nil, idxA)
	r.AddRoute(subnetB, nil, idxB)

	return &NetworkLoopback{
		IfaceA:       ifaceA,
		RouterIfaceA: routerA,
		RouterIfaceB: routerB,
		IfaceB:       ifaceB,
		Router:       r,
	}
}

// TransportFor builds the NetworkTransport a Peer on ifaceSide should use
// to reach dstIP via nextHop (its router, or the other peer directly if
// on the same subnet).
func TransportFor(iface *link.Interface, srcIP, dstIP, nextHop netip.Addr) *NetworkTransport {
	return &NetworkTransport{Iface: iface, SrcIP: srcIP, DstIP: dstIP, NextHop: nextHop}
}

// Pump moves one round of frames across both simulated wires, runs the
// router, and delivers any arrived TCP segments to the given peers.
func (m *NetworkLoopback) Pump(peerA, peerB *Peer) {
	wireFrames(m.IfaceA, m.RouterIfaceA)
	wireFrames(m.RouterIfaceB, m.IfaceB)

	m.Router.Route()

	wireFrames(m.IfaceA, m.RouterIfaceA)
	wireFrames(m.RouterIfaceB, m.IfaceB)

	deliverTCP(m.IfaceA, peerA)
	deliverTCP(m.IfaceB, peerB)
}

// Tick advances every interface's clock, aging ARP cache entries.
func (m *NetworkLoopback) Tick(ms uint64) {
	m.IfaceA.Tick(ms)
	m.RouterIfaceA.Tick(ms)
	m.RouterIfaceB.Tick(ms)
	m.IfaceB.Tick(ms)
}

// Run drives Pump and Tick on interval until ctx is canceled, the way a
// real NIC's interrupt handler and a hardware clock would in an OS that
// actually owned these interfaces.
func (m *NetworkLoopback) Run(ctx context.Context, peerA, peerB *Peer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(uint64(interval / time.Millisecond))
			m.Pump(peerA, peerB)
		}
	}
}

// wireFrames moves every frame queued on a to b and vice versa, as a
// direct point-to-point Ethernet cable would.
func wireFrames(a, b *link.Interface) {
	for _, f := range a.Drain() {
		if raw, err := f.Encode(); err == nil {
			b.RecvFrame(raw)
		}
	}
	for _, f := range b.Drain() {
		if raw, err := f.Encode(); err == nil {
			a.RecvFrame(raw)
		}
	}
}

func deliverTCP(iface *link.Interface, peer *Peer) {
	for _, dgram := range iface.DrainReceived() {
		if dgram.Protocol != 6 {
			continue
		}
		seg, err := tcp.DecodeWireSegment(dgram.Payload)
		if err != nil {
			continue
		}
		peer.Deliver(seg)
	}
}
