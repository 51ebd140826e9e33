package conn

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/netlace/tcpstack/internal/link"
)

// PacketConnMedium tunnels an Interface's Ethernet frames over a
// net.PacketConn (in practice a UDP socket), the Go-idiomatic stand-in
// for the lab's TUN/TAP-backed network: it exercises a real OS socket
// without requiring a TAP device or elevated privileges.
type PacketConnMedium struct {
	log   *slog.Logger
	pc    net.PacketConn
	peer  net.Addr
	iface *link.Interface

	wg      sync.WaitGroup
	running atomic.Bool
	cancel  context.CancelFunc
}

// NewPacketConnMedium builds a medium that carries iface's frames to and
// from peerAddr over pc.
func NewPacketConnMedium(log *slog.Logger, pc net.PacketConn, peerAddr net.Addr, iface *link.Interface) *PacketConnMedium {
	return &PacketConnMedium{log: log, pc: pc, peer: peerAddr, iface: iface}
}

// Start launches the receive loop (reading frames off the wire into the
// interface) and returns immediately; the caller drives transmission by
// calling Flush after whatever operation produced outbound frames.
func (m *PacketConnMedium) Start(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		buf := make([]byte, 65535)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, _, err := m.pc.ReadFrom(buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.log.Warn("packetconn medium: read error", "error", err)
				continue
			}
			m.iface.RecvFrame(buf[:n])
		}
	}()
}

// Flush writes every frame currently queued on the interface out to the
// peer address.
func (m *PacketConnMedium) Flush() {
	for _, f := range m.iface.Drain() {
		raw, err := f.Encode()
		if err != nil {
			continue
		}
		if _, err := m.pc.WriteTo(raw, m.peer); err != nil {
			m.log.Warn("packetconn medium: write error", "error", err)
		}
	}
}

// Stop cancels the receive loop and waits for it to exit.
func (m *PacketConnMedium) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	_ = m.pc.Close()
	m.wg.Wait()
	m.running.Store(false)
}
