// Package link implements NetworkInterface: the ARP-resolving bridge
// between IPv4 datagrams and the Ethernet frames that carry them.
package link

import (
	"net/netip"

	"github.com/netlace/tcpstack/internal/arp"
	"github.com/netlace/tcpstack/internal/ethernet"
	"github.com/netlace/tcpstack/internal/ipv4"
	"github.com/netlace/tcpstack/internal/netmetrics"
)

// DefaultCacheTimeoutMs is how long a learned IP-to-MAC mapping stays
// valid before it must be re-resolved.
const DefaultCacheTimeoutMs = 30_000

// DefaultARPRetryMs is the minimum interval between repeated ARP
// requests for the same unresolved address.
const DefaultARPRetryMs = 5_000

// DefaultDropTimeoutMs is how long a datagram may wait on ARP resolution
// before it is dropped.
const DefaultDropTimeoutMs = 5_000

type cacheEntry struct {
	mac     [6]byte
	learned uint64 // interface clock time the mapping was learned
}

// Interface is a single network-layer-to-link-layer adapter: it owns one
// Ethernet address and one IPv4 address, and translates outgoing
// datagrams into frames (resolving destinations via ARP as needed) and
// incoming frames into datagrams.
type Interface struct {
	mac [6]byte
	ip  netip.Addr

	cacheTimeoutMs uint64
	arpRetryMs     uint64
	dropTimeoutMs  uint64

	cache         map[netip.Addr]cacheEntry
	waiting       map[netip.Addr][]ipv4.Datagram
	waitingSince  map[netip.Addr]uint64
	lastRequest   map[netip.Addr]uint64
	nowMs         uint64

	label string

	outbound []ethernet.Frame
	received []ipv4.Datagram
}

// NewInterface constructs an Interface with the given hardware and
// protocol addresses.
func NewInterface(mac [6]byte, ip netip.Addr) *Interface {
	return &Interface{
		mac:            mac,
		ip:             ip,
		cacheTimeoutMs: DefaultCacheTimeoutMs,
		arpRetryMs:     DefaultARPRetryMs,
		dropTimeoutMs:  DefaultDropTimeoutMs,
		cache:          make(map[netip.Addr]cacheEntry),
		waiting:        make(map[netip.Addr][]ipv4.Datagram),
		waitingSince:   make(map[netip.Addr]uint64),
		lastRequest:    make(map[netip.Addr]uint64),
	}
}

// MAC returns this interface's hardware address.
func (n *Interface) MAC() [6]byte { return n.mac }

// IP returns this interface's protocol address.
func (n *Interface) IP() netip.Addr { return n.ip }

// WithLabel sets the identifier this interface reports itself as in
// Prometheus metrics, returning n for chaining at construction time.
func (n *Interface) WithLabel(label string) *Interface {
	n.label = label
	return n
}

// SendDatagram queues dgram for delivery to nextHop, resolving nextHop's
// MAC address via ARP first if it is not already cached.
func (n *Interface) SendDatagram(dgram ipv4.Datagram, nextHop netip.Addr) {
	if entry, ok := n.cache[nextHop]; ok {
		n.emitIPv4(entry.mac, dgram)
		return
	}

	if _, queued := n.waitingSince[nextHop]; !queued {
		n.waitingSince[nextHop] = n.nowMs
	}
	n.waiting[nextHop] = append(n.waiting[nextHop], dgram)

	last, asked := n.lastRequest[nextHop]
	if asked && n.nowMs-last < n.arpRetryMs {
		return
	}
	n.lastRequest[nextHop] = n.nowMs

	req := arp.Message{
		Opcode:    arp.OpRequest,
		SenderMAC: n.mac,
		SenderIP:  n.ip,
		TargetMAC: [6]byte{},
		TargetIP:  nextHop,
	}
	payload, err := req.Encode()
	if err != nil {
		return
	}
	n.outbound = append(n.outbound, ethernet.Frame{
		Dst:       ethernet.BroadcastAddr,
		Src:       n.mac,
		EtherType: ethernet.TypeARP,
		Payload:   payload,
	})
}

// RecvFrame processes one incoming Ethernet frame, dropping anything
// malformed or not addressed to us silently (link-layer errors never
// propagate).
func (n *Interface) RecvFrame(raw []byte) {
	frame, err := ethernet.Decode(raw)
	if err != nil {
		return
	}
	if frame.Dst != n.mac && frame.Dst != ethernet.BroadcastAddr {
		return
	}

	switch frame.EtherType {
	case ethernet.TypeIPv4:
		dgram, err := ipv4.Decode(frame.Payload)
		if err != nil {
			return
		}
		n.received = append(n.received, dgram)

	case ethernet.TypeARP:
		msg, err := arp.Decode(frame.Payload)
		if err != nil {
			return
		}
		n.learn(msg.SenderIP, msg.SenderMAC)

		switch msg.Opcode {
		case arp.OpRequest:
			if msg.TargetIP != n.ip {
				return
			}
			reply := arp.Message{
				Opcode:    arp.OpReply,
				SenderMAC: n.mac,
				SenderIP:  n.ip,
				TargetMAC: msg.SenderMAC,
				TargetIP:  msg.SenderIP,
			}
			payload, err := reply.Encode()
			if err != nil {
				return
			}
			n.outbound = append(n.outbound, ethernet.Frame{
				Dst:       msg.SenderMAC,
				Src:       n.mac,
				EtherType: ethernet.TypeARP,
				Payload:   payload,
			})

		case arp.OpReply:
			n.flushWaiting(msg.SenderIP, msg.SenderMAC)
		}
	}
}

func (n *Interface) learn(ip netip.Addr, mac [6]byte) {
	n.cache[ip] = cacheEntry{mac: mac, learned: n.nowMs}
}

func (n *Interface) flushWaiting(ip netip.Addr, mac [6]byte) {
	queued := n.waiting[ip]
	since, hadSince := n.waitingSince[ip]
	delete(n.waiting, ip)
	delete(n.waitingSince, ip)
	delete(n.lastRequest, ip)

	if hadSince && n.nowMs-since >= n.dropTimeoutMs {
		if len(queued) > 0 {
			netmetrics.PendingDatagramsDropped.WithLabelValues(n.label).Add(float64(len(queued)))
		}
		return
	}

	for _, dgram := range queued {
		n.emitIPv4(mac, dgram)
	}
}

func (n *Interface) emitIPv4(dstMAC [6]byte, dgram ipv4.Datagram) {
	payload, err := dgram.Encode()
	if err != nil {
		return
	}
	n.outbound = append(n.outbound, ethernet.Frame{
		Dst:       dstMAC,
		Src:       n.mac,
		EtherType: ethernet.TypeIPv4,
		Payload:   payload,
	})
}

// Tick advances the interface's internal clock by ms milliseconds,
// expiring stale ARP cache entries and dropping datagrams that have
// waited too long on a resolution that never arrived.
func (n *Interface) Tick(ms uint64) {
	n.nowMs += ms
	for ip, entry := range n.cache {
		if n.nowMs-entry.learned >= n.cacheTimeoutMs {
			delete(n.cache, ip)
		}
	}

	for ip, since := range n.waitingSince {
		if n.nowMs-since < n.dropTimeoutMs {
			continue
		}
		dropped := len(n.waiting[ip])
		delete(n.waiting, ip)
		delete(n.waitingSince, ip)
		delete(n.lastRequest, ip)
		if dropped > 0 {
			netmetrics.PendingDatagramsDropped.WithLabelValues(n.label).Add(float64(dropped))
		}
	}

	netmetrics.ARPCacheSize.WithLabelValues(n.label).Set(float64(len(n.cache)))
}

// Drain returns and clears every frame queued for transmission.
func (n *Interface) Drain() []ethernet.Frame {
	out := n.outbound
	n.outbound = nil
	return out
}

// DrainReceived returns and clears every IPv4 datagram received so far.
func (n *Interface) DrainReceived() []ipv4.Datagram {
	out := n.received
	n.received = nil
	return out
}
