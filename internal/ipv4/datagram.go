// Package ipv4 provides the mechanical wire-format encode/decode for IPv4
// datagrams, including the TTL decrement and checksum recomputation a
// Router performs on every forwarded datagram.
package ipv4

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// ErrMalformed is returned when a byte slice cannot be parsed as an IPv4
// datagram.
var ErrMalformed = errors.New("ipv4: malformed datagram")

// ErrTTLExpired is returned by Datagram.DecrementTTL when a datagram's TTL
// has already reached zero and cannot be forwarded.
var ErrTTLExpired = errors.New("ipv4: ttl expired")

// Datagram is a decoded IPv4 datagram. Options are not supported.
type Datagram struct {
	TTL      uint8
	Protocol uint8
	Src      netip.Addr
	Dst      netip.Addr
	Payload  []byte
}

// DecrementTTL reduces the datagram's TTL by one, returning ErrTTLExpired
// (without modifying TTL) if it was already zero.
func (d *Datagram) DecrementTTL() error {
	if d.TTL == 0 {
		return ErrTTLExpired
	}
	d.TTL--
	return nil
}

// Encode serializes d into wire bytes. Checksums are always recomputed,
// so callers never need a separate recompute step after DecrementTTL.
func (d Datagram) Encode() ([]byte, error) {
	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      d.TTL,
		Protocol: layers.IPProtocol(d.Protocol),
		SrcIP:    d.Src.AsSlice(),
		DstIP:    d.Dst.AsSlice(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &ip, gopacket.Payload(d.Payload)); err != nil {
		return nil, fmt.Errorf("ipv4: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses data as an IPv4 datagram.
func Decode(data []byte) (Datagram, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.NoCopy)
	layer := pkt.Layer(layers.LayerTypeIPv4)
	if layer == nil {
		return Datagram{}, ErrMalformed
	}
	ip, ok := layer.(*layers.IPv4)
	if !ok {
		return Datagram{}, ErrMalformed
	}

	src, ok := netip.AddrFromSlice(ip.SrcIP)
	if !ok {
		return Datagram{}, ErrMalformed
	}
	dst, ok := netip.AddrFromSlice(ip.DstIP)
	if !ok {
		return Datagram{}, ErrMalformed
	}

	return Datagram{
		TTL:      ip.TTL,
		Protocol: uint8(ip.Protocol),
		Src:      src.Unmap(),
		Dst:      dst.Unmap(),
		Payload:  append([]byte(nil), ip.Payload...),
	}, nil
}
