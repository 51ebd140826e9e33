// Package arp provides the mechanical wire-format encode/decode for IPv4
// Address Resolution Protocol messages.
package arp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Opcode identifies whether a message is a request or a reply.
type Opcode uint16

const (
	OpRequest Opcode = Opcode(layers.ARPRequest)
	OpReply   Opcode = Opcode(layers.ARPReply)
)

// ErrMalformed is returned when a byte slice cannot be parsed as an IPv4
// ARP message.
var ErrMalformed = errors.New("arp: malformed message")

// Message is a decoded Ethernet/IPv4 ARP message.
type Message struct {
	Opcode     Opcode
	SenderMAC  [6]byte
	SenderIP   netip.Addr
	TargetMAC  [6]byte
	TargetIP   netip.Addr
}

// Encode serializes m into wire bytes (the ARP payload only, not an
// enclosing Ethernet frame).
func (m Message) Encode() ([]byte, error) {
	senderIP := m.SenderIP.As4()
	targetIP := m.TargetIP.As4()

	layer := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         uint16(m.Opcode),
		SourceHwAddress:   m.SenderMAC[:],
		SourceProtAddress: senderIP[:],
		DstHwAddress:      m.TargetMAC[:],
		DstProtAddress:    targetIP[:],
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &layer); err != nil {
		return nil, fmt.Errorf("arp: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses data as an IPv4 ARP message.
func Decode(data []byte) (Message, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeARP, gopacket.NoCopy)
	layer := pkt.Layer(layers.LayerTypeARP)
	if layer == nil {
		return Message{}, ErrMalformed
	}
	a, ok := layer.(*layers.ARP)
	if !ok || len(a.SourceHwAddress) != 6 || len(a.DstHwAddress) != 6 ||
		len(a.SourceProtAddress) != 4 || len(a.DstProtAddress) != 4 {
		return Message{}, ErrMalformed
	}

	var m Message
	m.Opcode = Opcode(a.Operation)
	copy(m.SenderMAC[:], a.SourceHwAddress)
	copy(m.TargetMAC[:], a.DstHwAddress)
	m.SenderIP = netip.AddrFrom4([4]byte(a.SourceProtAddress))
	m.TargetIP = netip.AddrFrom4([4]byte(a.DstProtAddress))
	return m, nil
}

// HardwareAddr returns a net.HardwareAddr view of a 6-byte MAC array, for
// interop with code expecting the standard library type.
func HardwareAddr(mac [6]byte) net.HardwareAddr { return net.HardwareAddr(mac[:]) }
