// Package ethernet provides the mechanical wire-format encode/decode for
// Ethernet II frames carried over a NetworkInterface's link.
package ethernet

import (
	"errors"
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// EtherType identifies the payload carried by a frame.
type EtherType uint16

const (
	TypeIPv4 EtherType = EtherType(layers.EthernetTypeIPv4)
	TypeARP  EtherType = EtherType(layers.EthernetTypeARP)
)

// BroadcastAddr is the all-ones Ethernet broadcast address.
var BroadcastAddr = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ErrMalformed is returned when a byte slice cannot be parsed as an
// Ethernet II frame.
var ErrMalformed = errors.New("ethernet: malformed frame")

// Frame is a decoded Ethernet II frame.
type Frame struct {
	Dst       [6]byte
	Src       [6]byte
	EtherType EtherType
	Payload   []byte
}

// Encode serializes f into wire bytes.
func (f Frame) Encode() ([]byte, error) {
	eth := layers.Ethernet{
		DstMAC:       net.HardwareAddr(f.Dst[:]),
		SrcMAC:       net.HardwareAddr(f.Src[:]),
		EthernetType: layers.EthernetType(f.EtherType),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, gopacket.Payload(f.Payload)); err != nil {
		return nil, fmt.Errorf("ethernet: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses data as an Ethernet II frame.
func Decode(data []byte) (Frame, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	layer := pkt.Layer(layers.LayerTypeEthernet)
	if layer == nil {
		return Frame{}, ErrMalformed
	}
	eth, ok := layer.(*layers.Ethernet)
	if !ok || len(eth.DstMAC) != 6 || len(eth.SrcMAC) != 6 {
		return Frame{}, ErrMalformed
	}

	var f Frame
	copy(f.Dst[:], eth.DstMAC)
	copy(f.Src[:], eth.SrcMAC)
	f.EtherType = EtherType(eth.EthernetType)
	f.Payload = append([]byte(nil), eth.Payload...)
	return f, nil
}
