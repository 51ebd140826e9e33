package tcp

import (
	"errors"
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/netlace/tcpstack/internal/wrap32"
)

// ErrMalformed is returned when a byte slice cannot be parsed as a TCP
// segment.
var ErrMalformed = errors.New("tcp: malformed segment")

// WireSegment is a complete on-the-wire TCP segment: one side's outgoing
// data (seqno/SYN/payload/FIN/RST) piggybacked, as real TCP does, with
// that same side's acknowledgement of the other direction (ackno/window).
type WireSegment struct {
	SrcPort, DstPort uint16

	SeqNo   wrap32.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
	RST     bool

	AckNo  wrap32.Wrap32
	HasAck bool
	Window uint16
}

// Encode serializes seg into wire bytes, computing the TCP checksum over
// the IPv4 pseudo-header formed from src and dst.
func (seg WireSegment) Encode(src, dst [4]byte) ([]byte, error) {
	t := layers.TCP{
		SrcPort:    layers.TCPPort(seg.SrcPort),
		DstPort:    layers.TCPPort(seg.DstPort),
		Seq:        seg.SeqNo.Raw(),
		SYN:        seg.SYN,
		FIN:        seg.FIN,
		RST:        seg.RST,
		ACK:        seg.HasAck,
		Window:     seg.Window,
		DataOffset: 5,
	}
	if seg.HasAck {
		t.Ack = seg.AckNo.Raw()
	}

	pseudoHeader := &layers.IPv4{
		SrcIP:    net.IP(src[:]),
		DstIP:    net.IP(dst[:]),
		Protocol: layers.IPProtocolTCP,
	}
	if err := t.SetNetworkLayerForChecksum(pseudoHeader); err != nil {
		return nil, fmt.Errorf("tcp: checksum setup: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &t, gopacket.Payload(seg.Payload)); err != nil {
		return nil, fmt.Errorf("tcp: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWireSegment parses data as a TCP segment.
func DecodeWireSegment(data []byte) (WireSegment, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeTCP, gopacket.NoCopy)
	layer := pkt.Layer(layers.LayerTypeTCP)
	if layer == nil {
		return WireSegment{}, ErrMalformed
	}
	t, ok := layer.(*layers.TCP)
	if !ok {
		return WireSegment{}, ErrMalformed
	}

	seg := WireSegment{
		SrcPort: uint16(t.SrcPort),
		DstPort: uint16(t.DstPort),
		SeqNo:   wrap32.New(t.Seq),
		SYN:     t.SYN,
		FIN:     t.FIN,
		RST:     t.RST,
		HasAck:  t.ACK,
		Window:  t.Window,
		Payload: append([]byte(nil), t.Payload...),
	}
	if t.ACK {
		seg.AckNo = wrap32.New(t.Ack)
	}
	return seg, nil
}

// ToSenderMessage extracts this segment's outgoing-data half.
func (seg WireSegment) ToSenderMessage() SenderMessage {
	return SenderMessage{SeqNo: seg.SeqNo, SYN: seg.SYN, Payload: seg.Payload, FIN: seg.FIN, RST: seg.RST}
}

// ToReceiverMessage extracts this segment's acknowledgement half.
func (seg WireSegment) ToReceiverMessage() ReceiverMessage {
	return ReceiverMessage{Ackno: seg.AckNo, HasAckno: seg.HasAck, WindowSize: seg.Window, RST: seg.RST}
}
