// Package tcp implements the receiver and sender halves of a minimal TCP
// state machine: segmentation, acknowledgement, flow control, and
// retransmission, independent of any wire serialization or socket API.
package tcp

import "github.com/netlace/tcpstack/internal/wrap32"

// SenderMessage is what a TCPSender hands to its peer: an optional SYN,
// a payload, an optional FIN, and the sequence number it starts at.
type SenderMessage struct {
	SeqNo   wrap32.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool

	// RST, when set, tells the peer to abort the connection immediately.
	RST bool
}

// SequenceLength returns the number of sequence numbers this message
// occupies (SYN and FIN each count once, payload counts its length).
func (m SenderMessage) SequenceLength() uint64 {
	n := uint64(len(m.Payload))
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// ReceiverMessage is what a TCPReceiver reports back to the sender it is
// receiving from: the cumulative ack point and the current window size.
type ReceiverMessage struct {
	// Ackno is unset (HasAckno false) until the SYN has been received.
	Ackno    wrap32.Wrap32
	HasAckno bool

	WindowSize uint16
	RST        bool
}
