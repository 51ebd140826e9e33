package tcp

import (
	"github.com/netlace/tcpstack/internal/reassembler"
	"github.com/netlace/tcpstack/internal/stream"
	"github.com/netlace/tcpstack/internal/wrap32"
)

// Receiver turns a sequence of incoming SenderMessages into a reassembled
// byte stream and produces the ReceiverMessages (ackno + window) to send
// back to the peer's sender.
type Receiver struct {
	isn     wrap32.Wrap32
	haveISN bool
	rst     bool

	reasm *reassembler.Reassembler
	out   *stream.Reader
}

// NewReceiver constructs a Receiver that reassembles into stream s.
func NewReceiver(s *stream.ByteStream) *Receiver {
	return &Receiver{
		reasm: reassembler.New(s.Writer()),
		out:   s.Reader(),
	}
}

// Receive processes one incoming segment from the sender.
func (r *Receiver) Receive(msg SenderMessage) {
	if msg.RST {
		r.rst = true
		r.out.SetError()
		return
	}
	if msg.SYN {
		r.isn = msg.SeqNo
		r.haveISN = true
	}
	if !r.haveISN {
		return
	}

	checkpoint := r.streamIndexToSeqnoCheckpoint()
	absSeqno := msg.SeqNo.Unwrap(r.isn, checkpoint)

	var streamIndex uint64
	if msg.SYN {
		streamIndex = 0
	} else {
		if absSeqno == 0 {
			// Data claiming to precede the SYN; nothing we can place.
			return
		}
		streamIndex = absSeqno - 1
	}

	r.reasm.Insert(streamIndex, msg.Payload, msg.FIN)
}

// streamIndexToSeqnoCheckpoint gives Unwrap a checkpoint near the next
// expected absolute sequence number, so ties resolve sanely near the
// current reassembly position rather than near zero. Every byte ever
// written to the reassembler's output is either popped or still
// buffered, so their sum equals the next stream index it expects.
func (r *Receiver) streamIndexToSeqnoCheckpoint() uint64 {
	return r.out.BytesPopped() + r.out.BytesBuffered() + 1
}

// Send reports the receiver's current ackno and window size.
func (r *Receiver) Send() ReceiverMessage {
	msg := ReceiverMessage{RST: r.HasError()}
	if !r.haveISN {
		return msg
	}

	absAck := r.out.BytesPopped() + r.out.BytesBuffered() + 1 // +1 for SYN
	if r.out.IsClosed() {
		absAck++ // +1 for FIN
	}
	msg.Ackno = wrap32.Wrap(absAck, r.isn)
	msg.HasAckno = true

	window := r.out.Capacity() - r.out.BytesBuffered()
	if window > 0xFFFF {
		window = 0xFFFF
	}
	msg.WindowSize = uint16(window)
	return msg
}

// HasError reports whether a reset has been seen or signaled.
func (r *Receiver) HasError() bool { return r.rst || r.out.HasError() }

// HaveISN reports whether the peer's SYN has been seen yet.
func (r *Receiver) HaveISN() bool { return r.haveISN }
