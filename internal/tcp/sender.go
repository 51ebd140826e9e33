package tcp

import (
	"github.com/netlace/tcpstack/internal/netmetrics"
	"github.com/netlace/tcpstack/internal/stream"
	"github.com/netlace/tcpstack/internal/wrap32"
)

type outstandingSegment struct {
	startSeq uint64
	msg      SenderMessage
}

// Sender turns an input byte stream into a sequence of SenderMessages,
// tracking outstanding (unacknowledged) segments and retransmitting them
// on an exponentially backed-off timer.
type Sender struct {
	isn            wrap32.Wrap32
	in             *stream.Reader
	maxPayloadSize uint64
	initialRTOms   uint64

	nextSeqno uint64 // absolute
	lastAckno uint64 // absolute; bytes + SYN + FIN acknowledged so far

	synSent bool
	finSent bool
	rst     bool

	receiverWindow uint64 // last window size reported by the receiver

	outstanding []outstandingSegment
	pending     []SenderMessage

	timerRunning       bool
	elapsedMs          uint64
	currentRTOms       uint64
	consecutiveRetrans uint64

	label string
}

// WithLabel sets the identifier this sender reports itself as in
// Prometheus metrics, returning s for chaining at construction time.
func (s *Sender) WithLabel(label string) *Sender {
	s.label = label
	return s
}

// NewSender constructs a Sender that reads from in and starts numbering
// its sequence space at isn.
func NewSender(in *stream.ByteStream, isn wrap32.Wrap32, cfg Config) *Sender {
	maxPayload := cfg.MaxPayloadSize
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayloadSize
	}
	rto := cfg.InitialRTOMs
	if rto == 0 {
		rto = DefaultInitialRTOMs
	}
	return &Sender{
		isn:            isn,
		in:             in.Reader(),
		maxPayloadSize: maxPayload,
		initialRTOms:   rto,
		receiverWindow: 1, // assume a window of (at least) one byte until told otherwise
		currentRTOms:   rto,
	}
}

// SequenceNumbersInFlight returns the number of sequence numbers sent but
// not yet acknowledged. Derived rather than separately counted, so SYN
// and data can never be double-counted against each other.
func (s *Sender) SequenceNumbersInFlight() uint64 { return s.nextSeqno - s.lastAckno }

// ConsecutiveRetransmissions returns the number of back-to-back timer
// expirations since the last new data was acknowledged.
func (s *Sender) ConsecutiveRetransmissions() uint64 { return s.consecutiveRetrans }

func (s *Sender) effectiveWindow() uint64 {
	if s.receiverWindow == 0 {
		return 1
	}
	return s.receiverWindow
}

// Push fills the receiver's advertised window with as many segments as
// the input stream currently has ready, attaching SYN to the first
// segment and FIN to the last once the input is exhausted.
func (s *Sender) Push() {
	for {
		if s.rst || s.finSent {
			return
		}

		window := s.effectiveWindow()
		inFlight := s.SequenceNumbersInFlight()
		if inFlight >= window {
			return
		}
		avail := window - inFlight

		msg := SenderMessage{SeqNo: wrap32.Wrap(s.nextSeqno, s.isn)}
		if !s.synSent {
			msg.SYN = true
		}

		headerLen := uint64(0)
		if msg.SYN {
			headerLen = 1
		}
		if headerLen < avail {
			budget := avail - headerLen
			if budget > s.maxPayloadSize {
				budget = s.maxPayloadSize
			}
			data := s.in.Peek()
			if uint64(len(data)) > budget {
				data = data[:budget]
			}
			if len(data) > 0 {
				msg.Payload = append([]byte(nil), data...)
				s.in.Pop(uint64(len(data)))
			}
		}

		used := msg.SequenceLength()
		if s.in.IsFinished() && !s.finSent && used < avail {
			msg.FIN = true
			used++
		}

		if used == 0 {
			return
		}

		s.synSent = true
		if msg.FIN {
			s.finSent = true
		}

		s.outstanding = append(s.outstanding, outstandingSegment{startSeq: s.nextSeqno, msg: msg})
		s.pending = append(s.pending, msg)
		s.nextSeqno += used

		if !s.timerRunning {
			s.timerRunning = true
			s.elapsedMs = 0
		}
	}
}

// Receive processes an acknowledgement (and window update) from the
// receiver this sender is sending to.
func (s *Sender) Receive(msg ReceiverMessage) {
	if msg.RST {
		s.rst = true
		s.in.SetError()
		return
	}
	if !msg.HasAckno {
		s.receiverWindow = uint64(msg.WindowSize)
		return
	}

	absAck := msg.Ackno.Unwrap(s.isn, s.nextSeqno)
	if absAck > s.nextSeqno {
		return // acknowledges something never sent; ignore the whole update
	}
	s.receiverWindow = uint64(msg.WindowSize)
	if absAck <= s.lastAckno {
		return // stale or duplicate ack; window update above still applies
	}
	s.lastAckno = absAck

	acked := false
	for len(s.outstanding) > 0 {
		seg := s.outstanding[0]
		if seg.startSeq+seg.msg.SequenceLength() > absAck {
			break
		}
		s.outstanding = s.outstanding[1:]
		acked = true
	}

	if acked {
		s.currentRTOms = s.initialRTOms
		s.consecutiveRetrans = 0
		s.elapsedMs = 0
		s.timerRunning = len(s.outstanding) > 0
		netmetrics.CurrentRTO.WithLabelValues(s.label).Set(float64(s.currentRTOms))
	}

	s.Push()
}

// Tick advances the retransmission timer by ms milliseconds, retransmitting
// the earliest outstanding segment and doubling the RTO if it fires.
func (s *Sender) Tick(ms uint64) {
	if !s.timerRunning {
		return
	}
	s.elapsedMs += ms
	if s.elapsedMs < s.currentRTOms {
		return
	}
	if len(s.outstanding) == 0 {
		s.timerRunning = false
		return
	}

	s.pending = append(s.pending, s.outstanding[0].msg)
	s.elapsedMs = 0
	s.consecutiveRetrans++
	netmetrics.RetransmissionsTotal.WithLabelValues(s.label).Inc()

	// A zero window means we are probing, not congested: don't penalize
	// the connection with back-off for a probe that was expected to wait.
	if s.receiverWindow != 0 {
		s.currentRTOms *= 2
	}
	netmetrics.CurrentRTO.WithLabelValues(s.label).Set(float64(s.currentRTOms))
}

// Drain returns and clears every segment queued for transmission since
// the last Drain call.
func (s *Sender) Drain() []SenderMessage {
	out := s.pending
	s.pending = nil
	return out
}

// MakeRST builds a standalone reset segment at the current send position,
// without consuming any sequence numbers or touching the retransmit queue.
func (s *Sender) MakeRST() SenderMessage {
	return SenderMessage{SeqNo: wrap32.Wrap(s.nextSeqno, s.isn), RST: true}
}

// CurrentSeqNo returns the sequence number the next new segment would
// start at, for building standalone (data-free) acknowledgements.
func (s *Sender) CurrentSeqNo() wrap32.Wrap32 { return wrap32.Wrap(s.nextSeqno, s.isn) }

// HasError reports whether this sender has seen or signaled a reset.
func (s *Sender) HasError() bool { return s.rst || s.in.HasError() }
