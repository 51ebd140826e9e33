// Package conn is the external collaborator layer: it drives the
// synchronous tcp/link/router core from real goroutines, timers, and
// (eventually) sockets, the way cmd/webget needs in order to look like
// an ordinary blocking Read/Write connection to its caller.
package conn

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netlace/tcpstack/internal/stream"
	"github.com/netlace/tcpstack/internal/tcp"
	"github.com/netlace/tcpstack/internal/wrap32"
)

// TickInterval is how often a Peer's tick loop drives its Sender's
// retransmission timer, standing in for the lab's packet-arrival-driven
// clock.
const TickInterval = 10 * time.Millisecond

// Transmitter is anything willing to carry this peer's outgoing wire
// segments to the other side (a DirectLoopback partner, or a
// NetworkLoopback path through a link.Interface and Router).
type Transmitter interface {
	Transmit(tcp.WireSegment)
}

// Peer is one end of a TCP connection: a Sender fed by a write-side
// ByteStream, a Receiver draining into a read-side ByteStream, wired to
// a Transmitter that carries segments to the other side.
type Peer struct {
	log *slog.Logger

	srcPort, dstPort uint16

	mu  sync.Mutex
	snd *tcp.Sender
	rcv *tcp.Receiver

	writeSide *stream.ByteStream
	readSide  *stream.ByteStream

	transport Transmitter

	lastAckSent    wrap32.Wrap32
	haveLastAck    bool
	lastWindowSent uint16

	wg      sync.WaitGroup
	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a Peer that originates its own ISN and sends through
// transport, using the given TCP ports for the wire segments it builds.
func New(log *slog.Logger, isn wrap32.Wrap32, cfg tcp.Config, srcPort, dstPort uint16, transport Transmitter) *Peer {
	writeSide := stream.New(64_000)
	readSide := stream.New(64_000)
	return &Peer{
		log:       log,
		srcPort:   srcPort,
		dstPort:   dstPort,
		snd:       tcp.NewSender(writeSide, isn, cfg),
		rcv:       tcp.NewReceiver(readSide),
		writeSide: writeSide,
		readSide:  readSide,
		transport: transport,
	}
}

// Open sends the initial SYN.
func (p *Peer) Open() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushAndFlushLocked()
}

// Write pushes data into the outgoing byte stream and flushes whatever
// segments the sender is now willing to send.
func (p *Peer) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.writeSide.Writer().Push(data)
	p.pushAndFlushLocked()
	return n, nil
}

// CloseWrite signals end-of-stream on the outgoing side (FIN-bearing).
func (p *Peer) CloseWrite() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeSide.Writer().Close()
	p.pushAndFlushLocked()
}

// Read drains reassembled bytes from the incoming stream.
func (p *Peer) Read(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reader := p.readSide.Reader()
	got := reader.Peek()
	n := copy(data, got)
	reader.Pop(uint64(n))
	return n, nil
}

// IsFinished reports whether the incoming stream has been fully read to
// its FIN.
func (p *Peer) IsFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readSide.Reader().IsFinished()
}

// Deliver feeds one incoming wire segment from the peer on the other end
// of the connection into this Peer's receiver and sender.
func (p *Peer) Deliver(seg tcp.WireSegment) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rcv.Receive(seg.ToSenderMessage())
	p.snd.Receive(seg.ToReceiverMessage())
	p.pushAndFlushLocked()
}

func (p *Peer) pushAndFlushLocked() {
	p.snd.Push()
	p.flushLocked()
}

// flushLocked drains every pending outgoing segment, piggybacking this
// peer's current ack/window onto each, and sends a standalone
// acknowledgement if the ack state advanced but nothing else was queued.
func (p *Peer) flushLocked() {
	ack := p.rcv.Send()
	segs := p.snd.Drain()

	for _, msg := range segs {
		p.transport.Transmit(p.attachAck(msg, ack))
	}

	if len(segs) == 0 && p.ackAdvanced(ack) {
		p.transport.Transmit(p.attachAck(tcp.SenderMessage{SeqNo: p.snd.CurrentSeqNo()}, ack))
	}

	if ack.HasAckno {
		p.lastAckSent, p.haveLastAck = ack.Ackno, true
		p.lastWindowSent = ack.WindowSize
	}
}

func (p *Peer) ackAdvanced(ack tcp.ReceiverMessage) bool {
	if !ack.HasAckno {
		return false
	}
	return !p.haveLastAck || !ack.Ackno.Equal(p.lastAckSent) || ack.WindowSize != p.lastWindowSent
}

func (p *Peer) attachAck(msg tcp.SenderMessage, ack tcp.ReceiverMessage) tcp.WireSegment {
	return tcp.WireSegment{
		SrcPort: p.srcPort,
		DstPort: p.dstPort,
		SeqNo:   msg.SeqNo,
		SYN:     msg.SYN,
		Payload: msg.Payload,
		FIN:     msg.FIN,
		RST:     msg.RST || ack.RST,
		AckNo:   ack.Ackno,
		HasAck:  ack.HasAckno,
		Window:  ack.WindowSize,
	}
}

// tick advances the sender's retransmission timer by TickInterval,
// flushing any retransmissions it produces.
func (p *Peer) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snd.Tick(uint64(TickInterval / time.Millisecond))
	p.flushLocked()
}

// Start launches the background tick loop driving retransmission. Safe
// to call once; a second call before Stop is a no-op.
func (p *Peer) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick()
			}
		}
	}()
}

// Stop cancels the tick loop and waits for it to exit. Safe and
// idempotent.
func (p *Peer) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.running.Store(false)
}

// HasError reports whether either half of the connection has seen a
// reset.
func (p *Peer) HasError() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snd.HasError() || p.rcv.HasError()
}

// IsEstablished reports whether this peer has seen the other side's SYN.
// For the peer that sent the first SYN, that SYN arrives with the
// acknowledgement of its own, so the handshake has completed from its
// point of view; for the other peer it only means the handshake began.
func (p *Peer) IsEstablished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rcv.HaveISN()
}
