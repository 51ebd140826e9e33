// Package reassembler reorders a stream of indexed, possibly overlapping
// byte substrings into the in-order byte stream a TCPReceiver expects.
package reassembler

import "github.com/netlace/tcpstack/internal/stream"

// Reassembler buffers out-of-order bytes up to the capacity of the output
// ByteStream and writes them through once they become contiguous with the
// next expected index.
type Reassembler struct {
	out *stream.Writer

	// firstUnassembled is the absolute index of the next byte the output
	// stream is expecting.
	firstUnassembled uint64

	// buf and present form a fixed-size ring sized to the output's total
	// capacity. head is the ring slot holding firstUnassembled, so slot
	// (head+k)%len(buf) holds absolute index firstUnassembled+k.
	buf     []byte
	present []bool
	head    int
	pending uint64

	haveEnd bool
	endIdx  uint64
}

// New constructs a Reassembler that writes reassembled bytes into out.
func New(out *stream.Writer) *Reassembler {
	n := out.AvailableCapacity()
	return &Reassembler{
		out:     out,
		buf:     make([]byte, n),
		present: make([]bool, n),
	}
}

// Insert delivers a substring of the overall byte stream: data starting at
// absolute index first, with isLast set if this substring's last byte is
// the final byte of the stream.
func (r *Reassembler) Insert(first uint64, data []byte, isLast bool) {
	if isLast {
		r.haveEnd = true
		r.endIdx = first + uint64(len(data))
	}

	unacceptable := r.firstUnassembled + r.out.AvailableCapacity()

	for i, b := range data {
		idx := first + uint64(i)
		if idx < r.firstUnassembled || idx >= unacceptable {
			continue
		}
		slot := (r.head + int(idx-r.firstUnassembled)) % len(r.buf)
		if !r.present[slot] {
			r.present[slot] = true
			r.buf[slot] = b
			r.pending++
		}
		// Already present: first write wins, leave the stored byte alone.
	}

	r.flush()

	if r.haveEnd && r.firstUnassembled == r.endIdx && r.pending == 0 {
		r.out.Close()
	}
}

// flush writes every contiguous run of present bytes starting at head
// through to the output stream, advancing firstUnassembled and head.
func (r *Reassembler) flush() {
	if len(r.buf) == 0 {
		return
	}
	var run []byte
	for r.present[r.head] {
		run = append(run, r.buf[r.head])
		r.present[r.head] = false
		r.pending--
		r.head = (r.head + 1) % len(r.buf)
		if len(run) == len(r.buf) {
			break
		}
	}
	if len(run) == 0 {
		return
	}
	n := r.out.Push(run)
	r.firstUnassembled += uint64(n)
}

// BytesPending returns the number of bytes currently buffered awaiting
// reassembly (not yet contiguous with firstUnassembled).
func (r *Reassembler) BytesPending() uint64 { return r.pending }

// IsDone reports whether every byte through the end of the stream (once
// known) has been written to the output.
func (r *Reassembler) IsDone() bool {
	return r.haveEnd && r.firstUnassembled >= r.endIdx
}
