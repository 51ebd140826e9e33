package reassembler

import (
	"testing"

	"github.com/netlace/tcpstack/internal/stream"
	"github.com/stretchr/testify/require"
)

func TestReassembler_InOrderInsertsPassThrough(t *testing.T) {
	s := stream.New(65000)
	r := New(s.Writer())
	reader := s.Reader()

	r.Insert(0, []byte("abc"), false)
	r.Insert(3, []byte("def"), true)

	require.Equal(t, []byte("abcdef"), reader.Peek())
	require.True(t, r.IsDone())
	require.True(t, reader.IsClosed())
}

func TestReassembler_OutOfOrderBuffersThenFlushes(t *testing.T) {
	s := stream.New(65000)
	r := New(s.Writer())
	reader := s.Reader()

	r.Insert(3, []byte("def"), false)
	require.Equal(t, uint64(0), reader.BytesBuffered(), "unassembled bytes withheld from output")
	require.Equal(t, uint64(3), r.BytesPending())

	r.Insert(0, []byte("abc"), false)
	require.Equal(t, []byte("abcdef"), reader.Peek())
	require.Equal(t, uint64(0), r.BytesPending())
}

func TestReassembler_OverlappingWritesAreIdempotent(t *testing.T) {
	s := stream.New(65000)
	r := New(s.Writer())
	reader := s.Reader()

	r.Insert(0, []byte("abcdef"), false)
	r.Insert(2, []byte("cdXY"), false) // lies wholly inside [0,6), already assembled; ignored

	require.Equal(t, []byte("abcdefXY"[:6]), reader.Peek()[:6])
}

func TestReassembler_DuplicateAndPartialOverlapMerge(t *testing.T) {
	s := stream.New(65000)
	r := New(s.Writer())
	reader := s.Reader()

	r.Insert(0, []byte("ab"), false)
	r.Insert(0, []byte("ab"), false) // exact duplicate
	r.Insert(1, []byte("bcd"), false) // overlaps last byte, extends

	require.Equal(t, []byte("abcd"), reader.Peek())
}

func TestReassembler_RespectsOutputCapacity(t *testing.T) {
	s := stream.New(4)
	r := New(s.Writer())
	reader := s.Reader()

	r.Insert(0, []byte("abcdefgh"), false)
	require.Equal(t, []byte("abcd"), reader.Peek(), "bytes beyond capacity are discarded, not written")

	reader.Pop(2)
	r.Insert(4, []byte("ef"), false)
	require.Equal(t, []byte("cdef"), reader.Peek())
}

func TestReassembler_RejectsBytesBeyondAvailableCapacityWhenReaderLags(t *testing.T) {
	s := stream.New(4)
	r := New(s.Writer())
	reader := s.Reader()

	r.Insert(0, []byte("abcd"), false)
	require.Equal(t, []byte("abcd"), reader.Peek())
	require.Equal(t, uint64(0), r.BytesPending())

	// Reader hasn't popped anything: available capacity is 0, so these
	// contiguous bytes must be rejected outright, not buffered and then
	// silently dropped on flush.
	r.Insert(4, []byte("ef"), false)
	require.Equal(t, uint64(0), r.BytesPending(), "bytes beyond available capacity must not be counted as pending")
	require.Equal(t, []byte("abcd"), reader.Peek(), "output must not observe bytes the stream had no room for")

	reader.Pop(2)
	r.Insert(4, []byte("ef"), false)
	require.Equal(t, []byte("cdef"), reader.Peek(), "once room frees up, the same bytes are accepted")
}

func TestReassembler_OverlappingInsertKeepsFirstWrite(t *testing.T) {
	s := stream.New(65000)
	r := New(s.Writer())
	reader := s.Reader()

	r.Insert(2, []byte("XY"), false) // buffered out of order, not yet flushed
	r.Insert(2, []byte("cd"), false) // overlaps the same indices with different bytes

	r.Insert(0, []byte("ab"), false) // now contiguous; flushes through
	require.Equal(t, []byte("abXY"), reader.Peek(), "first insert covering an index wins, not the last")
}

func TestReassembler_EndMarkerClosesOnlyAfterAllBytesAssembled(t *testing.T) {
	s := stream.New(65000)
	r := New(s.Writer())
	reader := s.Reader()

	r.Insert(3, []byte("def"), true)
	require.False(t, reader.IsClosed(), "end seen but gap before it remains")

	r.Insert(0, []byte("abc"), false)
	require.True(t, reader.IsClosed())
	require.True(t, r.IsDone())
}
