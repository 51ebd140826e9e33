package tcp

import (
	"testing"

	"github.com/netlace/tcpstack/internal/stream"
	"github.com/netlace/tcpstack/internal/wrap32"
	"github.com/stretchr/testify/require"
)

func newTestSender(t *testing.T, capacity uint64) (*Sender, *stream.Writer) {
	t.Helper()
	s := stream.New(capacity)
	isn := wrap32.New(12345)
	snd := NewSender(s, isn, Config{MaxPayloadSize: 1000, InitialRTOMs: 1000})
	return snd, s.Writer()
}

func TestSender_SYNSentFirstWithNoData(t *testing.T) {
	snd, _ := newTestSender(t, 4000)
	snd.Push()

	segs := snd.Drain()
	require.Len(t, segs, 1)
	require.True(t, segs[0].SYN)
	require.Equal(t, uint64(1), snd.SequenceNumbersInFlight())
}

func TestSender_SYNAndDataInOneSegmentWhenRoomAllows(t *testing.T) {
	snd, w := newTestSender(t, 4000)
	snd.receiverWindow = 4000
	w.Push([]byte("hello"))
	snd.Push()

	segs := snd.Drain()
	require.Len(t, segs, 1)
	require.True(t, segs[0].SYN)
	require.Equal(t, []byte("hello"), segs[0].Payload)
	require.Equal(t, uint64(6), snd.SequenceNumbersInFlight())
}

func TestSender_FINAttachedOnceInputFinishedAndRoomRemains(t *testing.T) {
	snd, w := newTestSender(t, 4000)
	snd.receiverWindow = 4000
	w.Push([]byte("bye"))
	w.Close()
	snd.Push()

	segs := snd.Drain()
	require.Len(t, segs, 1)
	require.True(t, segs[0].SYN)
	require.True(t, segs[0].FIN)
	require.Equal(t, uint64(5), snd.SequenceNumbersInFlight()) // SYN+"bye"+FIN
}

func TestSender_StopsAtReceiverWindow(t *testing.T) {
	snd, w := newTestSender(t, 4000)
	snd.receiverWindow = 3
	w.Push([]byte("abcdefgh"))
	snd.Push()

	segs := snd.Drain()
	require.Len(t, segs, 1)
	require.True(t, segs[0].SYN)
	require.Equal(t, []byte("ab"), segs[0].Payload) // 1 (SYN) + 2 bytes = window of 3
	require.Equal(t, uint64(3), snd.SequenceNumbersInFlight())
}

func TestSender_RetransmitsAndDoublesRTOOnExpiry(t *testing.T) {
	snd, _ := newTestSender(t, 4000)
	snd.Push()
	snd.Drain()
	require.Equal(t, uint64(1000), snd.currentRTOms)

	snd.Tick(999)
	require.Empty(t, snd.Drain(), "not yet expired")

	snd.Tick(1)
	segs := snd.Drain()
	require.Len(t, segs, 1, "retransmission fired")
	require.Equal(t, uint64(2000), snd.currentRTOms)
	require.Equal(t, uint64(1), snd.ConsecutiveRetransmissions())

	snd.Tick(2000)
	segs = snd.Drain()
	require.Len(t, segs, 1)
	require.Equal(t, uint64(4000), snd.currentRTOms)
	require.Equal(t, uint64(2), snd.ConsecutiveRetransmissions())
}

func TestSender_AckResetsRTOAndConsecutiveCount(t *testing.T) {
	snd, _ := newTestSender(t, 4000)
	snd.Push()
	snd.Drain()
	snd.Tick(1000)
	snd.Drain()
	require.Equal(t, uint64(2000), snd.currentRTOms)

	snd.Receive(ReceiverMessage{Ackno: wrap32.New(12346), HasAckno: true, WindowSize: 100})
	require.Equal(t, uint64(1000), snd.currentRTOms)
	require.Equal(t, uint64(0), snd.ConsecutiveRetransmissions())
	require.Equal(t, uint64(0), snd.SequenceNumbersInFlight())
}

func TestSender_ZeroWindowProbesOneByteWithoutBackoff(t *testing.T) {
	snd, w := newTestSender(t, 4000)
	w.Push([]byte("xyz"))
	snd.receiverWindow = 0
	snd.Push()

	segs := snd.Drain()
	require.Len(t, segs, 1)
	require.True(t, segs[0].SYN)
	require.Empty(t, segs[0].Payload, "zero window leaves no room once SYN uses the one probe byte")

	snd.Tick(1000)
	segs = snd.Drain()
	require.Len(t, segs, 1, "probe retransmitted")
	require.Equal(t, uint64(1000), snd.currentRTOms, "no back-off while window is zero")
	require.Equal(t, uint64(1), snd.ConsecutiveRetransmissions(), "expiry still counted")
}
