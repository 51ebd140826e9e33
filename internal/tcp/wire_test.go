package tcp

import (
	"testing"

	"github.com/netlace/tcpstack/internal/wrap32"
	"github.com/stretchr/testify/require"
)

func TestWireSegment_RoundTrip(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}

	seg := WireSegment{
		SrcPort: 5000,
		DstPort: 80,
		SeqNo:   wrap32.New(100),
		SYN:     true,
		Payload: []byte("hello"),
		AckNo:   wrap32.New(42),
		HasAck:  true,
		Window:  4000,
	}

	raw, err := seg.Encode(src, dst)
	require.NoError(t, err)

	got, err := DecodeWireSegment(raw)
	require.NoError(t, err)

	require.Equal(t, seg.SrcPort, got.SrcPort)
	require.Equal(t, seg.DstPort, got.DstPort)
	require.Equal(t, seg.SeqNo, got.SeqNo)
	require.True(t, got.SYN)
	require.Equal(t, seg.Payload, got.Payload)
	require.Equal(t, seg.AckNo, got.AckNo)
	require.True(t, got.HasAck)
	require.Equal(t, seg.Window, got.Window)
}

func TestWireSegment_ToSenderAndReceiverMessages(t *testing.T) {
	seg := WireSegment{
		SeqNo:   wrap32.New(7),
		FIN:     true,
		AckNo:   wrap32.New(9),
		HasAck:  true,
		Window:  1000,
		Payload: []byte("x"),
	}

	sm := seg.ToSenderMessage()
	require.True(t, sm.FIN)
	require.Equal(t, seg.Payload, sm.Payload)

	rm := seg.ToReceiverMessage()
	require.True(t, rm.HasAckno)
	require.Equal(t, seg.Window, rm.WindowSize)
}
