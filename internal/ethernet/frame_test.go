package ethernet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFrame_EncodeDecodeRoundTrip(t *testing.T) {
	want := Frame{
		Dst:       [6]byte{0x02, 0, 0, 0, 0, 1},
		Src:       [6]byte{0x02, 0, 0, 0, 0, 2},
		EtherType: TypeIPv4,
		Payload:   []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}

	raw, err := want.Encode()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFrame_DecodeMalformedReturnsError(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestFrame_BroadcastAddrIsAllOnes(t *testing.T) {
	require.Equal(t, [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, BroadcastAddr)
}
