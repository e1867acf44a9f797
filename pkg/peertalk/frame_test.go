package peertalk

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func rapidFrameType(t *rapid.T) FrameType {
	return rapid.SampledFrom([]FrameType{
		FrameData, FramePing, FramePong, FrameDisconnect, FrameCapability,
		FrameFragStart, FrameFragCont, FrameFragEnd,
	}).Draw(t, "type")
}

func TestFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := Frame{
			Type:     rapidFrameType(t),
			Sequence: rapid.Uint32().Draw(t, "seq"),
			Payload:  rapid.SliceOfN(rapid.Byte(), 0, 512).Draw(t, "payload"),
		}
		encoded := f.Encode()
		res := decodeFrame(encoded)
		require.Equal(t, DecodeComplete, res.Status)
		require.Equal(t, len(encoded), res.Consumed)
		require.Equal(t, f.Type, res.Frame.Type)
		require.Equal(t, f.Sequence, res.Frame.Sequence)
		require.Equal(t, f.Payload, res.Frame.Payload)
	})
}

func TestFrameDecodePartialOnShortBuffer(t *testing.T) {
	f := Frame{Type: FrameData, Payload: []byte("hello world")}
	encoded := f.Encode()
	for n := 0; n < len(encoded); n++ {
		res := decodeFrame(encoded[:n])
		require.NotEqual(t, DecodeErr, res.Status, "truncated prefix of length %d must not be a hard error", n)
	}
}

func TestFrameDecodeRejectsBadMagic(t *testing.T) {
	f := Frame{Type: FrameData, Payload: []byte("x")}
	encoded := f.Encode()
	encoded[0] ^= 0xFF
	res := decodeFrame(encoded)
	require.Equal(t, DecodeErr, res.Status)
	require.ErrorIs(t, res.Err, ErrMagic)
}

func TestFrameDecodeDetectsCorruption(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := Frame{
			Type:     rapidFrameType(t),
			Sequence: rapid.Uint32().Draw(t, "seq"),
			Payload:  rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "payload"),
		}
		encoded := f.Encode()
		idx := rapid.IntRange(frameHeaderSize, len(encoded)-1).Draw(t, "idx")
		bit := rapid.IntRange(0, 7).Draw(t, "bit")
		encoded[idx] ^= 1 << uint(bit)

		res := decodeFrame(encoded)
		require.Equal(t, DecodeErr, res.Status)
		require.ErrorIs(t, res.Err, ErrCRC)
	})
}
