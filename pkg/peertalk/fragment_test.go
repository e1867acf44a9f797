package peertalk

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFragmentRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "payload")
		chunk := rapid.IntRange(5, 256).Draw(t, "chunk")
		startSeq := rapid.Uint32().Draw(t, "startSeq")

		frames := fragmentPayload(payload, chunk, startSeq)
		require.NotEmpty(t, frames)
		require.Equal(t, FrameFragStart, frames[0].Type)
		require.Equal(t, FrameFragEnd, frames[len(frames)-1].Type)
		for _, f := range frames[1 : len(frames)-1] {
			require.Equal(t, FrameFragCont, f.Type)
		}

		var r reassembler
		var out []byte
		for _, f := range frames {
			payloadOut, done, err := r.feed(f)
			require.NoError(t, err)
			if done {
				out = payloadOut
			}
		}
		require.Equal(t, payload, out)
	})
}

func TestReassemblerRejectsSequenceGap(t *testing.T) {
	frames := fragmentPayload(make([]byte, 1000), 64, 0)
	require.GreaterOrEqual(t, len(frames), 3)

	var r reassembler
	_, _, err := r.feed(frames[0])
	require.NoError(t, err)
	// Skip frames[1]: feed frames[2] directly, simulating a dropped
	// datagram/packet reorder.
	_, _, err = r.feed(frames[2])
	require.ErrorIs(t, err, ErrProtocol)
	// The reassembler must reset, not wedge: a fresh FRAG_START works.
	_, _, err = r.feed(frames[0])
	require.NoError(t, err)
}

func TestReassemblerRejectsContWithoutStart(t *testing.T) {
	frames := fragmentPayload(make([]byte, 1000), 64, 5)
	var r reassembler
	_, _, err := r.feed(frames[1])
	require.ErrorIs(t, err, ErrProtocol)
}

func TestReassemblerRejectsDoubleStart(t *testing.T) {
	frames := fragmentPayload(make([]byte, 1000), 64, 0)
	var r reassembler
	_, _, err := r.feed(frames[0])
	require.NoError(t, err)
	_, _, err = r.feed(frames[0])
	require.ErrorIs(t, err, ErrProtocol)
}

func TestFragmentSmallPayloadYieldsStartAndEndOnly(t *testing.T) {
	payload := []byte("tiny")
	frames := fragmentPayload(payload, 256, 0)
	require.Len(t, frames, 2) // FRAG_START (with length prefix) + FRAG_END
}
