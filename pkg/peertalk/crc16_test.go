package peertalk

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Known-answer test: CRC-16/CCITT-FALSE of "123456789" is 0x29B1 per
// the standard check value for this polynomial/init pair.
func TestCRC16KnownVector(t *testing.T) {
	require.Equal(t, uint16(0x29B1), crc16Of([]byte("123456789")))
}

func TestCRC16EmptyIsInit(t *testing.T) {
	require.Equal(t, uint16(0xFFFF), crc16Of(nil))
}

func TestCRC16ChunkingMatchesWhole(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		whole := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(t, "whole")
		split := rapid.IntRange(0, len(whole)).Draw(t, "split")
		chunked := crc16Of(whole[:split], whole[split:])
		require.Equal(t, crc16Of(whole), chunked)
	})
}

func TestCRC16DetectsSingleBitFlip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, 256).Draw(t, "data")
		original := crc16Of(data)

		flipped := append([]byte(nil), data...)
		idx := rapid.IntRange(0, len(flipped)-1).Draw(t, "idx")
		bit := rapid.IntRange(0, 7).Draw(t, "bit")
		flipped[idx] ^= 1 << uint(bit)

		require.NotEqual(t, original, crc16Of(flipped), "single-bit corruption must change the checksum")
	})
}
