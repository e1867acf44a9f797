package peertalk

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func rapidDiscoveryType(t *rapid.T) DiscoveryType {
	return rapid.SampledFrom([]DiscoveryType{DiscoveryAnnounce, DiscoveryQuery, DiscoveryGoodbye}).Draw(t, "type")
}

func TestDiscoveryPacketRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nTLVs := rapid.IntRange(0, 4).Draw(t, "nTLVs")
		var tlvs []CapabilityTLV
		for i := 0; i < nTLVs; i++ {
			tlvs = append(tlvs, CapabilityTLV{
				Tag:   rapid.Byte().Draw(t, "tag"),
				Value: rapid.SliceOfN(rapid.Byte(), 0, 16).Draw(t, "value"),
			})
		}
		p := DiscoveryPacket{
			Type:       rapidDiscoveryType(t),
			SenderPort: rapid.Uint16().Draw(t, "port"),
			Name:       rapid.StringMatching(`[a-zA-Z0-9_-]{0,31}`).Draw(t, "name"),
			TLVs:       tlvs,
		}
		decoded, err := decodeDiscovery(p.Encode())
		require.NoError(t, err)
		require.Equal(t, p.Type, decoded.Type)
		require.Equal(t, p.SenderPort, decoded.SenderPort)
		require.Equal(t, p.Name, decoded.Name)
		if len(p.TLVs) == 0 {
			require.Empty(t, decoded.TLVs)
		} else {
			require.Equal(t, p.TLVs, decoded.TLVs)
		}
	})
}

func TestDiscoveryPacketRejectsTruncated(t *testing.T) {
	p := DiscoveryPacket{Type: DiscoveryAnnounce, SenderPort: 7354, Name: "alice"}
	encoded := p.Encode()
	for n := 0; n < 9; n++ {
		_, err := decodeDiscovery(encoded[:n])
		require.Error(t, err)
	}
}

func TestDiscoveryPacketRejectsBadMagic(t *testing.T) {
	p := DiscoveryPacket{Type: DiscoveryQuery, Name: "bob"}
	encoded := p.Encode()
	encoded[0] ^= 0xFF
	_, err := decodeDiscovery(encoded)
	require.ErrorIs(t, err, ErrMagic)
}

func TestDiscoveryPacketNameTruncatedAt31Bytes(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "x"
	}
	p := DiscoveryPacket{Type: DiscoveryAnnounce, Name: long}
	decoded, err := decodeDiscovery(p.Encode())
	require.NoError(t, err)
	require.Len(t, decoded.Name, 31)
}
