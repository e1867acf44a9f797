package peertalk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeerTableAllocAssignsIncreasingIDsAcrossRemove(t *testing.T) {
	pt := newPeerTable(4)
	now := time.Now()

	i0, id0, err := pt.alloc("alice", now)
	require.NoError(t, err)
	require.Equal(t, 0, i0)
	require.EqualValues(t, 1, id0)

	_, id1, err := pt.alloc("bob", now)
	require.NoError(t, err)
	require.EqualValues(t, 2, id1)

	require.NoError(t, pt.remove(i0))

	_, id2, err := pt.alloc("carol", now)
	require.NoError(t, err)
	require.EqualValues(t, 3, id2, "the ID counter keeps increasing; freed ID 1 comes back only after it wraps")
}

func TestPeerTableSwapBackRemovalPatchesLookup(t *testing.T) {
	pt := newPeerTable(4)
	now := time.Now()

	_, idA, _ := pt.alloc("a", now)
	_, idB, _ := pt.alloc("b", now)
	_, idC, _ := pt.alloc("c", now)

	idxB, ok := pt.indexByID(idB)
	require.True(t, ok)

	require.NoError(t, pt.remove(idxB))

	_, ok = pt.indexByID(idB)
	require.False(t, ok, "removed ID must no longer resolve")

	idxA, ok := pt.indexByID(idA)
	require.True(t, ok)
	require.Equal(t, 0, idxA, "untouched slot keeps its index")

	idxC, ok := pt.indexByID(idC)
	require.True(t, ok)
	require.Equal(t, idxB, idxC, "the swapped-back peer now lives at the removed slot's index")

	require.Equal(t, 2, pt.count())
}

func TestPeerTableAllocIDWrapsAndSkipsInUse(t *testing.T) {
	pt := newPeerTable(300) // exceeds 255 so capacity isn't the limiting factor
	now := time.Now()

	var last PeerID
	for i := 0; i < 255; i++ {
		_, id, err := pt.alloc("p", now)
		require.NoError(t, err)
		last = id
	}
	require.EqualValues(t, 255, last)

	_, _, err := pt.alloc("overflow", now)
	require.ErrorIs(t, err, ErrResourceExhaust)
}

func TestPeerTableAllocFailsAtCapacity(t *testing.T) {
	pt := newPeerTable(2)
	now := time.Now()
	_, _, err := pt.alloc("a", now)
	require.NoError(t, err)
	_, _, err = pt.alloc("b", now)
	require.NoError(t, err)
	_, _, err = pt.alloc("c", now)
	require.ErrorIs(t, err, ErrResourceExhaust)
}

func TestPeerTableIndexByNameNormalizesNFC(t *testing.T) {
	pt := newPeerTable(4)
	now := time.Now()
	// "café" with a combining acute accent (NFD) vs precomposed (NFC).
	nfd := "café"
	nfc := "café"
	_, _, err := pt.alloc(nfd, now)
	require.NoError(t, err)

	idx, ok := pt.indexByName(nfc)
	require.True(t, ok, "NFD and NFC spellings of the same name must collide")
	require.Equal(t, 0, idx)
}

func TestPeerTableVersionBumpsOnAllocAndRemove(t *testing.T) {
	pt := newPeerTable(4)
	now := time.Now()
	v0 := pt.version

	i0, _, _ := pt.alloc("a", now)
	v1 := pt.version
	require.Greater(t, v1, v0)

	require.NoError(t, pt.remove(i0))
	v2 := pt.version
	require.Greater(t, v2, v1)
}

func TestPeerTableAddAddressCapsAtTwoAndKeepsPreferredFirst(t *testing.T) {
	pt := newPeerTable(4)
	now := time.Now()
	idx, _, _ := pt.alloc("a", now)

	pt.addAddress(idx, PeerAddress{Address: "10.0.0.1", Port: 1, Transport: TransportUDP}, false)
	require.EqualValues(t, 1, pt.hot[idx].addrCount)

	pt.addAddress(idx, PeerAddress{Address: "10.0.0.2", Port: 2, Transport: TransportTCP}, true)
	require.EqualValues(t, 2, pt.hot[idx].addrCount)
	require.Equal(t, "10.0.0.2", pt.cold[idx].addresses[0].Address, "preferred insert moves to slot 0")

	pt.addAddress(idx, PeerAddress{Address: "10.0.0.3", Port: 3, Transport: TransportUDP}, false)
	require.EqualValues(t, 2, pt.hot[idx].addrCount, "capacity is capped at two tuples")

	foundIdx, ok := pt.indexByAddress("10.0.0.1", 1)
	require.True(t, ok)
	require.Equal(t, idx, foundIdx)
}

func TestPeerTableAddAddressMergesTransportOnDuplicate(t *testing.T) {
	pt := newPeerTable(4)
	now := time.Now()
	idx, _, _ := pt.alloc("a", now)

	pt.addAddress(idx, PeerAddress{Address: "10.0.0.1", Port: 1, Transport: TransportUDP}, false)
	pt.addAddress(idx, PeerAddress{Address: "10.0.0.1", Port: 1, Transport: TransportTCP}, false)

	require.EqualValues(t, 1, pt.hot[idx].addrCount, "same address/port merges rather than appending")
	require.Equal(t, TransportUDP|TransportTCP, pt.cold[idx].addresses[0].Transport)
}
