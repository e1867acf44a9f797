package peertalk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustEnqueue(t *testing.T, q *sendQueue, e queueEntry) {
	t.Helper()
	_, _, err := q.enqueue(e)
	require.NoError(t, err)
}

func TestQueueDrainsHighestPriorityFirst(t *testing.T) {
	q := newSendQueue(16)
	mustEnqueue(t, q, queueEntry{Priority: PriorityLow, Buffer: []byte("low")})
	mustEnqueue(t, q, queueEntry{Priority: PriorityCritical, Buffer: []byte("crit")})
	mustEnqueue(t, q, queueEntry{Priority: PriorityNormal, Buffer: []byte("norm")})
	mustEnqueue(t, q, queueEntry{Priority: PriorityHigh, Buffer: []byte("high")})

	out := q.dequeueBatch(4)
	require.Len(t, out, 4)
	require.Equal(t, "crit", string(out[0].Buffer))
	require.Equal(t, "high", string(out[1].Buffer))
	require.Equal(t, "norm", string(out[2].Buffer))
	require.Equal(t, "low", string(out[3].Buffer))
}

func TestQueuePreservesFIFOWithinPriority(t *testing.T) {
	q := newSendQueue(16)
	mustEnqueue(t, q, queueEntry{Priority: PriorityNormal, Buffer: []byte("a")})
	mustEnqueue(t, q, queueEntry{Priority: PriorityNormal, Buffer: []byte("b")})
	mustEnqueue(t, q, queueEntry{Priority: PriorityNormal, Buffer: []byte("c")})

	out := q.dequeueBatch(3)
	require.Equal(t, []string{"a", "b", "c"}, []string{string(out[0].Buffer), string(out[1].Buffer), string(out[2].Buffer)})
}

func TestQueueCoalescesByKey(t *testing.T) {
	q := newSendQueue(16)
	mustEnqueue(t, q, queueEntry{Priority: PriorityNormal, Flags: FlagCoalescable, CoalesceKey: 1, Buffer: []byte("v1")})
	coalesced, dropped, err := q.enqueue(queueEntry{Priority: PriorityNormal, Flags: FlagCoalescable, CoalesceKey: 1, Buffer: []byte("v2")})
	require.NoError(t, err)
	require.True(t, coalesced)
	require.False(t, dropped)

	require.Equal(t, 1, q.count)
	out := q.dequeueBatch(4)
	require.Len(t, out, 1)
	require.Equal(t, "v2", string(out[0].Buffer))
	require.EqualValues(t, 1, q.coalesced)
}

func TestQueueBackpressureWithoutDropFlag(t *testing.T) {
	q := newSendQueue(1)
	mustEnqueue(t, q, queueEntry{Priority: PriorityLow, Buffer: []byte("a")})
	_, _, err := q.enqueue(queueEntry{Priority: PriorityLow, Buffer: []byte("b")})
	require.ErrorIs(t, err, ErrBackpressure)
}

func TestQueueDropsOnFullWithDropFlag(t *testing.T) {
	q := newSendQueue(1)
	mustEnqueue(t, q, queueEntry{Priority: PriorityLow, Buffer: []byte("a")})
	coalesced, dropped, err := q.enqueue(queueEntry{Priority: PriorityLow, Flags: FlagDropOnFull, Buffer: []byte("b")})
	require.NoError(t, err)
	require.False(t, coalesced)
	require.True(t, dropped)
	require.EqualValues(t, 1, q.dropped)
	require.Equal(t, 1, q.count)
}

func TestQueueDiscardAccountsEveryEntry(t *testing.T) {
	q := newSendQueue(16)
	mustEnqueue(t, q, queueEntry{Priority: PriorityLow, Buffer: []byte("a")})
	mustEnqueue(t, q, queueEntry{Priority: PriorityHigh, Buffer: []byte("b")})
	n := q.discard()
	require.Equal(t, 2, n)
	require.Equal(t, 0, q.count)
	require.EqualValues(t, 2, q.dropped)
}
