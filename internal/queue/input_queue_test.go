package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueWithinCapacity(t *testing.T) {
	q := New(3)
	now := time.Now()

	assert.False(t, q.Enqueue("n", now))
	assert.False(t, q.Enqueue("look", now))
	assert.False(t, q.Enqueue("inv", now))
	assert.Equal(t, 3, q.Len())
}

func TestOverflowDropsOldestAndReportsOnlyOncePerBurst(t *testing.T) {
	q := New(2)
	now := time.Now()

	require.False(t, q.Enqueue("a", now))
	require.False(t, q.Enqueue("b", now))

	assert.True(t, q.Enqueue("c", now), "first drop in a burst must report overflow")
	assert.False(t, q.Enqueue("d", now), "subsequent drops in the same burst must not re-report")

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "c", drained[0].Text)
	assert.Equal(t, "d", drained[1].Text)
}

func TestOverflowBurstResetsAfterRoomFrees(t *testing.T) {
	q := New(2)
	now := time.Now()

	require.False(t, q.Enqueue("a", now))
	require.False(t, q.Enqueue("b", now))
	require.True(t, q.Enqueue("c", now)) // drops "a", first overflow

	q.Drain()

	require.False(t, q.Enqueue("x", now))
	require.False(t, q.Enqueue("y", now))
	assert.True(t, q.Enqueue("z", now), "a fresh burst after drain reports again")
}

func TestDrainEmptiesQueue(t *testing.T) {
	q := New(5)
	now := time.Now()
	q.Enqueue("n", now)
	q.Enqueue("look", now)

	drained := q.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestNonPositiveCapacityClampsToOne(t *testing.T) {
	q := New(0)
	assert.Equal(t, 1, q.Capacity())
}
