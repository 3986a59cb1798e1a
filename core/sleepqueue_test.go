package core

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticksleep/thread"
)

func TestSleepQueueOrdersByDeadline(t *testing.T) {
	q := NewSleepQueue(8)
	q.Insert(1, 5)
	q.Insert(2, 3)
	q.Insert(3, 8)
	assert.Equal(t, []Tick{3, 5, 8}, q.Deadlines())

	woken := q.DrainDue(3, nil)
	assert.Equal(t, []thread.ID{2}, woken)
	assert.Equal(t, []Tick{5, 8}, q.Deadlines())

	woken = q.DrainDue(4, woken[:0])
	assert.Empty(t, woken)

	woken = q.DrainDue(5, woken[:0])
	assert.Equal(t, []thread.ID{1}, woken)
	assert.Equal(t, []Entry{{Thread: 3, Deadline: 8}}, q.Entries())
	assert.Equal(t, 1, q.Len())
}

func TestSleepQueueTiesKeepArrivalOrder(t *testing.T) {
	q := NewSleepQueue(0)
	q.Insert(7, 10)
	q.Insert(4, 10)
	q.Insert(9, 2)
	q.Insert(5, 10)

	assert.Equal(t, []thread.ID{9, 7, 4, 5}, q.DrainDue(10, nil))
	assert.True(t, q.IsEmpty())
}

func TestSleepQueueDrainEmpty(t *testing.T) {
	q := NewSleepQueue(4)
	for _, now := range []Tick{0, 1, 1000} {
		assert.Empty(t, q.DrainDue(now, nil))
	}
	assert.Zero(t, q.Probes())
}

func TestSleepQueueSortedProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	q := NewSleepQueue(0)

	type arrival struct {
		id       thread.ID
		deadline Tick
	}
	var in []arrival
	for i := 1; i <= 200; i++ {
		a := arrival{id: thread.ID(i), deadline: Tick(rng.Intn(20))}
		in = append(in, a)
		q.Insert(a.id, a.deadline)
	}

	entries := q.Entries()
	require.Len(t, entries, len(in))
	seen := make(map[thread.ID]int, len(in))
	for i, a := range in {
		seen[a.id] = i
	}
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		require.LessOrEqual(t, prev.Deadline, cur.Deadline)
		if prev.Deadline == cur.Deadline {
			require.Less(t, seen[prev.Thread], seen[cur.Thread], "tie at %d out of arrival order", cur.Deadline)
		}
	}
}

func TestSleepQueueDrainIsProportionalToDue(t *testing.T) {
	q := NewSleepQueue(0)
	for i := 1; i <= 1000; i++ {
		q.Insert(thread.ID(i), Tick(i))
	}

	woken := q.DrainDue(3, nil)
	assert.Len(t, woken, 3)
	// Three due entries plus the one that stopped the scan.
	assert.Equal(t, uint64(4), q.Probes())

	q.DrainDue(3, woken[:0])
	assert.Equal(t, uint64(5), q.Probes())
}

func TestSleepQueueHandleGoesStale(t *testing.T) {
	q := NewSleepQueue(1)
	h := q.Insert(1, 4)
	assert.True(t, q.Pending(h))

	q.DrainDue(4, nil)
	assert.False(t, q.Pending(h))

	// Same slot, new generation.
	h2 := q.Insert(2, 9)
	assert.Equal(t, h.index, h2.index)
	assert.False(t, q.Pending(h))
	assert.True(t, q.Pending(h2))
	assert.False(t, q.Pending(Handle{index: 5}))
}

func TestSleepQueueSameThreadAfterWake(t *testing.T) {
	q := NewSleepQueue(2)
	q.Insert(1, 1)
	q.DrainDue(1, nil)
	assert.NotPanics(t, func() { q.Insert(1, 3) })
}

func TestSleepQueueDuplicateThreadPanics(t *testing.T) {
	q := NewSleepQueue(4)
	q.Insert(3, 5)
	assert.PanicsWithError(t, "kernel panic: thread 3 already has a pending wake request", func() {
		q.Insert(3, 6)
	})
}

func TestSleepQueueExhaustedPanics(t *testing.T) {
	q := NewSleepQueue(2)
	q.Insert(1, 5)
	q.Insert(2, 5)
	assert.Equal(t, 2, q.Cap())
	assert.PanicsWithError(t, "kernel panic: sleep queue exhausted: 2 requests pending", func() {
		q.Insert(3, 5)
	})
}
