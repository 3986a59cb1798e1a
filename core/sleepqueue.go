package core

import (
	"math"

	"ticksleep/debug"
	"ticksleep/thread"
)

const nilIndex int32 = -1

// Handle refers to one wake request in a SleepQueue. A handle goes stale
// once its request has been drained, even if the slot is reused.
type Handle struct {
	index int32
	gen   uint32
}

// Entry is a pending wake request as reported by SleepQueue.Entries.
type Entry struct {
	Thread   thread.ID
	Deadline Tick
}

// request is one slot of the queue's arena. Slots are linked in deadline
// order through prev/next indices; unused slots sit on the free list.
type request struct {
	thread   thread.ID
	deadline Tick
	prev     int32
	next     int32
	gen      uint32
	live     bool
}

// SleepQueue holds sleeping threads sorted by wake deadline, ties in
// arrival order. All methods must be called with interrupts masked or from
// the timer interrupt.
type SleepQueue struct {
	slots []request
	free  []int32
	head  int32
	tail  int32
	n     int
	limit int

	pending map[thread.ID]int32
	probes  uint64
}

// NewSleepQueue returns an empty queue holding at most limit requests.
// A limit of zero or less means unbounded.
func NewSleepQueue(limit int) *SleepQueue {
	q := &SleepQueue{
		head:    nilIndex,
		tail:    nilIndex,
		limit:   limit,
		pending: make(map[thread.ID]int32),
	}
	if limit > 0 {
		q.slots = make([]request, 0, limit)
		q.free = make([]int32, 0, limit)
	}
	return q
}

// Insert queues a wake request for id at deadline.
func (q *SleepQueue) Insert(id thread.ID, deadline Tick) Handle {
	if _, dup := q.pending[id]; dup {
		debug.Panic("thread %d already has a pending wake request", id)
	}

	idx := q.alloc()
	r := &q.slots[idx]
	r.thread = id
	r.deadline = deadline
	r.live = true

	// Scan back from the tail; stopping at the first entry <= deadline
	// keeps equal deadlines in arrival order.
	at := q.tail
	for at != nilIndex && q.slots[at].deadline > deadline {
		at = q.slots[at].prev
	}
	q.linkAfter(at, idx)

	q.pending[id] = idx
	q.n++
	return Handle{index: idx, gen: r.gen}
}

// DrainDue removes every request with deadline <= now, earliest first, and
// appends the woken thread IDs to woken. Each request is unlinked and its
// slot reclaimed before the next one is looked at; the scan stops at the
// first request that is not yet due.
func (q *SleepQueue) DrainDue(now Tick, woken []thread.ID) []thread.ID {
	last := Tick(math.MinInt64)
	for q.head != nilIndex {
		q.probes++
		idx := q.head
		r := &q.slots[idx]
		if r.deadline > now {
			break
		}
		debug.Assert(r.deadline >= last, "sleep queue out of order: deadline %d after %d", r.deadline, last)
		last = r.deadline

		id := r.thread
		q.unlink(idx)
		q.release(idx)
		delete(q.pending, id)
		q.n--
		woken = append(woken, id)
	}
	return woken
}

// IsEmpty reports whether no thread is sleeping.
func (q *SleepQueue) IsEmpty() bool {
	return q.head == nilIndex
}

// Len returns the number of pending requests.
func (q *SleepQueue) Len() int {
	return q.n
}

// Cap returns the request limit, or zero if unbounded.
func (q *SleepQueue) Cap() int {
	if q.limit <= 0 {
		return 0
	}
	return q.limit
}

// Pending reports whether the request behind h is still queued.
func (q *SleepQueue) Pending(h Handle) bool {
	if h.index < 0 || int(h.index) >= len(q.slots) {
		return false
	}
	r := &q.slots[h.index]
	return r.live && r.gen == h.gen
}

// Probes returns how many queue entries drains have examined in total.
func (q *SleepQueue) Probes() uint64 {
	return q.probes
}

// Entries returns the pending requests in wake order.
func (q *SleepQueue) Entries() []Entry {
	out := make([]Entry, 0, q.n)
	for i := q.head; i != nilIndex; i = q.slots[i].next {
		out = append(out, Entry{Thread: q.slots[i].thread, Deadline: q.slots[i].deadline})
	}
	return out
}

// Deadlines returns the pending deadlines in wake order.
func (q *SleepQueue) Deadlines() []Tick {
	out := make([]Tick, 0, q.n)
	for i := q.head; i != nilIndex; i = q.slots[i].next {
		out = append(out, q.slots[i].deadline)
	}
	return out
}

func (q *SleepQueue) alloc() int32 {
	if n := len(q.free); n > 0 {
		idx := q.free[n-1]
		q.free = q.free[:n-1]
		return idx
	}
	if q.limit > 0 && len(q.slots) >= q.limit {
		debug.Panic("sleep queue exhausted: %d requests pending", q.n)
	}
	q.slots = append(q.slots, request{})
	return int32(len(q.slots) - 1)
}

func (q *SleepQueue) release(idx int32) {
	r := &q.slots[idx]
	r.gen++
	r.live = false
	r.thread = thread.NoID
	r.prev = nilIndex
	r.next = nilIndex
	q.free = append(q.free, idx)
}

// linkAfter links idx after at, or at the head when at is nilIndex.
func (q *SleepQueue) linkAfter(at, idx int32) {
	r := &q.slots[idx]
	if at == nilIndex {
		r.prev = nilIndex
		r.next = q.head
		if q.head != nilIndex {
			q.slots[q.head].prev = idx
		} else {
			q.tail = idx
		}
		q.head = idx
		return
	}

	r.prev = at
	r.next = q.slots[at].next
	if r.next != nilIndex {
		q.slots[r.next].prev = idx
	} else {
		q.tail = idx
	}
	q.slots[at].next = idx
}

func (q *SleepQueue) unlink(idx int32) {
	r := &q.slots[idx]
	if r.prev != nilIndex {
		q.slots[r.prev].next = r.next
	} else {
		q.head = r.next
	}
	if r.next != nilIndex {
		q.slots[r.next].prev = r.prev
	} else {
		q.tail = r.prev
	}
}
