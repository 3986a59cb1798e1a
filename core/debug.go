package core

import (
	"go.uber.org/zap"

	"ticksleep/thread"
)

// EventType identifies a recorded timer event.
type EventType uint8

// Event type codes
const (
	EvtSleep    EventType = iota + 1 // request queued; Value is the deadline
	EvtWake                          // thread unblocked by the timer
	EvtSpurious                      // thread resumed while still queued; Value is the deadline
	EvtDrain                         // drain finished; Value is the number woken
)

func (e EventType) String() string {
	switch e {
	case EvtSleep:
		return "SLEEP"
	case EvtWake:
		return "WAKE"
	case EvtSpurious:
		return "SPURIOUS"
	case EvtDrain:
		return "DRAIN"
	default:
		return "UNKNOWN"
	}
}

// Event captures one timer event for post-mortem analysis.
type Event struct {
	Type   EventType
	Thread thread.ID
	Tick   Tick
	Value  int64
}

// EventRingSize is the number of events kept.
const EventRingSize = 32

// EventRing keeps the most recent timer events. A nil ring records
// nothing.
type EventRing struct {
	buf  [EventRingSize]Event
	head uint8
	n    uint8
}

// Record stores an event, overwriting the oldest when full.
func (r *EventRing) Record(typ EventType, id thread.ID, at Tick, value int64) {
	if r == nil {
		return
	}
	r.buf[r.head] = Event{Type: typ, Thread: id, Tick: at, Value: value}
	r.head = (r.head + 1) % EventRingSize
	if r.n < EventRingSize {
		r.n++
	}
}

// Events returns the recorded events, oldest first.
func (r *EventRing) Events() []Event {
	if r == nil {
		return nil
	}
	out := make([]Event, 0, r.n)
	start := (r.head + EventRingSize - r.n) % EventRingSize
	for i := uint8(0); i < r.n; i++ {
		out = append(out, r.buf[(start+i)%EventRingSize])
	}
	return out
}

// Clear drops all recorded events.
func (r *EventRing) Clear() {
	if r == nil {
		return
	}
	*r = EventRing{}
}

// Events returns the timer's recorded events, oldest first.
func (t *Timer) Events() []Event {
	return t.events.Events()
}

// DumpEvents logs the event ring. Call it on shutdown or after a failure.
func (t *Timer) DumpEvents() {
	events := t.events.Events()
	t.log.Info("timer event dump", zap.Int("events", len(events)))
	for _, e := range events {
		t.log.Info(e.Type.String(),
			zap.Uint32("tid", uint32(e.Thread)),
			zap.Int64("tick", int64(e.Tick)),
			zap.Int64("value", e.Value))
	}
}
