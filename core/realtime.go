package core

import (
	"ticksleep/debug"
	"ticksleep/intr"
)

// Real-time unit denominators, in units per second.
const (
	Milli = 1000
	Micro = 1000 * 1000
	Nano  = 1000 * 1000 * 1000
)

// TicksFor converts num/denom seconds to timer ticks at hz, rounding
// toward zero.
//
//	(num / denom) s
//	---------------- = num * hz / denom ticks
//	1 s / hz ticks
//
// The whole and fractional seconds are scaled separately so the product
// cannot overflow for any num while hz <= denom.
func TicksFor(num, denom int64, hz int) int64 {
	h := int64(hz)
	return num/denom*h + num%denom*h/denom
}

// MSleep sleeps for approximately ms milliseconds. Interrupts must be on.
func (t *Timer) MSleep(ms int64) {
	t.realTimeSleep(ms, Milli)
}

// USleep sleeps for approximately us microseconds. Interrupts must be on.
func (t *Timer) USleep(us int64) {
	t.realTimeSleep(us, Micro)
}

// NSleep sleeps for approximately ns nanoseconds. Interrupts must be on.
func (t *Timer) NSleep(ns int64) {
	t.realTimeSleep(ns, Nano)
}

func (t *Timer) realTimeSleep(num, denom int64) {
	ticks := TicksFor(num, denom, t.cfg.Frequency)

	debug.Assert(t.intr.Level() == intr.On, "real-time sleep with interrupts off")
	if ticks > 0 {
		// At least one full tick: give up the CPU.
		t.Sleep(ticks)
		return
	}
	// Sub-tick: busy-wait for better accuracy.
	t.realTimeDelay(num, denom)
}
