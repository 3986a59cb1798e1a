package core

import (
	"go.uber.org/zap"

	"ticksleep/debug"
	"ticksleep/intr"
)

// MDelay busy-waits for approximately ms milliseconds. Interrupts need not
// be on, but busy-waiting with them off for a tick or longer loses ticks;
// prefer MSleep when interrupts are on.
func (t *Timer) MDelay(ms int64) {
	t.realTimeDelay(ms, Milli)
}

// UDelay busy-waits for approximately us microseconds. See MDelay.
func (t *Timer) UDelay(us int64) {
	t.realTimeDelay(us, Micro)
}

// NDelay busy-waits for approximately ns nanoseconds. See MDelay.
func (t *Timer) NDelay(ns int64) {
	t.realTimeDelay(ns, Nano)
}

// LoopsPerTick returns the busy-wait calibration, zero if uncalibrated.
func (t *Timer) LoopsPerTick() uint64 {
	return t.loopsPerTick
}

// Calibrate measures how many busy-wait loops fit in one tick. Interrupts
// must be on and a tick source must be running.
func (t *Timer) Calibrate() uint64 {
	debug.Assert(t.intr.Level() == intr.On, "calibration with interrupts off")

	// Largest power of two still less than one tick.
	lpt := uint64(1) << 10
	for !t.tooManyLoops(lpt << 1) {
		lpt <<= 1
		debug.Assert(lpt != 0, "loops per tick overflow")
	}

	// Refine the next 8 bits.
	high := lpt
	for bit := high >> 1; bit != high>>10; bit >>= 1 {
		if !t.tooManyLoops(high | bit) {
			lpt |= bit
		}
	}

	t.loopsPerTick = lpt
	t.log.Info("timer calibrated",
		zap.Uint64("loopsPerTick", lpt),
		zap.Uint64("loopsPerSecond", lpt*uint64(t.cfg.Frequency)))
	return lpt
}

// tooManyLoops reports whether loops iterations take longer than a tick.
func (t *Timer) tooManyLoops(loops uint64) bool {
	start := t.clock.ticks
	for t.clock.ticks == start {
		t.intr.Barrier()
	}

	start = t.clock.ticks
	t.busyWait(int64(loops))

	t.intr.Barrier()
	return start != t.clock.ticks
}

func (t *Timer) busyWait(loops int64) {
	for ; loops > 0; loops-- {
		t.intr.Barrier()
	}
}

// realTimeDelay busy-waits for approximately num/denom seconds.
func (t *Timer) realTimeDelay(num, denom int64) {
	// Scale both by 1000 to keep the product from overflowing.
	debug.Assert(denom%1000 == 0, "delay denominator %d not a multiple of 1000", denom)
	t.busyWait(int64(t.loopsPerTick) * num / 1000 * int64(t.cfg.Frequency) / (denom / 1000))
}
