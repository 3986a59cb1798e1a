package core

import (
	"ticksleep/debug"
	"ticksleep/intr"
)

// Tick is a count of timer interrupts since boot.
type Tick int64

// Clock counts timer interrupts. Only the timer interrupt advances it.
type Clock struct {
	intr  *intr.Controller
	ticks Tick
}

// NewClock returns a clock at tick zero.
func NewClock(ic *intr.Controller) *Clock {
	return &Clock{intr: ic}
}

func (c *Clock) advance() {
	debug.Assert(c.intr.InContext(), "clock advanced outside the timer interrupt")
	c.ticks++
}

// Now returns the number of ticks since boot.
func (c *Clock) Now() Tick {
	old := c.intr.Disable()
	t := c.ticks
	c.intr.SetLevel(old)
	return t
}

// Elapsed returns the ticks elapsed since then, a value once returned by Now.
func (c *Clock) Elapsed(then Tick) Tick {
	return c.Now() - then
}
