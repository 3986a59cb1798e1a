package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ticksleep/intr"
)

func TestClockStartsAtZero(t *testing.T) {
	c := NewClock(intr.New())
	assert.Equal(t, Tick(0), c.Now())
	assert.Equal(t, Tick(0), c.Elapsed(0))
}

func TestClockAdvancesFromInterrupt(t *testing.T) {
	ic := intr.New()
	c := NewClock(ic)
	ic.Register(intr.VectorTimer, "test", func(*intr.Frame) { c.advance() })

	ic.Enable()
	for i := 0; i < 5; i++ {
		ic.Raise(intr.VectorTimer)
		ic.Barrier()
	}
	assert.Equal(t, Tick(5), c.Now())
	assert.Equal(t, Tick(3), c.Elapsed(2))
	assert.Equal(t, intr.On, ic.Level(), "Now restores the interrupt level")
}

func TestClockAdvanceOutsideInterruptPanics(t *testing.T) {
	c := NewClock(intr.New())
	assert.PanicsWithError(t, "kernel panic: assertion failed: clock advanced outside the timer interrupt", c.advance)
}
