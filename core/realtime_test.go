package core

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticksleep/intr"
	"ticksleep/thread"
)

func TestTicksFor(t *testing.T) {
	tests := []struct {
		num, denom int64
		hz         int
		want       int64
	}{
		{num: 1000, denom: Milli, hz: 100, want: 100},
		{num: 25, denom: Milli, hz: 100, want: 2},
		{num: 9, denom: Milli, hz: 100, want: 0},
		{num: 1500, denom: Micro, hz: 1000, want: 1},
		{num: 999_999, denom: Nano, hz: 1000, want: 0},
		{num: 2_000_000_000, denom: Nano, hz: 19, want: 38},
		{num: -25, denom: Milli, hz: 100, want: -2},
		{num: math.MaxInt64, denom: Milli, hz: 1000, want: math.MaxInt64},
		{num: math.MaxInt64 / 2, denom: Micro, hz: 1000, want: math.MaxInt64 / 2 / 1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TicksFor(tt.num, tt.denom, tt.hz), "%d/%d s at %d Hz", tt.num, tt.denom, tt.hz)
	}
}

func TestMSleepUsesTicks(t *testing.T) {
	tm, ic, sched := newTestTimer(t, Config{Frequency: 100})
	ic.Enable()

	sched.EXPECT().Current().Return(thread.ID(1))
	sched.EXPECT().Block(thread.ID(1)).Do(func(thread.ID) { tick(ic, 3) })
	sched.EXPECT().Unblock(thread.ID(1))

	tm.MSleep(30)
	assert.Equal(t, Tick(3), tm.Ticks())
}

func TestSubTickSleepBusyWaits(t *testing.T) {
	// An uncalibrated timer turns sub-tick waits into no-ops, and none of
	// them may reach the scheduler.
	tm, ic, _ := newTestTimer(t, Config{Frequency: 100})
	ic.Enable()

	tm.MSleep(9)
	tm.USleep(500)
	tm.NSleep(1000)
	tm.MDelay(50)
	tm.UDelay(50)
	tm.NDelay(50)
	assert.True(t, tm.Queue().IsEmpty())
	assert.Zero(t, tm.Stats().Sleeps)
}

func TestDelayWithInterruptsOff(t *testing.T) {
	tm, ic, _ := newTestTimer(t, Config{Frequency: 100, LoopsPerTick: 64})
	require.Equal(t, intr.Off, ic.Level())
	assert.NotPanics(t, func() { tm.UDelay(100) })
}

func TestRealTimeSleepWithInterruptsOffPanics(t *testing.T) {
	tm, _, _ := newTestTimer(t, Config{})
	assert.PanicsWithError(t, "kernel panic: assertion failed: real-time sleep with interrupts off", func() {
		tm.USleep(1)
	})
}

func TestCalibrate(t *testing.T) {
	ic := intr.New()
	tm, err := New(ic, nil, Config{Frequency: 1000})
	require.NoError(t, err)
	tm.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		tk := time.NewTicker(time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				ic.Raise(intr.VectorTimer)
			}
		}
	}()

	ic.Enable()
	lpt := tm.Calibrate()
	assert.GreaterOrEqual(t, lpt, uint64(1)<<10)
	assert.Equal(t, lpt, tm.LoopsPerTick())
}
