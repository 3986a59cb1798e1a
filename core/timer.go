package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"ticksleep/debug"
	"ticksleep/intr"
	"ticksleep/thread"
)

// Timer frequency bounds, in interrupts per second.
const (
	// MinFrequency is the slowest rate at which tick-granularity sleeps
	// remain useful.
	MinFrequency = 19
	// MaxFrequency is the fastest recommended rate; faster clocks lose
	// ticks while interrupts are masked for busy-waits.
	MaxFrequency = 1000

	DefaultFrequency   = 100
	DefaultMaxSleepers = 64
)

// ErrFrequencyRange reports a timer frequency outside [MinFrequency, MaxFrequency].
var ErrFrequencyRange = errors.New("timer frequency out of range")

// ValidateFrequency checks hz against the supported range.
func ValidateFrequency(hz int) error {
	if hz < MinFrequency || hz > MaxFrequency {
		return fmt.Errorf("%w: %d Hz not in [%d, %d]", ErrFrequencyRange, hz, MinFrequency, MaxFrequency)
	}
	return nil
}

// Config holds the timer settings.
type Config struct {
	// Frequency is the timer interrupt rate in Hz.
	Frequency int `yaml:"frequency"`
	// MaxSleepers bounds the number of concurrently sleeping threads. Zero
	// selects DefaultMaxSleepers; a negative value leaves it unbounded.
	MaxSleepers int `yaml:"maxSleepers"`
	// LoopsPerTick presets the busy-wait calibration; zero leaves the
	// timer uncalibrated until Calibrate runs.
	LoopsPerTick uint64 `yaml:"loopsPerTick"`
	// EventRing enables the post-mortem event ring.
	EventRing bool `yaml:"eventRing"`
}

// Stats counts timer activity since boot.
type Stats struct {
	Ticks    Tick
	Sleeps   uint64
	Wakes    uint64
	Spurious uint64
	Drains   uint64
	Lost     uint64
}

type metrics struct {
	requests tally.Counter
	wakes    tally.Counter
	spurious tally.Counter
	ticks    tally.Counter
	drains   tally.Counter
	depth    tally.Gauge
}

func newMetrics(scope tally.Scope) metrics {
	sleep := scope.SubScope("sleep")
	tick := scope.SubScope("tick")
	return metrics{
		requests: sleep.Counter("requests"),
		wakes:    sleep.Counter("wakes"),
		spurious: sleep.Counter("spurious"),
		depth:    sleep.Gauge("queue_depth"),
		ticks:    tick.Counter("count"),
		drains:   tick.Counter("drains"),
	}
}

// Timer puts threads to sleep for a number of timer ticks and wakes them
// from the timer interrupt.
type Timer struct {
	cfg   Config
	intr  *intr.Controller
	sched Scheduler
	tick  func()

	clock *Clock
	queue *SleepQueue
	woken []thread.ID

	loopsPerTick uint64

	log     *zap.Logger
	scope   tally.Scope
	metrics metrics
	events  *EventRing
	stats   Stats
}

// Option configures a Timer.
type Option func(*Timer)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Timer) {
		t.log = l
	}
}

// WithScope overrides the default no-op metrics scope.
func WithScope(s tally.Scope) Option {
	return func(t *Timer) {
		t.scope = s
	}
}

// New creates a timer. Init must be called to attach it to the interrupt
// line.
func New(ic *intr.Controller, sched Scheduler, cfg Config, opts ...Option) (*Timer, error) {
	if cfg.Frequency == 0 {
		cfg.Frequency = DefaultFrequency
	}
	if err := ValidateFrequency(cfg.Frequency); err != nil {
		return nil, err
	}
	// Zero selects the default; a negative bound means unbounded.
	if cfg.MaxSleepers == 0 {
		cfg.MaxSleepers = DefaultMaxSleepers
	}

	t := &Timer{
		cfg:          cfg,
		intr:         ic,
		sched:        sched,
		clock:        NewClock(ic),
		queue:        NewSleepQueue(cfg.MaxSleepers),
		loopsPerTick: cfg.LoopsPerTick,
		log:          zap.NewNop(),
		scope:        tally.NoopScope,
	}
	if cfg.MaxSleepers > 0 {
		t.woken = make([]thread.ID, 0, cfg.MaxSleepers)
	}
	for _, opt := range opts {
		opt(t)
	}
	if ta, ok := sched.(tickAccounter); ok {
		t.tick = ta.Tick
	}
	if cfg.EventRing {
		t.events = &EventRing{}
	}
	t.metrics = newMetrics(t.scope)
	return t, nil
}

// Init attaches the timer interrupt handler to the timer vector.
func (t *Timer) Init() {
	t.intr.Register(intr.VectorTimer, "8254 Timer", t.interrupt)
	t.log.Info("timer initialized",
		zap.Int("hz", t.cfg.Frequency),
		zap.Int("maxSleepers", t.cfg.MaxSleepers))
}

// Frequency returns the timer interrupt rate in Hz.
func (t *Timer) Frequency() int {
	return t.cfg.Frequency
}

// Ticks returns the number of timer ticks since boot.
func (t *Timer) Ticks() Tick {
	return t.clock.Now()
}

// Elapsed returns the ticks elapsed since then, a value once returned by
// Ticks.
func (t *Timer) Elapsed(then Tick) Tick {
	return t.clock.Elapsed(then)
}

// Queue exposes the sleep queue for inspection. Callers must hold
// interrupts off while using it.
func (t *Timer) Queue() *SleepQueue {
	return t.queue
}

// Sleep suspends the calling thread for at least ticks timer ticks.
// Interrupts must be on. A non-positive count returns immediately.
func (t *Timer) Sleep(ticks int64) {
	if ticks <= 0 {
		return
	}
	debug.Assert(!t.intr.InContext(), "sleep from interrupt context")
	debug.Assert(t.intr.Level() == intr.On, "sleep with interrupts off")

	start := t.clock.Now()
	cur := t.sched.Current()

	old := t.intr.Disable()
	deadline := deadlineAfter(start, ticks)
	h := t.queue.Insert(cur, deadline)
	t.stats.Sleeps++
	t.metrics.requests.Inc(1)
	t.metrics.depth.Update(float64(t.queue.Len()))
	t.events.Record(EvtSleep, cur, start, int64(deadline))
	t.log.Debug("sleep",
		zap.Uint32("tid", uint32(cur)),
		zap.Int64("start", int64(start)),
		zap.Int64("deadline", int64(deadline)))

	for {
		t.sched.Block(cur)
		if !t.queue.Pending(h) {
			break
		}
		// Resumed by something other than the timer.
		t.stats.Spurious++
		t.metrics.spurious.Inc(1)
		t.events.Record(EvtSpurious, cur, t.clock.ticks, int64(deadline))
	}
	t.intr.SetLevel(old)

	for t.clock.Elapsed(start) < Tick(ticks) {
		t.sched.Yield()
	}
}

// deadlineAfter returns start+ticks, saturating at the largest Tick.
func deadlineAfter(start Tick, ticks int64) Tick {
	if ticks > int64(math.MaxInt64-start) {
		return math.MaxInt64
	}
	return start + Tick(ticks)
}

// interrupt is the timer interrupt handler.
func (t *Timer) interrupt(*intr.Frame) {
	t.clock.advance()
	t.metrics.ticks.Inc(1)
	if t.tick != nil {
		t.tick()
	}

	if t.queue.IsEmpty() {
		return
	}

	now := t.clock.ticks
	t.woken = t.queue.DrainDue(now, t.woken[:0])
	if len(t.woken) == 0 {
		return
	}

	t.stats.Drains++
	t.metrics.drains.Inc(1)
	for _, id := range t.woken {
		t.sched.Unblock(id)
		t.events.Record(EvtWake, id, now, 0)
	}
	n := uint64(len(t.woken))
	t.stats.Wakes += n
	t.metrics.wakes.Inc(int64(n))
	t.metrics.depth.Update(float64(t.queue.Len()))
	t.events.Record(EvtDrain, thread.NoID, now, int64(n))
}

// Stats returns the timer counters.
func (t *Timer) Stats() Stats {
	old := t.intr.Disable()
	s := t.stats
	s.Ticks = t.clock.ticks
	t.intr.SetLevel(old)
	s.Lost = t.intr.Lost(intr.VectorTimer)
	return s
}

// PrintStats logs the timer counters.
func (t *Timer) PrintStats() {
	s := t.Stats()
	t.log.Info("timer stats",
		zap.Int64("ticks", int64(s.Ticks)),
		zap.Uint64("sleeps", s.Sleeps),
		zap.Uint64("wakes", s.Wakes),
		zap.Uint64("spurious", s.Spurious),
		zap.Uint64("drains", s.Drains),
		zap.Uint64("lost", s.Lost))
}
