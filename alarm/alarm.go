// Package alarm runs sleeping-thread workloads against the timer and
// checks that every thread woke in order and never before its deadline.
package alarm

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"ticksleep/core"
	"ticksleep/thread"
)

// Workload names.
const (
	Single       = "single"
	Multiple     = "multiple"
	Simultaneous = "simultaneous"
	Zero         = "zero"
	Negative     = "negative"
)

// Lead is how many ticks after Start the first deadline is counted from,
// so every thread is asleep before the first one wakes.
const Lead = 100

type preset struct {
	threads    int
	iterations int
}

var presets = map[string]preset{
	Single:       {threads: 5, iterations: 1},
	Multiple:     {threads: 5, iterations: 7},
	Simultaneous: {threads: 3, iterations: 5},
	Zero:         {threads: 1, iterations: 1},
	Negative:     {threads: 1, iterations: 1},
}

// Names returns the known workload names, sorted.
func Names() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config selects a workload. Zero Threads or Iterations use the
// workload's own defaults.
type Config struct {
	Name       string `yaml:"name"`
	Threads    int    `yaml:"threads"`
	Iterations int    `yaml:"iterations"`
}

// Validate checks the workload name and counts.
func (c Config) Validate() error {
	if _, ok := presets[c.Name]; !ok {
		return fmt.Errorf("unknown workload %q", c.Name)
	}
	if c.Threads < 0 || c.Iterations < 0 {
		return fmt.Errorf("negative thread or iteration count")
	}
	return nil
}

// Timer is the part of core.Timer a workload uses.
type Timer interface {
	Ticks() core.Tick
	Sleep(ticks int64)
}

// Spawner starts kernel threads. *thread.Scheduler implements it.
type Spawner interface {
	Spawn(name string, fn thread.Func) thread.ID
}

// Wake records one return from Sleep.
type Wake struct {
	Thread    int
	Iteration int
	Duration  int64
	Deadline  core.Tick
	Woke      core.Tick
}

// Workload is a set of threads sleeping on a fixed schedule.
type Workload struct {
	name       string
	threads    int
	iterations int

	timer Timer
	log   *zap.Logger

	start core.Tick
	wakes []Wake
}

// New returns the workload described by cfg.
func New(cfg Config, tm Timer, log *zap.Logger) (*Workload, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := presets[cfg.Name]
	if cfg.Threads > 0 {
		p.threads = cfg.Threads
	}
	if cfg.Iterations > 0 {
		p.iterations = cfg.Iterations
	}
	return &Workload{
		name:       cfg.Name,
		threads:    p.threads,
		iterations: p.iterations,
		timer:      tm,
		log:        log,
	}, nil
}

// Name returns the workload name.
func (w *Workload) Name() string {
	return w.name
}

// Start spawns the workload's threads on sp. It must be called before the
// scheduler runs or from a running thread.
func (w *Workload) Start(sp Spawner) {
	w.start = w.timer.Ticks() + Lead
	w.wakes = make([]Wake, 0, w.threads*w.iterations)
	w.log.Info("starting workload",
		zap.String("workload", w.name),
		zap.Int("threads", w.threads),
		zap.Int("iterations", w.iterations))

	for i := 0; i < w.threads; i++ {
		sp.Spawn(fmt.Sprintf("%s-%d", w.name, i), w.body(i))
	}
}

func (w *Workload) body(i int) thread.Func {
	switch w.name {
	case Zero:
		return func(*thread.Thread) { w.sleepFixed(i, 0) }
	case Negative:
		return func(*thread.Thread) { w.sleepFixed(i, -100) }
	case Simultaneous:
		return func(*thread.Thread) { w.sleepUntil(i, 10) }
	default:
		return func(*thread.Thread) { w.sleepUntil(i, int64(i+1)*10) }
	}
}

// sleepUntil wakes at start + iteration*duration for each iteration.
func (w *Workload) sleepUntil(i int, duration int64) {
	for iter := 1; iter <= w.iterations; iter++ {
		deadline := w.start + core.Tick(int64(iter)*duration)
		w.timer.Sleep(int64(deadline - w.timer.Ticks()))
		w.record(Wake{Thread: i, Iteration: iter, Duration: duration, Deadline: deadline, Woke: w.timer.Ticks()})
	}
}

func (w *Workload) sleepFixed(i int, ticks int64) {
	now := w.timer.Ticks()
	w.timer.Sleep(ticks)
	w.record(Wake{Thread: i, Iteration: 1, Duration: ticks, Deadline: now, Woke: w.timer.Ticks()})
}

// record runs on the CPU owner, so appends are serialized.
func (w *Workload) record(wk Wake) {
	w.wakes = append(w.wakes, wk)
	w.log.Debug("thread woke",
		zap.Int("thread", wk.Thread),
		zap.Int("iteration", wk.Iteration),
		zap.Int64("duration", wk.Duration),
		zap.Int64("deadline", int64(wk.Deadline)),
		zap.Int64("woke", int64(wk.Woke)))
}

// Wakes returns the recorded wakes in the order they happened.
func (w *Workload) Wakes() []Wake {
	return w.wakes
}

// Verify checks the recorded wakes once every thread has exited.
func (w *Workload) Verify() error {
	var err error
	want := w.threads * w.iterations
	if w.name == Zero || w.name == Negative {
		want = w.threads
	}
	if len(w.wakes) != want {
		err = multierr.Append(err, fmt.Errorf("%d wakes recorded, want %d", len(w.wakes), want))
	}

	var lastProduct int64
	lastThread := -1
	firstWoke := make(map[int]core.Tick)
	for _, wk := range w.wakes {
		if wk.Woke < wk.Deadline {
			err = multierr.Append(err, fmt.Errorf("thread %d iteration %d woke at tick %d, before deadline %d",
				wk.Thread, wk.Iteration, wk.Woke, wk.Deadline))
		}
		if wk.Duration <= 0 {
			continue
		}

		product := int64(wk.Iteration) * wk.Duration
		if product < lastProduct {
			err = multierr.Append(err, fmt.Errorf("thread %d iteration %d woke out of order: %d after %d",
				wk.Thread, wk.Iteration, product, lastProduct))
		}
		if w.name == Simultaneous && product == lastProduct && wk.Thread < lastThread {
			err = multierr.Append(err, fmt.Errorf("iteration %d: thread %d woke after thread %d",
				wk.Iteration, wk.Thread, lastThread))
		}
		if w.name == Simultaneous {
			if first, ok := firstWoke[wk.Iteration]; !ok {
				firstWoke[wk.Iteration] = wk.Woke
			} else if wk.Woke != first {
				err = multierr.Append(err, fmt.Errorf("iteration %d: thread %d woke at tick %d, not with the others at %d",
					wk.Iteration, wk.Thread, wk.Woke, first))
			}
		}
		lastProduct = product
		lastThread = wk.Thread
	}

	if err != nil {
		w.log.Error("workload failed", zap.String("workload", w.name), zap.Error(err))
		return err
	}
	w.log.Info("workload passed", zap.String("workload", w.name), zap.Int("wakes", len(w.wakes)))
	return nil
}
