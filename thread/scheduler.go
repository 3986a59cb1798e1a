package thread

import (
	"context"

	"go.uber.org/zap"

	"ticksleep/debug"
	"ticksleep/intr"
)

// Stats counts timer ticks by what the CPU was doing when they arrived.
type Stats struct {
	IdleTicks   int64
	KernelTicks int64
	Spawned     int
	Exited      int
}

// Scheduler runs threads in FIFO order on one CPU.
type Scheduler struct {
	intr *intr.Controller
	log  *zap.Logger

	all     []*Thread // index is ID-1
	ready   []*Thread
	current *Thread
	idle    *Thread
	live    int

	stats Stats
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// New creates a scheduler driven by the given interrupt controller.
func New(ic *intr.Controller, opts ...Option) *Scheduler {
	s := &Scheduler{
		intr: ic,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.idle = s.newThread("idle", nil)
	s.idle.state = Running
	s.current = s.idle
	return s
}

func (s *Scheduler) newThread(name string, fn Func) *Thread {
	t := &Thread{
		id:   ID(len(s.all) + 1),
		name: name,
		fn:   fn,
		run:  make(chan struct{}, 1),
	}
	s.all = append(s.all, t)
	return t
}

// Spawn creates a ready thread. It may be called before Run or from a
// running thread.
func (s *Scheduler) Spawn(name string, fn Func) ID {
	debug.Assert(fn != nil, "spawn %q with nil body", name)
	debug.Assert(!s.intr.InContext(), "spawn from interrupt context")

	old := s.intr.Disable()
	t := s.newThread(name, fn)
	t.state = Ready
	s.live++
	s.stats.Spawned++
	s.ready = append(s.ready, t)
	go s.start(t)
	s.intr.SetLevel(old)

	s.log.Debug("thread spawned", zap.Uint32("tid", uint32(t.id)), zap.String("name", name))
	return t.id
}

func (s *Scheduler) start(t *Thread) {
	<-t.run
	s.intr.Enable()
	t.fn(t)

	s.intr.Disable()
	t.state = Dying
	s.live--
	s.stats.Exited++
	s.log.Debug("thread exited", zap.Uint32("tid", uint32(t.id)), zap.String("name", t.name))
	s.schedule()
}

// Run turns the calling goroutine into the idle thread and runs until
// every spawned thread has exited or ctx is done. Threads still blocked
// when ctx ends stay parked.
func (s *Scheduler) Run(ctx context.Context) error {
	debug.Assert(s.current == s.idle, "scheduler already running")
	for {
		s.intr.Enable()
		if len(s.ready) > 0 {
			s.intr.Disable()
			s.idle.state = Ready
			s.schedule()
			continue
		}
		if s.live == 0 {
			s.intr.Disable()
			return nil
		}
		select {
		case <-s.intr.Doorbell():
		case <-ctx.Done():
			s.intr.Disable()
			return ctx.Err()
		}
	}
}

// Current returns the running thread.
func (s *Scheduler) Current() ID {
	return s.current.id
}

// Block puts the running thread to sleep until Unblock. The caller must be
// the thread itself and must have interrupts masked.
func (s *Scheduler) Block(id ID) {
	debug.Assert(!s.intr.InContext(), "block from interrupt context")
	debug.Assert(s.intr.Level() == intr.Off, "block with interrupts on")
	t := s.current
	debug.Assert(t.id == id, "thread %d blocked by thread %d", id, t.id)
	debug.Assert(t != s.idle, "idle thread cannot block")

	t.state = Blocked
	s.schedule()
}

// Unblock makes a blocked thread ready. It does not preempt the running
// thread and may be called from interrupt context.
func (s *Scheduler) Unblock(id ID) {
	debug.Assert(s.intr.Level() == intr.Off, "unblock with interrupts on")
	t := s.lookup(id)
	debug.Assert(t.state == Blocked, "unblock of thread %d in state %s", id, t.state)

	t.state = Ready
	s.ready = append(s.ready, t)
}

// Yield gives up the CPU without blocking.
func (s *Scheduler) Yield() {
	debug.Assert(!s.intr.InContext(), "yield from interrupt context")

	old := s.intr.Disable()
	cur := s.current
	if cur != s.idle {
		cur.state = Ready
		s.ready = append(s.ready, cur)
	}
	s.schedule()
	s.intr.SetLevel(old)
}

// Tick accounts one timer tick. Called from the timer interrupt.
func (s *Scheduler) Tick() {
	if s.current == s.idle {
		s.stats.IdleTicks++
	} else {
		s.stats.KernelTicks++
	}
}

// State returns the run state of a thread.
func (s *Scheduler) State(id ID) State {
	return s.lookup(id).state
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return s.stats
}

// PrintStats logs the scheduler counters.
func (s *Scheduler) PrintStats() {
	s.log.Info("thread stats",
		zap.Int64("idleTicks", s.stats.IdleTicks),
		zap.Int64("kernelTicks", s.stats.KernelTicks),
		zap.Int("spawned", s.stats.Spawned),
		zap.Int("exited", s.stats.Exited))
}

func (s *Scheduler) lookup(id ID) *Thread {
	debug.Assert(id != NoID && int(id) <= len(s.all), "no thread %d", id)
	return s.all[id-1]
}

// schedule hands the CPU to the next ready thread, or to the idle thread
// when none is ready. Interrupts must be off and the current thread must
// already have left the Running state.
func (s *Scheduler) schedule() {
	debug.Assert(s.intr.Level() == intr.Off, "schedule with interrupts on")
	prev := s.current
	debug.Assert(prev.state != Running, "schedule from running thread %d", prev.id)

	next := s.idle
	if len(s.ready) > 0 {
		next = s.ready[0]
		s.ready[0] = nil
		s.ready = s.ready[1:]
	}
	next.state = Running
	if next == prev {
		return
	}

	dying := prev.state == Dying
	s.current = next
	next.run <- struct{}{}
	if dying {
		return
	}
	<-prev.run
}
