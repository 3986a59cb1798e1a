package app

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ticksleep/alarm"
	"ticksleep/core"
	"ticksleep/host/tick"
	"ticksleep/intr"
	"ticksleep/thread"
)

// Params are the kernel's dependencies.
type Params struct {
	fx.In

	Intr     *intr.Controller
	Sched    *thread.Scheduler
	Timer    *core.Timer
	Source   tick.Source
	Workload *alarm.Workload
	Logger   *zap.Logger
}

// Kernel boots the timer, runs the workload to completion and checks it.
type Kernel struct {
	intr     *intr.Controller
	sched    *thread.Scheduler
	timer    *core.Timer
	source   tick.Source
	workload *alarm.Workload
	log      *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewKernel constructs a kernel.
func NewKernel(p Params) *Kernel {
	return &Kernel{
		intr:     p.Intr,
		sched:    p.Sched,
		timer:    p.Timer,
		source:   p.Source,
		workload: p.Workload,
		log:      p.Logger,
	}
}

// Run drives the tick source and the CPU until the workload finishes, the
// tick source fails or ctx is done, then verifies the workload.
func (k *Kernel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := k.source.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return k.boot(gctx)
	})
	err := g.Wait()

	k.timer.PrintStats()
	k.sched.PrintStats()
	k.timer.DumpEvents()
	if err != nil {
		return err
	}
	return k.workload.Verify()
}

// boot runs on the goroutine that becomes the idle thread.
func (k *Kernel) boot(ctx context.Context) error {
	if k.timer.LoopsPerTick() == 0 {
		k.intr.Enable()
		k.timer.Calibrate()
		k.intr.Disable()
	}
	k.workload.Start(k.sched)
	return k.sched.Run(ctx)
}

// Start runs the kernel in the background and shuts the app down when it
// finishes, with exit code 1 on failure.
func (k *Kernel) Start(shutdowner fx.Shutdowner) {
	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	k.done = make(chan struct{})

	go func() {
		defer close(k.done)
		k.err = k.Run(ctx)

		code := 0
		if k.err != nil && !errors.Is(k.err, context.Canceled) {
			k.log.Error("kernel stopped", zap.Error(k.err))
			code = 1
		}
		if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
			k.log.Warn("shutdown failed", zap.Error(err))
		}
	}()
}

// Stop cancels a running kernel and waits for it to finish. Threads still
// asleep stay parked. Kernel failures are reported through the exit code,
// not here.
func (k *Kernel) Stop(ctx context.Context) error {
	if k.cancel == nil {
		return nil
	}
	k.cancel()
	select {
	case <-k.done:
		return nil
	case <-ctx.Done():
		return multierr.Append(errors.New("kernel did not stop"), ctx.Err())
	}
}

// Err returns the result of the last run once it has finished.
func (k *Kernel) Err() error {
	select {
	case <-k.done:
		return k.err
	default:
		return nil
	}
}
