// Package app wires the kernel together with fx.
package app

import (
	"context"

	"github.com/uber-go/tally"
	uber_config "go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"ticksleep/alarm"
	"ticksleep/config"
	"ticksleep/core"
	"ticksleep/debug"
	"ticksleep/host/tick"
	"ticksleep/internal/logging"
	"ticksleep/intr"
	"ticksleep/thread"
)

// Module defines the ticksleep application.
var Module = fx.Options(
	fx.Provide(func() (uber_config.Provider, error) {
		return config.NewProvider()
	}),
	fx.Provide(config.New),
	fx.Provide(newLogger),
	fx.Provide(newScope),
	fx.Provide(newController),
	fx.Provide(newScheduler),
	fx.Provide(newTimer),
	fx.Provide(newTickSource),
	fx.Provide(newWorkload),
	fx.Provide(NewKernel),
	fx.Invoke(register),
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	debug.SetLogger(log.Named("debug"))
	return log, nil
}

func newScope(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) tally.Scope {
	rs, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:   cfg.Metrics.Prefix,
		Tags:     map[string]string{"workload": cfg.Workload.Name},
		Reporter: newLogReporter(log.Named("metrics")),
	}, cfg.Metrics.ReportInterval)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closer.Close()
		},
	})

	return rs
}

func newController(cfg config.Config) *intr.Controller {
	return intr.New(intr.WithMaxPending(cfg.Timer.MaxPendingTicks))
}

func newScheduler(ic *intr.Controller, log *zap.Logger) *thread.Scheduler {
	return thread.New(ic, thread.WithLogger(log.Named("thread")))
}

func newTimer(ic *intr.Controller, sched *thread.Scheduler, cfg config.Config, log *zap.Logger, scope tally.Scope) (*core.Timer, error) {
	tm, err := core.New(ic, sched, cfg.Timer.Config,
		core.WithLogger(log.Named("timer")),
		core.WithScope(scope))
	if err != nil {
		return nil, err
	}
	tm.Init()
	debug.SetPanicHook(func(*debug.KernelPanic) {
		tm.DumpEvents()
	})
	return tm, nil
}

func newTickSource(cfg config.Config, ic *intr.Controller, log *zap.Logger) (tick.Source, error) {
	return tick.New(cfg.Tick, ic, cfg.Timer.Frequency, log.Named("tick"))
}

func newWorkload(cfg config.Config, tm *core.Timer, log *zap.Logger) (*alarm.Workload, error) {
	return alarm.New(cfg.Workload, tm, log.Named("alarm"))
}

func register(lc fx.Lifecycle, k *Kernel, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			k.Start(shutdowner)
			return nil
		},
		OnStop: k.Stop,
	})
}
