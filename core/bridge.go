package core

import "ticksleep/thread"

//go:generate mockgen -destination=coremock/scheduler_mock.go -package=coremock ticksleep/core Scheduler

// Scheduler is the part of the thread subsystem the timer depends on.
type Scheduler interface {
	// Current returns the running thread.
	Current() thread.ID
	// Block suspends the running thread, which must be id, until Unblock.
	// Interrupts must be masked.
	Block(id thread.ID)
	// Unblock makes a blocked thread runnable. Safe from interrupt context.
	// Unblocking a thread that is not blocked is a fatal error.
	Unblock(id thread.ID)
	// Yield gives up the rest of the running thread's slice.
	Yield()
}

// tickAccounter is implemented by schedulers that keep per-tick statistics.
type tickAccounter interface {
	Tick()
}
