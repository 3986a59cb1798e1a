// Package thread is a cooperative, single-CPU thread scheduler.
//
// Every thread runs on its own goroutine, but only the goroutine holding
// the CPU executes kernel code. The CPU is handed to the next thread by a
// send on that thread's run channel, after which the previous owner parks
// on its own channel. The interrupt mask travels with the CPU: a thread
// that switches away with interrupts masked is resumed by another thread's
// masked section, which restores the level on its way out.
package thread

// ID identifies a thread. IDs are never reused.
type ID uint32

// NoID is the zero ID; no thread has it.
const NoID ID = 0

// State is a thread's run state.
type State uint8

const (
	Running State = iota
	Ready
	Blocked
	Dying
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Blocked:
		return "blocked"
	case Dying:
		return "dying"
	default:
		return "unknown"
	}
}

// Func is a thread body.
type Func func(*Thread)

// Thread is a kernel thread.
type Thread struct {
	id    ID
	name  string
	state State
	fn    Func
	run   chan struct{}
}

// ID returns the thread's identity.
func (t *Thread) ID() ID { return t.id }

// Name returns the name given at spawn time.
func (t *Thread) Name() string { return t.name }
