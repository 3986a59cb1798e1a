// Package debug provides the kernel's fatal-error path.
//
// Kernel code never returns errors for conditions that indicate a defect:
// it asserts, and a failed assertion halts with a diagnostic.
package debug

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// KernelPanic is the value carried by a kernel panic.
type KernelPanic struct {
	Msg string
}

func (p *KernelPanic) Error() string {
	return "kernel panic: " + p.Msg
}

// PanicHook is invoked with the panic before the goroutine unwinds.
type PanicHook func(*KernelPanic)

var (
	logger atomic.Pointer[zap.Logger]

	hookMu   sync.Mutex
	hook     PanicHook
	hookOnce sync.Once
)

// SetLogger installs the logger used to report kernel panics.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

// SetPanicHook installs a process-wide panic hook.
//
// The hook runs at most once, on the first panic. It must not panic.
func SetPanicHook(fn PanicHook) {
	hookMu.Lock()
	defer hookMu.Unlock()
	hook = fn
	hookOnce = sync.Once{}
}

// Panic reports a fatal kernel condition and panics with a *KernelPanic.
func Panic(format string, args ...any) {
	p := &KernelPanic{Msg: fmt.Sprintf(format, args...)}
	if l := logger.Load(); l != nil {
		l.Error("kernel panic", zap.String("reason", p.Msg), zap.Stack("stack"))
	}

	hookMu.Lock()
	fn := hook
	once := &hookOnce
	hookMu.Unlock()
	if fn != nil {
		once.Do(func() { fn(p) })
	}
	panic(p)
}

// Assert panics if cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		Panic("assertion failed: "+format, args...)
	}
}
