// Package intr models the interrupt controller of a single-CPU kernel.
//
// Exactly one goroutine owns the CPU at any time. Devices running on other
// goroutines never call handlers directly: they Raise a vector, which marks
// it pending and rings the doorbell. Pending vectors are delivered on the
// CPU owner's goroutine whenever the interrupt level is On at an
// interrupt-enable point (Enable, SetLevel, Barrier). While a handler runs
// the level is Off, so code that masks interrupts is atomic with respect to
// every handler.
package intr

import (
	"sync/atomic"

	"ticksleep/debug"
)

// Level is the interrupt mask state.
type Level uint8

const (
	Off Level = iota // interrupts masked
	On               // interrupts delivered
)

func (l Level) String() string {
	if l == On {
		return "on"
	}
	return "off"
}

// Vector identifies an interrupt line.
type Vector uint8

const (
	// VectorTimer is the external timer interrupt line.
	VectorTimer Vector = 0x20

	numVectors = 0x30
)

// DefaultMaxPending bounds how many raises of one vector are latched
// before further raises are dropped.
const DefaultMaxPending = 8

// Frame describes the interrupt being handled.
type Frame struct {
	Vector Vector
	Name   string
}

// Handler services one interrupt. It runs with interrupts masked and must
// never block.
type Handler func(*Frame)

type vector struct {
	handler Handler
	name    string
	pending atomic.Uint32
	lost    atomic.Uint64
}

// Controller is the interrupt controller.
type Controller struct {
	// level and inHandler belong to the CPU owner.
	level     Level
	inHandler bool

	vectors    [numVectors]vector
	frame      Frame
	maxPending uint32
	raised     atomic.Bool
	doorbell   chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxPending overrides DefaultMaxPending.
func WithMaxPending(n uint32) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxPending = n
		}
	}
}

// New returns a controller with interrupts masked, as at boot.
func New(opts ...Option) *Controller {
	c := &Controller{
		level:      Off,
		maxPending: DefaultMaxPending,
		doorbell:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs the handler for an external interrupt vector.
func (c *Controller) Register(vec Vector, name string, h Handler) {
	debug.Assert(int(vec) < numVectors, "vector %#x out of range", vec)
	debug.Assert(h != nil, "nil handler for vector %#x", vec)
	v := &c.vectors[vec]
	debug.Assert(v.handler == nil, "vector %#x already registered to %s", vec, v.name)
	v.handler = h
	v.name = name
}

// Level returns the current interrupt level.
func (c *Controller) Level() Level {
	return c.level
}

// InContext reports whether the CPU is executing an interrupt handler.
func (c *Controller) InContext() bool {
	return c.inHandler
}

// Disable masks interrupts and returns the previous level.
func (c *Controller) Disable() Level {
	old := c.level
	c.level = Off
	return old
}

// Enable unmasks interrupts, delivers anything pending and returns the
// previous level.
func (c *Controller) Enable() Level {
	debug.Assert(!c.inHandler, "interrupts enabled inside a handler")
	old := c.level
	c.level = On
	c.deliver()
	return old
}

// SetLevel restores a level returned by Disable or Enable.
func (c *Controller) SetLevel(l Level) Level {
	if l == On {
		return c.Enable()
	}
	return c.Disable()
}

// Barrier is an instruction boundary: if interrupts are on, pending
// interrupts are delivered before returning.
func (c *Controller) Barrier() {
	if c.level == On && c.raised.Load() {
		c.deliver()
	}
}

// Raise signals an interrupt on vec. It is safe to call from any goroutine
// and never blocks. Raises beyond the pending bound are counted as lost.
func (c *Controller) Raise(vec Vector) {
	v := &c.vectors[vec]
	for {
		n := v.pending.Load()
		if n >= c.maxPending {
			v.lost.Add(1)
			break
		}
		if v.pending.CompareAndSwap(n, n+1) {
			break
		}
	}
	c.raised.Store(true)
	select {
	case c.doorbell <- struct{}{}:
	default:
	}
}

// Doorbell fires after Raise. The idle loop waits on it.
func (c *Controller) Doorbell() <-chan struct{} {
	return c.doorbell
}

// Pending returns the number of latched raises of vec.
func (c *Controller) Pending(vec Vector) uint32 {
	return c.vectors[vec].pending.Load()
}

// Lost returns the number of raises of vec dropped because too many were
// already pending.
func (c *Controller) Lost(vec Vector) uint64 {
	return c.vectors[vec].lost.Load()
}

func (c *Controller) deliver() {
	for c.raised.Swap(false) {
		for i := range c.vectors {
			v := &c.vectors[i]
			for v.pending.Load() > 0 {
				v.pending.Add(^uint32(0))
				if v.handler == nil {
					continue
				}
				c.dispatch(Vector(i), v)
			}
		}
	}
}

func (c *Controller) dispatch(vec Vector, v *vector) {
	c.level = Off
	c.inHandler = true
	c.frame = Frame{Vector: vec, Name: v.name}
	v.handler(&c.frame)
	c.inHandler = false
	c.level = On
}
