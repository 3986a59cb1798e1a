// Package tick drives the timer interrupt line from the host.
package tick

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"ticksleep/host/serial"
	"ticksleep/intr"
)

// Source names accepted by New.
const (
	SourceTicker = "ticker"
	SourceSerial = "serial"
)

// Raiser signals interrupts. *intr.Controller implements it.
type Raiser interface {
	Raise(vec intr.Vector)
}

// Source raises the timer vector once per tick until ctx is done.
type Source interface {
	Run(ctx context.Context) error
}

// Config selects and configures the tick source.
type Config struct {
	Source string `yaml:"source"`

	// Framing is FramingRaw (one byte per tick) or FramingFrame. A frame
	// count above the controller's pending bound loses the excess ticks.
	Framing       string `yaml:"framing"`
	serial.Config `yaml:",inline"`
}

// Ticker raises a tick at a fixed rate from a time.Ticker.
type Ticker struct {
	raiser Raiser
	period time.Duration
	log    *zap.Logger
}

// NewTicker returns a source ticking hz times per second.
func NewTicker(r Raiser, hz int, log *zap.Logger) *Ticker {
	return &Ticker{
		raiser: r,
		period: time.Second / time.Duration(hz),
		log:    log,
	}
}

// Run ticks until ctx is done. It always returns ctx.Err().
func (t *Ticker) Run(ctx context.Context) error {
	t.log.Info("tick source started", zap.String("source", SourceTicker), zap.Duration("period", t.period))
	tk := time.NewTicker(t.period)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
			t.raiser.Raise(intr.VectorTimer)
		}
	}
}

// Serial raises ticks read from a serial port: one per byte, or the
// counts carried by tick frames.
type Serial struct {
	raiser Raiser
	port   serial.Port
	log    *zap.Logger
	buf    []byte
	frames *frameDecoder
}

// NewSerial returns a source raising one tick per byte read from port.
// Run closes the port.
func NewSerial(r Raiser, port serial.Port, log *zap.Logger) *Serial {
	return &Serial{
		raiser: r,
		port:   port,
		log:    log,
		buf:    make([]byte, frameMaxLen),
	}
}

// NewFramedSerial returns a source decoding tick frames from port.
func NewFramedSerial(r Raiser, port serial.Port, log *zap.Logger) *Serial {
	s := NewSerial(r, port, log)
	s.frames = newFrameDecoder()
	return s
}

// Run reads ticks until ctx is done or the port fails. A read that times
// out with no data returns io.EOF and is retried.
func (s *Serial) Run(ctx context.Context) error {
	s.log.Info("tick source started", zap.String("source", SourceSerial))
	if err := s.port.Flush(); err != nil {
		s.log.Warn("failed to flush tick port", zap.Error(err))
	}

	stop := context.AfterFunc(ctx, func() {
		s.port.Close()
	})
	defer func() {
		if stop() {
			s.port.Close()
		}
		if s.frames != nil {
			s.log.Info("tick frames",
				zap.Uint64("bad", s.frames.bad),
				zap.Uint64("sequenceGaps", s.frames.gap))
		}
	}()

	for {
		n, err := s.port.Read(s.buf)
		ticks := uint64(n)
		if s.frames != nil {
			ticks = s.frames.feed(s.buf[:n])
		}
		for ; ticks > 0; ticks-- {
			s.raiser.Raise(intr.VectorTimer)
		}
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil && !errors.Is(err, io.EOF):
			return fmt.Errorf("tick port read: %w", err)
		}
	}
}

// New builds the source named by cfg.Source.
func New(cfg Config, r Raiser, hz int, log *zap.Logger) (Source, error) {
	switch cfg.Source {
	case "", SourceTicker:
		return NewTicker(r, hz, log), nil
	case SourceSerial:
		port, err := serial.Open(cfg.Config)
		if err != nil {
			return nil, err
		}
		switch cfg.Framing {
		case "", FramingRaw:
			return NewSerial(r, port, log), nil
		case FramingFrame:
			return NewFramedSerial(r, port, log), nil
		}
		port.Close()
		return nil, fmt.Errorf("unknown tick framing %q", cfg.Framing)
	default:
		return nil, fmt.Errorf("unknown tick source %q", cfg.Source)
	}
}
