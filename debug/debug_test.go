package debug

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func recoverPanic(fn func()) (v any) {
	defer func() { v = recover() }()
	fn()
	return nil
}

func TestAssertPasses(t *testing.T) {
	assert.NotPanics(t, func() { Assert(true, "never") })
}

func TestAssertPanicsWithKernelPanic(t *testing.T) {
	v := recoverPanic(func() { Assert(1 == 2, "want %d", 7) })
	require.NotNil(t, v)

	err, ok := v.(error)
	require.True(t, ok)

	var kp *KernelPanic
	require.True(t, errors.As(err, &kp))
	assert.Equal(t, "assertion failed: want 7", kp.Msg)
	assert.Equal(t, "kernel panic: assertion failed: want 7", err.Error())
}

func TestPanicLogsAndRunsHookOnce(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	var calls int
	SetPanicHook(func(p *KernelPanic) { calls++ })
	defer SetPanicHook(nil)

	assert.Panics(t, func() { Panic("first") })
	assert.Panics(t, func() { Panic("second") })

	assert.Equal(t, 1, calls)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "first", logs.All()[0].ContextMap()["reason"])
}
