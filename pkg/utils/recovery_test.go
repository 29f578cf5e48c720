package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

// setupTestLogger sets up a test logger and restores the original on cleanup
func setupTestLogger(t *testing.T) {
	originalLogger := logger.Log
	logger.Log = zaptest.NewLogger(t)
	t.Cleanup(func() { logger.Log = originalLogger })
}

func TestSafeGo(t *testing.T) {
	setupTestLogger(t)

	done := make(chan struct{})
	SafeGo(func() { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("function did not execute in time")
	}

	recovered := make(chan interface{}, 1)
	SafeGo(func() {
		panic("test panic")
	}, func(r interface{}, stack []byte) {
		assert.NotEmpty(t, stack)
		recovered <- r
	})

	select {
	case r := <-recovered:
		assert.Equal(t, "test panic", r)
	case <-time.After(time.Second):
		t.Fatal("panic was not recovered in time")
	}
}

func TestSafeGo_DefaultHandlerLogs(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	originalLogger := logger.Log
	logger.Log = zap.New(core)
	t.Cleanup(func() { logger.Log = originalLogger })

	SafeGo(func() { panic("boom") }, nil)

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("[panic] Recovered from panic in goroutine").Len() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWrapWithContextRecovery(t *testing.T) {
	setupTestLogger(t)
	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	wrappedNormal := WrapWithContextRecovery(func(ctx context.Context) error { return nil })
	assert.NoError(t, wrappedNormal(ctx))

	expected := errors.New("publish failed")
	wrappedErr := WrapWithContextRecovery(func(ctx context.Context) error { return expected })
	assert.ErrorIs(t, wrappedErr(ctx), expected)

	wrappedPanic := WrapWithContextRecovery(func(ctx context.Context) error { panic("context panic") })
	err := wrappedPanic(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic recovered: context panic")
}
