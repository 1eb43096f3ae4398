package loop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephnangue/nxauth/logger"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockUpdater counts calls and returns scripted errors
type mockUpdater struct {
	Base

	initCalls   atomic.Int32
	updateCalls atomic.Int32

	updateFunc func(calls int32) error
	handleFunc func(err error) (Result, error)
}

func (m *mockUpdater) Init(ctx context.Context) (Result, error) {
	m.initCalls.Add(1)
	return OKSkipInterval, nil
}

func (m *mockUpdater) Update(ctx context.Context) error {
	calls := m.updateCalls.Add(1)
	if m.updateFunc != nil {
		return m.updateFunc(calls)
	}
	return nil
}

func (m *mockUpdater) HandleError(err error) (Result, error) {
	if m.handleFunc != nil {
		return m.handleFunc(err)
	}
	return m.Base.HandleError(err)
}

func testLog() logger.Logger {
	return logger.NewZerologLogger(logger.TestConfig())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// ============================================================================
// Loop
// ============================================================================

func TestLoop_RunOnce_InitRunsOnce(t *testing.T) {
	updater := &mockUpdater{}
	l := New(updater, time.Minute, testLog())
	ctx := context.Background()

	_, err := l.RunOnce(ctx)
	require.NoError(t, err)
	_, err = l.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), updater.initCalls.Load())
	assert.Equal(t, int32(2), updater.updateCalls.Load())
}

func TestLoop_RunOnce_RetryableErrorContinues(t *testing.T) {
	transient := errors.New("read tcp: connection reset by peer")
	updater := &mockUpdater{
		updateFunc: func(int32) error { return transient },
		handleFunc: func(err error) (Result, error) { return OK, nil },
	}
	l := New(updater, time.Minute, testLog())

	res, err := l.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OK, res)
}

func TestLoop_RunOnce_FatalErrorStops(t *testing.T) {
	fatal := errors.New("account revoked")
	updater := &mockUpdater{
		updateFunc: func(int32) error { return fatal },
	}
	l := New(updater, time.Minute, testLog())

	_, err := l.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, fatal, err)
}

func TestLoop_Wait_SkipResolvesImmediately(t *testing.T) {
	updater := &mockUpdater{}
	l := New(updater, time.Hour, testLog())

	// Get out of Idle so the skip is accepted
	_, err := l.RunOnce(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		l.Wait(context.Background())
		close(done)
	}()

	waitFor(t, func() bool { return l.State() == Waiting })
	l.SkipIntervalInCurrentLoop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not resolve after skip")
	}
}

func TestLoop_SkipWhileIdleIsNoop(t *testing.T) {
	updater := &mockUpdater{}
	l := New(updater, time.Hour, testLog())

	assert.Equal(t, Idle, l.State())
	l.SkipIntervalInCurrentLoop()

	// No skip was queued, so a later Wait really waits
	_, err := l.RunOnce(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestLoop_Wait_ContextCancel(t *testing.T) {
	updater := &mockUpdater{}
	l := New(updater, time.Hour, testLog())
	_, err := l.RunOnce(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

// ============================================================================
// EmbeddedLoop
// ============================================================================

func TestEmbedded_EnableDisable(t *testing.T) {
	updater := &mockUpdater{}
	e := NewEmbedded(updater, time.Hour, testLog())
	ctx := context.Background()

	e.Enable(ctx)
	waitFor(t, func() bool { return updater.updateCalls.Load() >= 1 })

	e.Disable()
	e.Join()

	assert.Equal(t, Idle, e.State())
	assert.NoError(t, e.Err())

	// First update plus the final flush on the way out
	assert.GreaterOrEqual(t, updater.updateCalls.Load(), int32(2))
}

func TestEmbedded_DoubleEnableIsIdempotent(t *testing.T) {
	block := make(chan struct{})
	updater := &mockUpdater{
		updateFunc: func(calls int32) error {
			if calls == 1 {
				<-block
			}
			return nil
		},
	}
	e := NewEmbedded(updater, time.Hour, testLog())
	ctx := context.Background()

	e.Enable(ctx)
	waitFor(t, func() bool { return updater.updateCalls.Load() == 1 })

	// Second Enable while running must not start another goroutine
	e.Enable(ctx)
	e.Enable(ctx)
	assert.Equal(t, int32(1), updater.updateCalls.Load())

	close(block)
	e.Disable()
	e.Join()
	assert.Equal(t, int32(1), updater.initCalls.Load())
}

func TestEmbedded_FatalErrorTerminates(t *testing.T) {
	fatal := errors.New("account revoked")
	updater := &mockUpdater{
		updateFunc: func(calls int32) error {
			if calls >= 2 {
				return fatal
			}
			return nil
		},
		handleFunc: func(err error) (Result, error) { return OK, err },
	}
	e := NewEmbedded(updater, time.Millisecond, testLog())

	e.Enable(context.Background())
	waitFor(t, func() bool { return e.Err() != nil })
	e.Join()

	assert.Equal(t, fatal, e.Err())
	assert.Equal(t, Idle, e.State())

	// A later Enable restarts cleanly and clears the recorded error
	updater.updateFunc = nil
	e.Enable(context.Background())
	waitFor(t, func() bool { return e.State() != Idle })
	assert.NoError(t, e.Err())
	e.Disable()
	e.Join()
}

func TestEmbedded_RetryableErrorKeepsRunning(t *testing.T) {
	transient := errors.New("connection reset by peer")
	updater := &mockUpdater{
		updateFunc: func(calls int32) error {
			if calls <= 3 {
				return transient
			}
			return nil
		},
		handleFunc: func(err error) (Result, error) { return OKSkipInterval, nil },
	}
	e := NewEmbedded(updater, time.Hour, testLog())

	e.Enable(context.Background())
	waitFor(t, func() bool { return updater.updateCalls.Load() >= 4 })

	assert.NoError(t, e.Err())
	e.Disable()
	e.Join()
}

func TestEmbedded_OnStopReplacesFinalFlush(t *testing.T) {
	updater := &mockUpdater{}
	e := NewEmbedded(updater, time.Hour, testLog())

	var stopCalls atomic.Int32
	e.OnStop = func(ctx context.Context) error {
		stopCalls.Add(1)
		return nil
	}

	e.Enable(context.Background())
	waitFor(t, func() bool { return updater.updateCalls.Load() >= 1 })
	updates := updater.updateCalls.Load()

	e.Disable()
	e.Join()

	assert.Equal(t, int32(1), stopCalls.Load())
	// No flush update ran on top of the stop hook
	assert.Equal(t, updates, updater.updateCalls.Load())
}

func TestEmbedded_ContextCancelSkipsFlush(t *testing.T) {
	updater := &mockUpdater{}
	e := NewEmbedded(updater, time.Hour, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	e.Enable(ctx)
	waitFor(t, func() bool { return updater.updateCalls.Load() >= 1 })
	updates := updater.updateCalls.Load()

	cancel()
	e.Join()

	// Cancellation exits without the final flush
	assert.Equal(t, updates, updater.updateCalls.Load())
}
