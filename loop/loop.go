// Package loop provides a generic interval-driven task runner with
// pluggable error classification and early-wake support. Monitors build
// on EmbeddedLoop; Loop is usable standalone when the caller owns the
// goroutine.
package loop

import (
	"context"
	"sync"
	"time"

	"github.com/stephnangue/nxauth/logger"
)

// Result tells the runner what to do after a cycle
type Result int

const (
	// OK means wait the normal interval before the next cycle
	OK Result = iota

	// OKSkipInterval means proceed to the next cycle immediately
	OKSkipInterval
)

// Updater is the unit of work a Loop drives
type Updater interface {
	// Init runs exactly once before the first Update. Its result decides
	// whether the first Update runs immediately or after one interval.
	Init(ctx context.Context) (Result, error)

	// Update performs one cycle
	Update(ctx context.Context) error

	// HandleError classifies an Update failure. Returning a nil error
	// swallows the failure and the loop continues with the given
	// Result; returning an error terminates the loop.
	HandleError(err error) (Result, error)
}

// Base provides the default Init and HandleError. Init skips the first
// interval; HandleError re-returns every error (fatal). Updaters embed
// Base and override what they need.
type Base struct{}

func (Base) Init(ctx context.Context) (Result, error) {
	return OKSkipInterval, nil
}

func (Base) HandleError(err error) (Result, error) {
	return OK, err
}

// State is the loop's lifecycle position. The single-state enum relies
// on the cooperative scheduling model: transitions happen on one
// logical thread of control, guarded by a mutex only because skip
// requests may arrive from other goroutines. Porting this to anything
// preemptive needs more than the enum.
type State int

const (
	// Idle means no iteration is active; skip requests are no-ops
	Idle State = iota

	// Running means an Update (or Init) is executing
	Running

	// Waiting means the loop is in its interval sleep
	Waiting
)

// Loop drives an Updater: one Update per interval, failures routed
// through HandleError, the pending wait resolvable early.
type Loop struct {
	updater  Updater
	interval time.Duration
	log      logger.Logger

	mu    sync.Mutex
	state State
	inited bool

	// skip holds at most one pending early-wake request
	skip chan struct{}
}

// New creates a Loop running updater every interval
func New(updater Updater, interval time.Duration, log logger.Logger) *Loop {
	return &Loop{
		updater:  updater,
		interval: interval,
		log:      log,
		skip:     make(chan struct{}, 1),
	}
}

// Interval returns the configured interval
func (l *Loop) Interval() time.Duration {
	return l.interval
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// State returns the current lifecycle position
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SkipIntervalInCurrentLoop resolves the pending interval wait (or the
// next one, when an update is still executing) so the next cycle begins
// immediately. Calls while the loop is idle are no-ops: there is no
// current loop to skip in.
func (l *Loop) SkipIntervalInCurrentLoop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Idle {
		return
	}
	select {
	case l.skip <- struct{}{}:
	default:
	}
}

// RunOnce executes one cycle: Init on the first call, then Update, with
// failures routed through HandleError. A nil error with Result OK means
// wait before calling again; OKSkipInterval means call again now. A
// non-nil error is fatal to the loop.
func (l *Loop) RunOnce(ctx context.Context) (Result, error) {
	l.setState(Running)

	if !l.inited {
		l.inited = true
		res, err := l.updater.Init(ctx)
		if err != nil {
			return OK, err
		}
		if res == OKSkipInterval {
			// Proceed straight into the first update
		} else {
			return res, nil
		}
	}

	if err := l.updater.Update(ctx); err != nil {
		res, herr := l.updater.HandleError(err)
		if herr != nil {
			return OK, herr
		}
		l.log.Debug("update failed with retryable error", logger.Err(err))
		return res, nil
	}
	return OK, nil
}

// Wait sleeps for the interval. It returns early when
// SkipIntervalInCurrentLoop was called or the context ends.
func (l *Loop) Wait(ctx context.Context) error {
	l.setState(Waiting)
	defer l.setState(Running)

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-l.skip:
		l.log.Trace("interval wait skipped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
