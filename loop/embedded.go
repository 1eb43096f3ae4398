package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stephnangue/nxauth/logger"
)

// EmbeddedLoop owns the goroutine running a Loop. Enable and Disable
// are idempotent; a generation token tells a running loop that it has
// been disabled without aborting its in-flight update.
type EmbeddedLoop struct {
	*Loop
	log logger.Logger

	// OnStop, when set, is awaited instead of the final flush update
	OnStop func(ctx context.Context) error

	// generation is 0 when stopped, otherwise the token of the running
	// loop. The running goroutine re-checks it every iteration.
	generation atomic.Uint64
	nextToken  atomic.Uint64

	wg sync.WaitGroup

	errMu   sync.Mutex
	lastErr error
}

// Err returns the error that terminated the loop, nil while it is
// running or after a clean stop
func (e *EmbeddedLoop) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.lastErr
}

func (e *EmbeddedLoop) setErr(err error) {
	e.errMu.Lock()
	e.lastErr = err
	e.errMu.Unlock()
}

// NewEmbedded wraps updater in an owned loop goroutine
func NewEmbedded(updater Updater, interval time.Duration, log logger.Logger) *EmbeddedLoop {
	return &EmbeddedLoop{
		Loop: New(updater, interval, log),
		log:  log,
	}
}

// Enable starts the loop. Calling it while the loop is already running
// is a no-op (the generation token is non-zero).
func (e *EmbeddedLoop) Enable(ctx context.Context) {
	token := e.nextToken.Add(1)
	if !e.generation.CompareAndSwap(0, token) {
		e.log.Trace("loop already enabled")
		return
	}

	e.setErr(nil)
	e.wg.Add(1)
	go e.run(ctx, token)
}

// Disable stops future scheduling. An update already executing finishes
// normally; the loop then flushes (or runs OnStop) and exits. Disable
// does not wait - use Join for that.
func (e *EmbeddedLoop) Disable() {
	e.generation.Store(0)
	// Wake a pending interval wait so shutdown is prompt
	e.SkipIntervalInCurrentLoop()
}

// Join blocks until the loop goroutine has fully exited
func (e *EmbeddedLoop) Join() {
	e.wg.Wait()
}

func (e *EmbeddedLoop) run(ctx context.Context, token uint64) {
	defer e.wg.Done()
	defer e.setState(Idle)

	for e.generation.Load() == token && ctx.Err() == nil {
		res, err := e.RunOnce(ctx)
		if err != nil {
			e.log.Error("loop terminated", logger.Err(err))
			e.setErr(err)
			e.generation.CompareAndSwap(token, 0)
			return
		}

		// A disable that arrived during the update stops scheduling
		// here, before any wait
		if e.generation.Load() != token {
			break
		}

		if res == OKSkipInterval {
			continue
		}
		if err := e.Wait(ctx); err != nil {
			// Context ended mid-wait
			break
		}
	}

	e.generation.CompareAndSwap(token, 0)

	if ctx.Err() != nil {
		return
	}

	// One last snapshot on the way out, unless the updater installed
	// its own stop behavior
	if e.OnStop != nil {
		if err := e.OnStop(ctx); err != nil {
			e.log.Warn("loop stop hook failed", logger.Err(err))
		}
		return
	}
	if err := e.updater.Update(ctx); err != nil {
		e.log.Warn("final flush update failed", logger.Err(err))
	}
}
