package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/stephnangue/nxauth/logger"
	"github.com/stephnangue/nxauth/loop"
)

// Manager owns one embedded loop per monitored user. Starting a user
// who is already monitored is a no-op; stopping fans out to every loop
// and waits for them to flush and exit.
type Manager struct {
	log logger.Logger

	mu    sync.Mutex
	loops map[string]*loop.EmbeddedLoop
}

// NewManager creates an empty monitor manager
func NewManager(log logger.Logger) *Manager {
	return &Manager{
		log:   log,
		loops: make(map[string]*loop.EmbeddedLoop),
	}
}

// Start begins monitoring for userID with the given updater and
// interval. The loop is enabled immediately.
func (m *Manager) Start(ctx context.Context, userID string, updater loop.Updater, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.loops[userID]; ok {
		// Re-enabling a running loop is a no-op; a loop that died on a
		// fatal error restarts here
		existing.Enable(ctx)
		return nil
	}

	embedded := loop.NewEmbedded(updater, interval, m.log.WithFields(logger.String("user_id", userID)))
	m.loops[userID] = embedded
	embedded.Enable(ctx)

	m.log.Info("monitor started",
		logger.String("user_id", userID),
		logger.Duration("interval", interval))
	return nil
}

// Wake skips the pending interval for userID, if monitored. Used when a
// push signal suggests the remote state changed.
func (m *Manager) Wake(userID string) {
	m.mu.Lock()
	embedded, ok := m.loops[userID]
	m.mu.Unlock()
	if ok {
		embedded.SkipIntervalInCurrentLoop()
	}
}

// Stop disables and joins the monitor for one user
func (m *Manager) Stop(userID string) error {
	m.mu.Lock()
	embedded, ok := m.loops[userID]
	delete(m.loops, userID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("user %s is not being monitored", userID)
	}
	embedded.Disable()
	embedded.Join()
	return embedded.Err()
}

// StopAll disables every monitor and waits for them to exit,
// aggregating per-user failures
func (m *Manager) StopAll() error {
	m.mu.Lock()
	loops := m.loops
	m.loops = make(map[string]*loop.EmbeddedLoop)
	m.mu.Unlock()

	var result *multierror.Error
	for userID, embedded := range loops {
		embedded.Disable()
		embedded.Join()
		if err := embedded.Err(); err != nil {
			result = multierror.Append(result, fmt.Errorf("monitor for %s: %w", userID, err))
		}
		m.log.Info("monitor stopped", logger.String("user_id", userID))
	}
	return result.ErrorOrNil()
}
