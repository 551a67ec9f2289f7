package knowledge

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultIdleThreshold = 5 * time.Minute
	defaultCheckInterval = time.Minute
)

// IdleManager resumes the knowledge service's background processing
// after the agent has been quiet for a while. Replying pauses the
// service to keep the model responsive; this is the counterpart that
// hands the idle cycles back.
type IdleManager struct {
	client        *Client
	logger        *slog.Logger
	idleThreshold time.Duration
	checkInterval time.Duration

	mu         sync.Mutex
	busy       bool
	lastAction time.Time
}

func NewIdleManager(client *Client, idleThreshold time.Duration, logger *slog.Logger) *IdleManager {
	if idleThreshold <= 0 {
		idleThreshold = defaultIdleThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdleManager{
		client:        client,
		logger:        logger,
		idleThreshold: idleThreshold,
		checkInterval: defaultCheckInterval,
		lastAction:    time.Now(),
	}
}

// Touch records agent activity, pushing the idle deadline out.
func (m *IdleManager) Touch() {
	m.mu.Lock()
	m.lastAction = time.Now()
	m.mu.Unlock()
}

// SetBusy marks the agent as actively processing. Idle work is skipped
// while busy.
func (m *IdleManager) SetBusy(busy bool) {
	m.mu.Lock()
	m.busy = busy
	m.mu.Unlock()
}

// Run loops until the context ends, nudging the knowledge service
// whenever the agent has been idle past the threshold.
func (m *IdleManager) Run(ctx context.Context) {
	if m.client == nil || !m.client.Enabled() {
		return
	}

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		busy := m.busy
		idleFor := time.Since(m.lastAction)
		m.mu.Unlock()

		if busy || idleFor < m.idleThreshold {
			continue
		}

		m.logger.Info("agent idle, running knowledge maintenance", "idle", idleFor.Round(time.Second))
		m.runIdleTask(ctx)
		m.Touch()
	}
}

func (m *IdleManager) runIdleTask(ctx context.Context) {
	st, err := m.client.Info(ctx)
	if err != nil {
		m.logger.Warn("knowledge info unavailable, resuming blindly", "error", err)
		if err := m.client.Resume(ctx); err != nil {
			m.logger.Warn("knowledge resume failed", "error", err)
		}
		return
	}

	switch {
	case !st.IsProcessingActive && st.QueuedItems > 0:
		if err := m.client.ProcessQueue(ctx); err != nil {
			m.logger.Warn("knowledge queue drain failed", "error", err)
		}
	case !st.IsProcessingActive:
		if err := m.client.Resume(ctx); err != nil {
			m.logger.Warn("knowledge resume failed", "error", err)
		}
	}
}
