// Package reconnect paces retries of a failing connection (Kafka reader,
// store ping) with exponential backoff.
package reconnect

import (
	"context"
	"sync"
	"time"

	"irrigation/pkg/logger"
)

// Manager tracks consecutive failures of one connection and derives the
// delay before the next attempt. Safe for concurrent use.
type Manager struct {
	name       string
	minBackoff time.Duration
	maxBackoff time.Duration
	multiplier float64

	mu                  sync.Mutex
	currentBackoff      time.Duration
	consecutiveFailures int
	totalFailures       int
	lastFailure         time.Time

	log *logger.Logger
}

// Config configures the reconnect manager
type Config struct {
	MinBackoff time.Duration // first delay, default 1s
	MaxBackoff time.Duration // delay cap, default 1m
	Multiplier float64       // default 2
}

// NewManager creates a manager; name labels its log lines
func NewManager(name string, cfg Config, log *logger.Logger) *Manager {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = time.Minute
		if cfg.MaxBackoff < cfg.MinBackoff {
			cfg.MaxBackoff = cfg.MinBackoff
		}
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}

	return &Manager{
		name:           name,
		minBackoff:     cfg.MinBackoff,
		maxBackoff:     cfg.MaxBackoff,
		multiplier:     cfg.Multiplier,
		currentBackoff: cfg.MinBackoff,
		log:            log.Component("reconnect").With("connection", name),
	}
}

// RecordFailure counts a failure and returns the delay to wait before retrying
func (m *Manager) RecordFailure(err error) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	delay := m.currentBackoff
	m.consecutiveFailures++
	m.totalFailures++
	m.lastFailure = time.Now()

	next := time.Duration(float64(m.currentBackoff) * m.multiplier)
	if next > m.maxBackoff {
		next = m.maxBackoff
	}
	m.currentBackoff = next

	m.log.Warnw("Connection attempt failed",
		"error", err,
		"consecutive_failures", m.consecutiveFailures,
		"retry_in", delay,
	)
	return delay
}

// RecordSuccess resets the backoff
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consecutiveFailures > 0 {
		m.log.Infow("✅ Connection restored", "after_failures", m.consecutiveFailures)
	}
	m.consecutiveFailures = 0
	m.currentBackoff = m.minBackoff
}

// Backoff records err and sleeps for the resulting delay.
// It returns ctx.Err() if ctx ends first.
func (m *Manager) Backoff(ctx context.Context, err error) error {
	delay := m.RecordFailure(err)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats contains reconnection statistics
type Stats struct {
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalFailures       int           `json:"total_failures"`
	CurrentBackoff      time.Duration `json:"current_backoff"`
	LastFailure         time.Time     `json:"last_failure,omitempty"`
}

// GetStats returns a snapshot
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		ConsecutiveFailures: m.consecutiveFailures,
		TotalFailures:       m.totalFailures,
		CurrentBackoff:      m.currentBackoff,
		LastFailure:         m.lastFailure,
	}
}
