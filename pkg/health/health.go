package health

import (
	"context"
	"fmt"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypePing CheckType = "ping"
	CheckTypeHTTP CheckType = "http"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Config controls how a node is probed until it is ready
type Config struct {
	// Interval is the time between health checks
	Interval time.Duration

	// Timeout bounds a single check
	Timeout time.Duration

	// Retries is the number of consecutive failures before marking as
	// unhealthy
	Retries int

	// StartPeriod is a grace period during which failures are not counted,
	// so freshly spawned processes have time to bind
	StartPeriod time.Duration
}

// DefaultConfig returns a Config suited to freshly launched nodes
func DefaultConfig() Config {
	return Config{
		Interval:    50 * time.Millisecond,
		Timeout:     time.Second,
		Retries:     3,
		StartPeriod: 2 * time.Second,
	}
}

// Status tracks the health of one probed node
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed checks
	ConsecutiveFailures int

	// ConsecutiveSuccesses tracks the number of consecutive successful checks
	ConsecutiveSuccesses int

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time

	// LastResult is the result of the last health check
	LastResult Result

	// Healthy indicates if the node is currently considered healthy
	Healthy bool

	// StartedAt is when probing started
	StartedAt time.Time
}

// NewStatus creates a new Status. A node is not healthy until a check
// succeeds.
func NewStatus() *Status {
	return &Status{StartedAt: time.Now()}
}

// Update updates the status based on a new health check result
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveSuccesses = 0
	if s.InStartPeriod(config) {
		return
	}
	s.ConsecutiveFailures++
	if s.ConsecutiveFailures >= config.Retries {
		s.Healthy = false
	}
}

// InStartPeriod returns true if we're still in the startup grace period
func (s *Status) InStartPeriod(config Config) bool {
	if config.StartPeriod == 0 {
		return false
	}
	return time.Since(s.StartedAt) < config.StartPeriod
}

// WaitHealthy runs checker every config.Interval until it succeeds, the
// failures exceed config.Retries after the start period, or ctx ends
func WaitHealthy(ctx context.Context, checker Checker, config Config) (*Status, error) {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	status := NewStatus()
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		result := checker.Check(checkCtx)
		cancel()

		status.Update(result, config)
		if result.Healthy {
			return status, nil
		}
		if status.ConsecutiveFailures >= config.Retries {
			return status, fmt.Errorf("%s check failed %d times: %s",
				checker.Type(), status.ConsecutiveFailures, result.Message)
		}

		select {
		case <-ctx.Done():
			return status, fmt.Errorf("%s check: %w (last: %s)", checker.Type(), ctx.Err(), result.Message)
		case <-ticker.C:
		}
	}
}
