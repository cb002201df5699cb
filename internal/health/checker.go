// Package health runs periodic dependency checks with optional recovery.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/studyforge/studyforge/internal/infra/metrics"
)

// Pinger is anything that can report its own availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Recovered bool      `json:"recovered,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

// NewChecker creates a checker with the storage and cache checks.
func NewChecker(db, cache Pinger, interval time.Duration, log *slog.Logger) *Checker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		interval: interval,
		timeout:  5 * time.Second,
		log:      log.With(slog.String("component", "health")),
		checks: []Check{
			{Name: "sqlite", CheckFn: db.Ping},
			{Name: "cache", CheckFn: cache.Ping},
		},
	}
}

// Add registers another check. Call before Run.
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	c.checks = append(c.checks, check)
	c.mu.Unlock()
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check and stores the results.
func (c *Checker) RunOnce(ctx context.Context) {
	c.mu.RLock()
	checks := append([]Check(nil), c.checks...)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		statuses[i] = c.run(ctx, check)
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

func (c *Checker) run(ctx context.Context, check Check) Status {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	s := Status{Name: check.Name, CheckedAt: time.Now(), Healthy: true}
	err := check.CheckFn(ctx)
	if err != nil && check.RecoverFn != nil {
		if rerr := check.RecoverFn(ctx); rerr != nil {
			c.log.Warn("recovery failed", slog.String("check", check.Name), slog.Any("error", rerr))
		} else if err = check.CheckFn(ctx); err == nil {
			s.Recovered = true
			c.log.Info("check recovered", slog.String("check", check.Name))
		}
	}
	if err != nil {
		s.Healthy = false
		s.Error = err.Error()
		c.log.Warn("health check failed", slog.String("check", check.Name), slog.Any("error", err))
	}

	gauge := 0.0
	if s.Healthy {
		gauge = 1
	}
	metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(gauge)
	return s
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
