// Package sweeper evicts expired secure-store entries on a fixed period,
// independent of request traffic.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"piiguard/internal/vault/models"
)

// DefaultInterval is how often expired entries are swept.
const DefaultInterval = time.Hour

// Target is the store being swept.
type Target interface {
	Sweep(ctx context.Context) models.SweepStats
}

// Sweeper drives Target.Sweep from a ticker.
type Sweeper struct {
	target   Target
	interval time.Duration
	logger   *slog.Logger
	onSweep  func(models.SweepStats)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval sets the sweep period. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithObserver registers a callback invoked after every sweep.
func WithObserver(fn func(models.SweepStats)) Option {
	return func(s *Sweeper) { s.onSweep = fn }
}

// New builds a Sweeper over target.
func New(target Target, opts ...Option) (*Sweeper, error) {
	if target == nil {
		return nil, errors.New("sweep target is required")
	}
	s := &Sweeper{
		target:   target,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Interval returns the configured period.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Run sweeps every interval until ctx is cancelled. It returns nil on a clean
// shutdown so it can sit in an errgroup next to the HTTP server.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopped")
			return nil
		}
	}
}

// Tick runs one sweep synchronously and returns its statistics.
func (s *Sweeper) Tick(ctx context.Context) models.SweepStats {
	stats := s.target.Sweep(ctx)
	if stats.Cleaned > 0 || stats.Errors > 0 {
		s.logger.InfoContext(ctx, "sweep finished", "cleaned", stats.Cleaned, "errors", stats.Errors)
	}
	if s.onSweep != nil {
		s.onSweep(stats)
	}
	return stats
}
