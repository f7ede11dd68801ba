// Package retention deletes candidates older than the retention period
// together with their stored CV files.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"candidate-service/internal/candidate"
	"candidate-service/internal/metrics"
)

const (
	DefaultMaxAge   = 90 * 24 * time.Hour
	DefaultInterval = time.Hour
)

type Repository interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]candidate.Candidate, error)
}

// Files resolves and removes stored CVs; *upload.Store satisfies it.
type Files interface {
	NameFromURL(url string) (string, bool)
	Remove(name string) error
}

type Config struct {
	MaxAge   time.Duration
	Interval time.Duration
}

type Sweeper struct {
	repo     Repository
	files    Files
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewSweeper(repo Repository, files Files, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Sweeper{
		repo:     repo,
		files:    files,
		maxAge:   cfg.MaxAge,
		interval: cfg.Interval,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Sweep deletes expired candidates and then their files. A file that cannot
// be removed is logged and skipped; the row is already gone.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.maxAge)

	deleted, err := s.repo.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep: %w", err)
	}

	for _, c := range deleted {
		if c.CVURL == nil {
			continue
		}
		name, ok := s.files.NameFromURL(*c.CVURL)
		if !ok {
			s.logger.WarnContext(ctx, "retention: unrecognised cv url", "candidate_id", c.ID, "cv_url", *c.CVURL)
			continue
		}
		if err := s.files.Remove(name); err != nil {
			s.logger.ErrorContext(ctx, "retention: failed to remove cv", "candidate_id", c.ID, "file", name, "error", err)
		}
	}

	s.metrics.RecordRetentionDeleted(ctx, len(deleted))
	if len(deleted) > 0 {
		s.logger.InfoContext(ctx, "retention sweep removed candidates", "count", len(deleted), "cutoff", cutoff)
	}
	return len(deleted), nil
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("retention sweeper started", "max_age", s.maxAge, "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
