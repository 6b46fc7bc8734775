package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/NamanArora/pay-proxy/internal/logging"
)

// RetentionConfig controls how long call logs are kept.
type RetentionConfig struct {
	// RetentionDays is the age after which logs are deleted. Zero keeps everything.
	RetentionDays int

	// Schedule is a standard five-field cron expression, e.g. "0 3 * * *".
	Schedule string
}

// RetentionScheduler prunes old call logs on a cron schedule.
type RetentionScheduler struct {
	backend StorageBackend
	config  RetentionConfig
	cron    *cron.Cron
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewRetentionScheduler creates a scheduler for backend. It does nothing until Start.
func NewRetentionScheduler(backend StorageBackend, config RetentionConfig, logger *slog.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		backend: backend,
		config:  config,
		cron:    cron.New(),
		now:     time.Now,
		logger:  logging.OrDefault(logger).With("component", "storage.retention"),
	}
}

// Prune deletes logs older than the retention window once.
func (s *RetentionScheduler) Prune(ctx context.Context) (int64, error) {
	if s.config.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	return s.backend.DeleteBefore(ctx, cutoff)
}

// Start schedules pruning. An empty schedule or zero retention is a no-op.
// The scheduler stops when ctx is cancelled.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" || s.config.RetentionDays <= 0 {
		s.logger.Info("log retention not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("retention scheduler started", "schedule", s.config.Schedule, "retention_days", s.config.RetentionDays)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *RetentionScheduler) run(ctx context.Context) {
	deleted, err := s.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	s.logger.Info("scheduled pruning completed", "deleted_count", deleted)
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether a schedule is active.
func (s *RetentionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
