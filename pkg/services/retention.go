package services

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls the background retention sweeper.
type RetentionConfig struct {
	// MealRetentionDays is how long meal records are kept.
	MealRetentionDays int

	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration
}

// DefaultRetentionConfig keeps meals for 90 days, sweeping hourly.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		MealRetentionDays: 90,
		SweepInterval:     time.Hour,
	}
}

// RetentionService periodically removes meal records past their retention
// window. Deletion is idempotent and safe to run from multiple pods.
type RetentionService struct {
	config *RetentionConfig
	meals  *MealService
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetentionService creates a retention sweeper.
func NewRetentionService(cfg *RetentionConfig, meals *MealService) *RetentionService {
	return &RetentionService{
		config: cfg,
		meals:  meals,
		logger: slog.Default().With("component", "retention"),
	}
}

// Start launches the background sweep loop.
func (s *RetentionService) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Retention service started",
		"meal_retention_days", s.config.MealRetentionDays,
		"interval", s.config.SweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *RetentionService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Retention service stopped")
}

func (s *RetentionService) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RetentionService) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().
		AddDate(0, 0, -s.config.MealRetentionDays).
		Format(time.RFC3339)

	removed, err := s.meals.DeleteMealsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("Retention sweep removed expired meals", "removed", removed, "cutoff", cutoff)
	}
}
