package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/controltower/notifier/internal/config"
	"github.com/controltower/notifier/internal/engine"
	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/pkg/utils"
)

// Scheduler fires the daily reminder batch once per calendar day at the
// configured wall-clock time.
type Scheduler struct {
	config    *config.SchedulerConfig
	evaluator *engine.Evaluator
	logger    *logrus.Entry

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	lastRunDay string
	lastResult *models.RunResult
}

// NewScheduler creates a daily reminder scheduler
func NewScheduler(cfg *config.SchedulerConfig, evaluator *engine.Evaluator) *Scheduler {
	return &Scheduler{
		config:    cfg,
		evaluator: evaluator,
		logger:    utils.ComponentLogger("scheduler"),
	}
}

// Start begins the scheduling loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Scheduler already running", "")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	go s.loop(runCtx)

	s.logger.WithFields(logrus.Fields{
		"run_at":       s.config.RunAt,
		"run_on_start": s.config.RunOnStart,
	}).Info("Scheduler started")
	return nil
}

// Stop halts the scheduling loop
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()
	s.running = false
	s.logger.Info("Scheduler stopped")
	return nil
}

// IsRunning reports whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastResult returns the most recent batch result, if any
func (s *Scheduler) LastResult() *models.RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

func (s *Scheduler) loop(ctx context.Context) {
	if s.config.RunOnStart {
		s.runBatch(ctx, time.Now())
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.due(now) {
				s.runBatch(ctx, now)
			}
		}
	}
}

// due reports whether the configured run time has been reached today
// and no batch has run yet today.
func (s *Scheduler) due(now time.Time) bool {
	var hh, mm int
	if _, err := fmt.Sscanf(s.config.RunAt, "%d:%d", &hh, &mm); err != nil {
		s.logger.WithField("run_at", s.config.RunAt).Error("Invalid run_at time")
		return false
	}

	target := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	if now.Before(target) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunDay != engine.ISODate(now)
}

func (s *Scheduler) runBatch(ctx context.Context, now time.Time) {
	s.mu.Lock()
	s.lastRunDay = engine.ISODate(now)
	s.mu.Unlock()

	result, err := s.evaluator.RunDaily(ctx, now)
	if err != nil {
		s.logger.WithField("error", err).Error("Daily reminder batch failed")
		return
	}

	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()
}
