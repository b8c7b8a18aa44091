package analysis

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler re-analyzes every registered model on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	svc    *Service
	logger *slog.Logger
}

// NewScheduler creates a scheduler that triggers analysis runs for all
// registered models on the given cron expression.
func NewScheduler(svc *Service, schedule string, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		logger: logger,
	}

	if _, err := s.cron.AddFunc(schedule, s.analyzeAll); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins scheduled execution.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("analysis scheduler started")
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("analysis scheduler stopped")
}

func (s *Scheduler) analyzeAll() {
	ctx := context.Background()

	models, err := s.svc.ListModels(ctx)
	if err != nil {
		s.logger.Warn("scheduled analysis: list models failed", "error", err)
		return
	}

	for _, m := range models {
		run, err := s.svc.StartRun(ctx, m.DatabaseName)
		if err != nil {
			s.logger.Warn("scheduled analysis trigger failed",
				"database", m.DatabaseName,
				"error", err,
			)
			continue
		}
		s.logger.Info("scheduled analysis started", "database", m.DatabaseName, "run_id", run.ID)
	}
}
