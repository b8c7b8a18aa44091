// Package analysis orchestrates best-practice analysis runs over
// registered semantic models.
package analysis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"modelsentry/internal/domain"
	"modelsentry/internal/lifecycle"
	"modelsentry/internal/rules"
)

// Service wraps the rule evaluation engine in the generic job
// lifecycle: snapshot, evaluate, persist atomically, aggregate.
type Service struct {
	models       domain.ModelRepository
	runs         domain.RunRepository
	catalog      domain.RuleProvider
	introspector domain.ModelIntrospector
	engine       *rules.Engine
	jobs         *lifecycle.Manager
	logger       *slog.Logger

	defaultServer string
	jobTimeout    time.Duration
}

// NewService creates an analysis Service. defaultServer is used when a
// model is first seen through StartRun without prior registration.
// jobTimeout <= 0 disables the per-run soft timeout.
func NewService(
	models domain.ModelRepository,
	runs domain.RunRepository,
	catalog domain.RuleProvider,
	introspector domain.ModelIntrospector,
	engine *rules.Engine,
	jobs *lifecycle.Manager,
	defaultServer string,
	jobTimeout time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		models:        models,
		runs:          runs,
		catalog:       catalog,
		introspector:  introspector,
		engine:        engine,
		jobs:          jobs,
		defaultServer: defaultServer,
		jobTimeout:    jobTimeout,
		logger:        logger,
	}
}

// RegisterModel registers or refreshes a semantic model.
func (s *Service) RegisterModel(ctx context.Context, req *domain.RegisterModelRequest) (*domain.SemanticModel, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.models.Upsert(ctx, &domain.SemanticModel{
		DatabaseName:  req.DatabaseName,
		ServerAddress: req.ServerAddress,
		ModelName:     req.ModelName,
	})
}

// GetModel returns one registered model.
func (s *Service) GetModel(ctx context.Context, databaseName string) (*domain.SemanticModel, error) {
	return s.models.Get(ctx, databaseName)
}

// ListModels returns all registered models.
func (s *Service) ListModels(ctx context.Context) ([]domain.SemanticModel, error) {
	return s.models.List(ctx)
}

// DeleteModel removes a model and, transitively, all of its runs,
// findings, and fix sessions. The cascade is all-or-nothing.
func (s *Service) DeleteModel(ctx context.Context, databaseName string) error {
	runsForModel, err := s.runs.ListByModel(ctx, databaseName)
	if err == nil {
		for _, run := range runsForModel {
			s.jobs.Cancel(run.ID)
		}
	}
	return s.models.Delete(ctx, databaseName)
}

// StartRun creates a run in PENDING and launches the analysis worker.
// The model row is created on first analysis when absent.
func (s *Service) StartRun(ctx context.Context, databaseName string) (*domain.AnalysisRun, error) {
	if strings.TrimSpace(databaseName) == "" {
		return nil, domain.ErrValidation("database name is required")
	}

	model, err := s.models.Get(ctx, databaseName)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); !ok {
			return nil, err
		}
		model, err = s.models.Upsert(ctx, &domain.SemanticModel{
			DatabaseName:  databaseName,
			ServerAddress: s.defaultServer,
		})
		if err != nil {
			return nil, err
		}
	}

	run, err := s.runs.Create(ctx, &domain.AnalysisRun{ModelDatabaseName: databaseName})
	if err != nil {
		return nil, err
	}

	serverAddress := model.ServerAddress
	lifecycle.Launch(s.jobs, run.ID, s.jobTimeout,
		func(ctx context.Context) ([]domain.Finding, error) {
			return s.analyze(ctx, serverAddress, databaseName, run.ID)
		},
		lifecycle.Hooks[[]domain.Finding]{
			OnRunning: func(ctx context.Context) error {
				return s.runs.MarkRunning(ctx, run.ID)
			},
			OnCompleted: func(ctx context.Context, findings []domain.Finding) error {
				return s.runs.Complete(ctx, run.ID, findings)
			},
			OnFailed: func(ctx context.Context, reason string) error {
				return s.runs.MarkFailed(ctx, run.ID, reason)
			},
		})

	return run, nil
}

// analyze is the run's work function. Every collaborator call is a
// cancellation checkpoint via ctx.
func (s *Service) analyze(ctx context.Context, serverAddress, databaseName, runID string) ([]domain.Finding, error) {
	logger := s.logger.With("run_id", runID, "database", databaseName)

	snap, err := s.introspector.Snapshot(ctx, serverAddress, databaseName)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	catalog, err := s.catalog.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	findings, ruleErrs := s.engine.Evaluate(snap, catalog)
	for _, re := range ruleErrs {
		logger.Warn("rule skipped", "rule_id", re.RuleID, "error", re.Message)
	}
	logger.Info("analysis evaluated", "findings", len(findings), "rules_skipped", len(ruleErrs))

	return findings, nil
}

// GetRun returns the run's current state. Reads never block a worker.
func (s *Service) GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	return s.runs.Get(ctx, id)
}

// ListRuns returns a model's runs, newest first.
func (s *Service) ListRuns(ctx context.Context, databaseName string) ([]domain.AnalysisRun, error) {
	if _, err := s.models.Get(ctx, databaseName); err != nil {
		return nil, err
	}
	return s.runs.ListByModel(ctx, databaseName)
}

// CancelRun requests cooperative cancellation. Cancelling a terminal
// run is a no-op; cancelling a PENDING run fails it before start.
func (s *Service) CancelRun(ctx context.Context, id string) error {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return nil
	}

	if run.Status == domain.JobStatusPending {
		err := s.runs.MarkFailed(ctx, id, domain.CancelReasonBeforeStart)
		if _, lost := err.(*domain.InvalidTransitionError); err != nil && !lost {
			return err
		}
	}
	s.jobs.Cancel(id)
	return nil
}

// ListFindings returns a run's findings in evaluation order together
// with its severity summary. Findings are visible only once the run
// has completed.
func (s *Service) ListFindings(ctx context.Context, runID string) ([]domain.Finding, *domain.RunSummary, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	findings, err := s.runs.ListFindings(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	summary := &domain.RunSummary{
		ErrorCount:   run.ErrorCount,
		WarningCount: run.WarningCount,
		InfoCount:    run.InfoCount,
	}
	return findings, summary, nil
}

// GetFinding returns one finding.
func (s *Service) GetFinding(ctx context.Context, findingID string) (*domain.Finding, error) {
	return s.runs.GetFinding(ctx, findingID)
}
