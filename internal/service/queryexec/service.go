// Package queryexec submits queries to the remote tabular engine,
// tracks their lifecycle, and records the append-only execution
// history.
package queryexec

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"modelsentry/internal/domain"
	"modelsentry/internal/lifecycle"
)

// Config holds the executor's tunables.
type Config struct {
	JobTimeout   time.Duration // soft timeout per execution; <= 0 disables
	PollAttempts int           // bounded attempts for WaitForResult
	PollInterval time.Duration // interval per attempt
}

const (
	defaultPollAttempts = 10
	defaultPollInterval = 200 * time.Millisecond
)

// Service executes queries asynchronously. Executions are created
// already RUNNING: there is no queueing phase on this path.
type Service struct {
	executions domain.QueryExecutionRepository
	history    domain.QueryHistoryRepository
	engine     domain.QueryEngine
	translator domain.QueryTranslator
	jobs       *lifecycle.Manager
	cfg        Config
	logger     *slog.Logger
}

// NewService creates a query executor Service. translator may be nil
// when natural-language queries are not configured.
func NewService(
	executions domain.QueryExecutionRepository,
	history domain.QueryHistoryRepository,
	engine domain.QueryEngine,
	translator domain.QueryTranslator,
	jobs *lifecycle.Manager,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaultPollAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Service{
		executions: executions,
		history:    history,
		engine:     engine,
		translator: translator,
		jobs:       jobs,
		cfg:        cfg,
		logger:     logger,
	}
}

type runOutcome struct {
	result  *domain.QueryResult
	elapsed time.Duration
}

// Execute submits queryText and returns immediately with the RUNNING
// execution. requestID makes submission idempotent: resubmitting the
// same id returns the existing execution.
func (s *Service) Execute(ctx context.Context, queryText string, naturalLanguage *string, requestID string) (*domain.QueryExecution, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, domain.ErrValidation("query text is required")
	}

	if requestID != "" {
		existing, err := s.executions.GetByRequestID(ctx, requestID)
		if err == nil {
			return existing, nil
		}
		if _, ok := err.(*domain.NotFoundError); !ok {
			return nil, err
		}
	}

	execution, err := s.executions.Create(ctx, &domain.QueryExecution{
		RequestID:       requestID,
		QueryText:       queryText,
		NaturalLanguage: naturalLanguage,
	})
	if err != nil {
		return nil, err
	}

	id := execution.ID
	submitted := time.Now()
	lifecycle.Launch(s.jobs, id, s.cfg.JobTimeout,
		func(ctx context.Context) (runOutcome, error) {
			result, err := s.engine.Run(ctx, queryText)
			if err != nil {
				return runOutcome{}, err
			}
			return runOutcome{result: result, elapsed: time.Since(submitted)}, nil
		},
		lifecycle.Hooks[runOutcome]{
			// Created RUNNING; nothing to transition.
			OnRunning: func(context.Context) error { return nil },
			OnCompleted: func(ctx context.Context, out runOutcome) error {
				return s.executions.Complete(ctx, id, out.result.Columns, out.result.Rows, out.elapsed.Milliseconds())
			},
			OnFailed: func(ctx context.Context, reason string) error {
				return s.executions.MarkFailed(ctx, id, reason, time.Since(submitted).Milliseconds())
			},
		})

	return execution, nil
}

// ExecuteNatural translates a natural-language prompt into query text
// and routes it through the same execution path. Translation failures
// are synchronous; no execution is created.
func (s *Service) ExecuteNatural(ctx context.Context, prompt, requestID string) (*domain.QueryExecution, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domain.ErrValidation("prompt is required")
	}
	if s.translator == nil {
		return nil, domain.ErrUnavailable("natural-language queries are not configured")
	}

	queryText, err := s.translator.Translate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, queryText, &prompt, requestID)
}

// Get returns an execution's current state.
func (s *Service) Get(ctx context.Context, id string) (*domain.QueryExecution, error) {
	return s.executions.Get(ctx, id)
}

// WaitForResult polls with a bounded number of short attempts, then
// returns whatever state the execution is in — possibly still RUNNING.
// A caller timing out here never affects the execution itself.
func (s *Service) WaitForResult(ctx context.Context, id string) (*domain.QueryExecution, error) {
	// The first read both validates the id and short-circuits terminal
	// executions.
	execution, err := s.executions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if execution.Status.IsTerminal() {
		return execution, nil
	}

	for attempt := 0; attempt < s.cfg.PollAttempts; attempt++ {
		if s.jobs.Wait(id, s.cfg.PollInterval) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return s.executions.Get(ctx, id)
}

// Cancel requests cooperative cancellation of a running execution and
// best-effort cancellation of the remote side. Cancelling a terminal
// execution is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) error {
	execution, err := s.executions.Get(ctx, id)
	if err != nil {
		return err
	}
	if execution.Status.IsTerminal() {
		return nil
	}

	if canceller, ok := s.engine.(domain.QueryCanceller); ok {
		if err := canceller.CancelQuery(ctx, id); err != nil {
			s.logger.Warn("remote query cancel failed", "execution_id", id, "error", err)
		}
	}
	s.jobs.Cancel(id)
	return nil
}

// Delete removes a live execution record. History entries are never
// deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Cancel(ctx, id); err != nil {
		return err
	}
	return s.executions.Delete(ctx, id)
}

// History returns execution history entries, newest first, with the
// total count.
func (s *Service) History(ctx context.Context, filter domain.QueryHistoryFilter) ([]domain.QueryHistoryEntry, int64, error) {
	return s.history.List(ctx, filter)
}
