// Package autofix orchestrates AI-driven fix sessions for findings,
// recording each session as an append-only step trail.
package autofix

import (
	"context"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"modelsentry/internal/domain"
	"modelsentry/internal/lifecycle"
)

// ChatCompleter is the slice of the OpenAI-compatible client the agent
// loop needs. *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds the agent's tunables.
type Config struct {
	ChatModel  string        // completion model name
	MaxSteps   int           // persisted-step cap per session
	JobTimeout time.Duration // soft timeout per session; <= 0 disables
}

const defaultMaxSteps = 20

// Service drives fix sessions: one agent loop per session, with the
// owning finding's fix status kept in lockstep with the session state.
type Service struct {
	sessions     domain.FixSessionRepository
	runs         domain.RunRepository
	models       domain.ModelRepository
	chat         ChatCompleter
	editor       domain.ModelEditor
	introspector domain.ModelIntrospector
	queryEngine  domain.QueryEngine
	jobs         *lifecycle.Manager
	cfg          Config
	logger       *slog.Logger
}

// NewService creates an autofix Service. chat may be nil when no AI
// endpoint is configured; session reads still work but StartSession
// fails with an Unavailable error.
func NewService(
	sessions domain.FixSessionRepository,
	runs domain.RunRepository,
	models domain.ModelRepository,
	chat ChatCompleter,
	editor domain.ModelEditor,
	introspector domain.ModelIntrospector,
	queryEngine domain.QueryEngine,
	jobs *lifecycle.Manager,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	return &Service{
		sessions:     sessions,
		runs:         runs,
		models:       models,
		chat:         chat,
		editor:       editor,
		introspector: introspector,
		queryEngine:  queryEngine,
		jobs:         jobs,
		cfg:          cfg,
		logger:       logger,
	}
}

// StartSession creates a PENDING session for the finding and launches
// the agent worker. At most one non-terminal session may exist per
// finding; a second start fails with SessionActiveError.
func (s *Service) StartSession(ctx context.Context, findingID string) (*domain.FixSession, error) {
	if s.chat == nil {
		return nil, domain.ErrUnavailable("fix sessions require an AI endpoint (set OPENAI_API_KEY)")
	}

	finding, err := s.runs.GetFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}
	run, err := s.runs.Get(ctx, finding.RunID)
	if err != nil {
		return nil, err
	}
	model, err := s.models.Get(ctx, run.ModelDatabaseName)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, &domain.FixSession{FindingID: findingID})
	if err != nil {
		return nil, err
	}

	sessionID := session.ID
	lifecycle.Launch(s.jobs, sessionID, s.cfg.JobTimeout,
		func(ctx context.Context) (string, error) {
			return s.runAgent(ctx, sessionID, finding, model)
		},
		lifecycle.Hooks[string]{
			OnRunning: func(ctx context.Context) error {
				if err := s.sessions.MarkRunning(ctx, sessionID); err != nil {
					return err
				}
				return s.runs.UpdateFindingFix(ctx, findingID, domain.FixStatusInProgress, nil)
			},
			OnCompleted: func(ctx context.Context, summary string) error {
				if err := s.sessions.Complete(ctx, sessionID, summary); err != nil {
					return err
				}
				return s.runs.UpdateFindingFix(ctx, findingID, domain.FixStatusFixed, &summary)
			},
			OnFailed: func(ctx context.Context, reason string) error {
				if err := s.sessions.MarkFailed(ctx, sessionID, reason); err != nil {
					return err
				}
				return s.runs.UpdateFindingFix(ctx, findingID, domain.FixStatusFailed, nil)
			},
		})

	return session, nil
}

// GetSession returns a session's current state.
func (s *Service) GetSession(ctx context.Context, id string) (*domain.FixSession, error) {
	return s.sessions.Get(ctx, id)
}

// ListSessions returns a finding's session history, newest first.
func (s *Service) ListSessions(ctx context.Context, findingID string) ([]domain.FixSession, error) {
	if _, err := s.runs.GetFinding(ctx, findingID); err != nil {
		return nil, err
	}
	return s.sessions.ListByFinding(ctx, findingID)
}

// ListSteps returns a session's step trail in order. Steps appended by
// a live worker are immediately visible.
func (s *Service) ListSteps(ctx context.Context, sessionID string) ([]domain.FixStep, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.sessions.ListSteps(ctx, sessionID)
}

// CancelSession requests cooperative cancellation, observed at the next
// step boundary. Cancelling a terminal session is a no-op; a PENDING
// session fails before start.
func (s *Service) CancelSession(ctx context.Context, id string) error {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return nil
	}

	if session.Status == domain.JobStatusPending {
		err := s.sessions.MarkFailed(ctx, id, domain.CancelReasonBeforeStart)
		if _, lost := err.(*domain.InvalidTransitionError); err != nil && !lost {
			return err
		}
		if err == nil {
			// The worker never ran; the finding must not stay IN_PROGRESS.
			_ = s.runs.UpdateFindingFix(ctx, session.FindingID, domain.FixStatusFailed, nil)
		}
	}
	s.jobs.Cancel(id)
	return nil
}
