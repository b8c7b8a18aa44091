package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"modelsentry/internal/domain"
)

var _ domain.FixSessionRepository = (*FixSessionRepo)(nil)

// FixSessionRepo stores autofix sessions and their step trails in
// SQLite. The partial unique index idx_fix_sessions_active enforces at
// most one non-terminal session per finding, even under concurrent
// creates.
type FixSessionRepo struct {
	db *sql.DB
}

// NewFixSessionRepo creates a new FixSessionRepo.
func NewFixSessionRepo(db *sql.DB) *FixSessionRepo {
	return &FixSessionRepo{db: db}
}

// Create inserts a PENDING session for the finding.
func (r *FixSessionRepo) Create(ctx context.Context, s *domain.FixSession) (*domain.FixSession, error) {
	if s == nil || s.FindingID == "" {
		return nil, domain.ErrValidation("finding id is required")
	}
	if s.ID == "" {
		s.ID = domain.NewID()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fix_sessions (id, finding_id, status)
		VALUES (?, ?, ?)
	`, s.ID, s.FindingID, string(domain.JobStatusPending))
	if err != nil {
		if strings.Contains(err.Error(), "idx_fix_sessions_active") {
			return nil, domain.ErrSessionActive("finding %q already has an active fix session", s.FindingID)
		}
		return nil, mapDBError(err)
	}

	return r.Get(ctx, s.ID)
}

// Get returns a session by id.
func (r *FixSessionRepo) Get(ctx context.Context, id string) (*domain.FixSession, error) {
	var (
		s                      domain.FixSession
		status                 string
		errorMessage           sql.NullString
		fixSummary             sql.NullString
		startedAt, completedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, finding_id, status, error_message, fix_summary,
		       created_at, started_at, completed_at
		FROM fix_sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.FindingID, &status, &errorMessage, &fixSummary,
		&s.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("fix session %q not found", id)
		}
		return nil, mapDBError(err)
	}
	s.Status = domain.JobStatus(status)
	s.ErrorMessage = strPtr(errorMessage)
	s.FixSummary = strPtr(fixSummary)
	s.StartedAt = timePtr(startedAt)
	s.CompletedAt = timePtr(completedAt)
	return &s, nil
}

// ListByFinding returns all sessions for a finding, newest first.
func (r *FixSessionRepo) ListByFinding(ctx context.Context, findingID string) ([]domain.FixSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, finding_id, status, error_message, fix_summary,
		       created_at, started_at, completed_at
		FROM fix_sessions WHERE finding_id = ?
		ORDER BY created_at DESC, id DESC
	`, findingID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var sessions []domain.FixSession
	for rows.Next() {
		var (
			s                      domain.FixSession
			status                 string
			errorMessage           sql.NullString
			fixSummary             sql.NullString
			startedAt, completedAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.FindingID, &status, &errorMessage, &fixSummary,
			&s.CreatedAt, &startedAt, &completedAt); err != nil {
			return nil, mapDBError(err)
		}
		s.Status = domain.JobStatus(status)
		s.ErrorMessage = strPtr(errorMessage)
		s.FixSummary = strPtr(fixSummary)
		s.StartedAt = timePtr(startedAt)
		s.CompletedAt = timePtr(completedAt)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// MarkRunning transitions PENDING → RUNNING.
func (r *FixSessionRepo) MarkRunning(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fix_sessions
		SET status = ?, started_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, string(domain.JobStatusRunning), id, string(domain.JobStatusPending))
	if err != nil {
		return mapDBError(err)
	}
	return r.transitionOutcome(ctx, res, id, "start")
}

// Complete transitions RUNNING → COMPLETED and stores the fix summary.
func (r *FixSessionRepo) Complete(ctx context.Context, id, summary string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fix_sessions
		SET status = ?, fix_summary = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, string(domain.JobStatusCompleted), summary, id, string(domain.JobStatusRunning))
	if err != nil {
		return mapDBError(err)
	}
	return r.transitionOutcome(ctx, res, id, "complete")
}

// MarkFailed transitions a non-terminal session to FAILED.
func (r *FixSessionRepo) MarkFailed(ctx context.Context, id, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fix_sessions
		SET status = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?, ?)
	`, string(domain.JobStatusFailed), message, id,
		string(domain.JobStatusPending), string(domain.JobStatusRunning))
	if err != nil {
		return mapDBError(err)
	}
	return r.transitionOutcome(ctx, res, id, "fail")
}

// AppendStep assigns the next step number and inserts the step. The
// single-writer worker owns the session, so the MAX+1 read and the
// insert run in one immediate transaction on the write pool.
func (r *FixSessionRepo) AppendStep(ctx context.Context, sessionID, eventType, content string) (*domain.FixStep, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin step tx: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(step_number), 0) + 1 FROM fix_steps WHERE session_id = ?
	`, sessionID).Scan(&next)
	if err != nil {
		return nil, mapDBError(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fix_steps (session_id, step_number, event_type, content)
		VALUES (?, ?, ?, ?)
	`, sessionID, next, eventType, content)
	if err != nil {
		return nil, mapDBError(err)
	}

	step := &domain.FixStep{
		SessionID:  sessionID,
		StepNumber: next,
		EventType:  eventType,
		Content:    content,
	}
	err = tx.QueryRowContext(ctx, `
		SELECT created_at FROM fix_steps WHERE session_id = ? AND step_number = ?
	`, sessionID, next).Scan(&step.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapDBError(err)
	}
	return step, nil
}

// ListSteps returns a session's steps in step-number order.
func (r *FixSessionRepo) ListSteps(ctx context.Context, sessionID string) ([]domain.FixStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, step_number, event_type, content, created_at
		FROM fix_steps WHERE session_id = ? ORDER BY step_number
	`, sessionID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var steps []domain.FixStep
	for rows.Next() {
		var st domain.FixStep
		if err := rows.Scan(&st.SessionID, &st.StepNumber, &st.EventType, &st.Content, &st.CreatedAt); err != nil {
			return nil, mapDBError(err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (r *FixSessionRepo) transitionOutcome(ctx context.Context, res sql.Result, id, verb string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition("cannot %s fix session %q in its current state", verb, id)
}
