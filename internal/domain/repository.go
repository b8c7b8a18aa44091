package domain

import "context"

// ModelRepository persists registered semantic models.
type ModelRepository interface {
	Upsert(ctx context.Context, m *SemanticModel) (*SemanticModel, error)
	Get(ctx context.Context, databaseName string) (*SemanticModel, error)
	List(ctx context.Context) ([]SemanticModel, error)

	// Delete cascades: fix steps, fix sessions, findings, runs, then the
	// model row, all in one transaction. No partial deletion is ever
	// visible.
	Delete(ctx context.Context, databaseName string) error
}

// RunRepository persists analysis runs and their findings.
//
// Status transitions are conditional updates: a transition whose
// precondition no longer holds returns *InvalidTransitionError and
// leaves the row untouched, so exactly one terminal transition wins a
// race and the loser re-reads the terminal state.
type RunRepository interface {
	Create(ctx context.Context, run *AnalysisRun) (*AnalysisRun, error)
	Get(ctx context.Context, id string) (*AnalysisRun, error)
	ListByModel(ctx context.Context, databaseName string) ([]AnalysisRun, error)

	MarkRunning(ctx context.Context, id string) error
	// Complete inserts all findings, recomputes severity aggregates, and
	// marks the run COMPLETED in a single transaction. Findings are not
	// visible to readers before the run is terminal.
	Complete(ctx context.Context, id string, findings []Finding) error
	MarkFailed(ctx context.Context, id, message string) error

	ListFindings(ctx context.Context, runID string) ([]Finding, error)
	GetFinding(ctx context.Context, findingID string) (*Finding, error)
	// UpdateFindingFix sets a finding's fix status/summary and recomputes
	// the owning run's aggregates in the same transaction.
	UpdateFindingFix(ctx context.Context, findingID, fixStatus string, fixSummary *string) error
}

// FixSessionRepository persists autofix sessions and their append-only
// step trails.
type FixSessionRepository interface {
	// Create inserts a PENDING session. Returns *SessionActiveError when
	// the finding already has a non-terminal session.
	Create(ctx context.Context, s *FixSession) (*FixSession, error)
	Get(ctx context.Context, id string) (*FixSession, error)
	ListByFinding(ctx context.Context, findingID string) ([]FixSession, error)

	MarkRunning(ctx context.Context, id string) error
	Complete(ctx context.Context, id, summary string) error
	MarkFailed(ctx context.Context, id, message string) error

	// AppendStep assigns the next gap-free step number and inserts the
	// step. Appended steps are immediately visible to readers.
	AppendStep(ctx context.Context, sessionID, eventType, content string) (*FixStep, error)
	ListSteps(ctx context.Context, sessionID string) ([]FixStep, error)
}

// QueryExecutionRepository persists query executions. Terminal
// transitions append the immutable history row in the same transaction.
type QueryExecutionRepository interface {
	Create(ctx context.Context, e *QueryExecution) (*QueryExecution, error)
	Get(ctx context.Context, id string) (*QueryExecution, error)
	GetByRequestID(ctx context.Context, requestID string) (*QueryExecution, error)

	Complete(ctx context.Context, id string, columns []QueryColumn, rows []map[string]interface{}, executionTimeMs int64) error
	MarkFailed(ctx context.Context, id, message string, executionTimeMs int64) error

	Delete(ctx context.Context, id string) error
}

// QueryHistoryRepository reads the append-only execution history,
// newest-first.
type QueryHistoryRepository interface {
	List(ctx context.Context, filter QueryHistoryFilter) ([]QueryHistoryEntry, int64, error)
}
