package domain

import "time"

// History pagination bounds.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// QueryColumn describes one column of a query result set.
type QueryColumn struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
}

// QueryResult is the payload returned by the remote query engine.
type QueryResult struct {
	Columns []QueryColumn
	Rows    []map[string]interface{}
}

// QueryExecution stores the lifecycle and result of one query run
// against the remote engine. Executions never rest in PENDING: they
// enter RUNNING synchronously on submission.
type QueryExecution struct {
	ID              string
	RequestID       string
	QueryText       string
	NaturalLanguage *string
	Status          JobStatus
	Columns         []QueryColumn
	Rows            []map[string]interface{}
	RowCount        int
	ExecutionTimeMs *int64
	ErrorMessage    *string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// QueryHistoryEntry is one immutable history record, appended on every
// terminal transition regardless of outcome.
type QueryHistoryEntry struct {
	ID              int64
	ExecutionID     string
	QueryText       string
	NaturalLanguage *string
	Status          JobStatus
	RowCount        int
	ExecutionTimeMs *int64
	ErrorMessage    *string
	CreatedAt       time.Time
}

// QueryHistoryFilter holds pagination parameters for listing history
// newest-first.
type QueryHistoryFilter struct {
	Limit  int
	Offset int
}

// EffectiveLimit clamps the requested page size to [1, MaxHistoryLimit].
func (f QueryHistoryFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return f.Limit
}

// EffectiveOffset clamps the offset to be non-negative.
func (f QueryHistoryFilter) EffectiveOffset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}
