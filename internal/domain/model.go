package domain

import (
	"time"
	"unicode/utf8"
)

const MaxDatabaseNameLength = 255

// SemanticModel is a registered tabular model served by a remote
// analytics engine, keyed by its database name.
type SemanticModel struct {
	DatabaseName  string
	ServerAddress string
	ModelName     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RegisterModelRequest holds parameters for registering a model before
// its first analysis.
type RegisterModelRequest struct {
	DatabaseName  string
	ServerAddress string
	ModelName     string
}

// Validate checks that the request is well-formed.
func (r *RegisterModelRequest) Validate() error {
	if r.DatabaseName == "" {
		return ErrValidation("database_name is required")
	}
	if utf8.RuneCountInString(r.DatabaseName) > MaxDatabaseNameLength {
		return ErrValidation("database_name must be <= %d characters", MaxDatabaseNameLength)
	}
	if r.ServerAddress == "" {
		return ErrValidation("server_address is required")
	}
	return nil
}

// AnalysisRun is one best-practice analysis of a semantic model.
type AnalysisRun struct {
	ID                string
	ModelDatabaseName string
	Status            JobStatus
	ErrorMessage      *string
	ErrorCount        int
	WarningCount      int
	InfoCount         int
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
}

// Finding fix statuses.
const (
	FixStatusUnfixed    = "UNFIXED"
	FixStatusInProgress = "IN_PROGRESS"
	FixStatusFixed      = "FIXED"
	FixStatusFailed     = "FAILED"
)

// Finding is one rule violation detected against a model snapshot.
// Seq preserves evaluation order within the run.
type Finding struct {
	ID             string
	RunID          string
	Seq            int
	RuleID         string
	RuleName       string
	Severity       int
	Category       string
	AffectedObject string
	ObjectType     string
	FixStatus      string
	FixSummary     *string
	CreatedAt      time.Time
}

// RunSummary aggregates finding counts by severity for one run.
type RunSummary struct {
	ErrorCount   int
	WarningCount int
	InfoCount    int
}
