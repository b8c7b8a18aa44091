package api

import (
	"time"

	"modelsentry/internal/domain"
)

// === Wire types ===

type Model struct {
	DatabaseName  string    `json:"databaseName"`
	ServerAddress string    `json:"serverAddress"`
	ModelName     string    `json:"modelName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Run struct {
	ID                string     `json:"id"`
	ModelDatabaseName string     `json:"modelDatabaseName"`
	Status            string     `json:"status"`
	ErrorMessage      *string    `json:"errorMessage,omitempty"`
	ErrorCount        int        `json:"errorCount"`
	WarningCount      int        `json:"warningCount"`
	InfoCount         int        `json:"infoCount"`
	CreatedAt         time.Time  `json:"createdAt"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

type Finding struct {
	ID             string  `json:"id"`
	RunID          string  `json:"runId"`
	RuleID         string  `json:"ruleId"`
	RuleName       string  `json:"ruleName"`
	Severity       int     `json:"severity"`
	Category       string  `json:"category"`
	AffectedObject string  `json:"affectedObject"`
	ObjectType     string  `json:"objectType"`
	FixStatus      string  `json:"fixStatus"`
	FixSummary     *string `json:"fixSummary,omitempty"`
}

type FindingsPage struct {
	Findings []Finding  `json:"findings"`
	Summary  RunSummary `json:"summary"`
}

type RunSummary struct {
	ErrorCount   int `json:"errorCount"`
	WarningCount int `json:"warningCount"`
	InfoCount    int `json:"infoCount"`
}

type FixSession struct {
	ID           string     `json:"id"`
	FindingID    string     `json:"findingId"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	FixSummary   *string    `json:"fixSummary,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

type FixStep struct {
	StepNumber int       `json:"stepNumber"`
	EventType  string    `json:"eventType"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

type QueryExecution struct {
	ID              string                   `json:"id"`
	QueryText       string                   `json:"queryText"`
	NaturalLanguage *string                  `json:"naturalLanguage,omitempty"`
	Status          string                   `json:"status"`
	Columns         []domain.QueryColumn     `json:"columns,omitempty"`
	Rows            []map[string]interface{} `json:"rows,omitempty"`
	RowCount        int                      `json:"rowCount"`
	ExecutionTimeMs *int64                   `json:"executionTimeMs,omitempty"`
	ErrorMessage    *string                  `json:"errorMessage,omitempty"`
	StartedAt       time.Time                `json:"startedAt"`
	CompletedAt     *time.Time               `json:"completedAt,omitempty"`
}

type QueryHistoryEntry struct {
	ID              int64     `json:"id"`
	ExecutionID     string    `json:"executionId"`
	QueryText       string    `json:"queryText"`
	NaturalLanguage *string   `json:"naturalLanguage,omitempty"`
	Status          string    `json:"status"`
	RowCount        int       `json:"rowCount"`
	ExecutionTimeMs *int64    `json:"executionTimeMs,omitempty"`
	ErrorMessage    *string   `json:"errorMessage,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type QueryHistoryPage struct {
	Entries []QueryHistoryEntry `json:"entries"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// Rule extends the catalog rule with the derived hasFixExpression flag
// the UI keys off.
type Rule struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Category         string `json:"category"`
	Description      string `json:"description,omitempty"`
	Severity         int    `json:"severity"`
	Scope            string `json:"scope"`
	Expression       string `json:"expression"`
	FixExpression    string `json:"fixExpression,omitempty"`
	HasFixExpression bool   `json:"hasFixExpression"`
}

// === Mapping helpers ===

func modelToAPI(m *domain.SemanticModel) Model {
	return Model{
		DatabaseName:  m.DatabaseName,
		ServerAddress: m.ServerAddress,
		ModelName:     m.ModelName,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func runToAPI(r *domain.AnalysisRun) Run {
	return Run{
		ID:                r.ID,
		ModelDatabaseName: r.ModelDatabaseName,
		Status:            string(r.Status),
		ErrorMessage:      r.ErrorMessage,
		ErrorCount:        r.ErrorCount,
		WarningCount:      r.WarningCount,
		InfoCount:         r.InfoCount,
		CreatedAt:         r.CreatedAt,
		StartedAt:         r.StartedAt,
		CompletedAt:       r.CompletedAt,
	}
}

func findingToAPI(f *domain.Finding) Finding {
	return Finding{
		ID:             f.ID,
		RunID:          f.RunID,
		RuleID:         f.RuleID,
		RuleName:       f.RuleName,
		Severity:       f.Severity,
		Category:       f.Category,
		AffectedObject: f.AffectedObject,
		ObjectType:     f.ObjectType,
		FixStatus:      f.FixStatus,
		FixSummary:     f.FixSummary,
	}
}

func fixSessionToAPI(s *domain.FixSession) FixSession {
	return FixSession{
		ID:           s.ID,
		FindingID:    s.FindingID,
		Status:       string(s.Status),
		ErrorMessage: s.ErrorMessage,
		FixSummary:   s.FixSummary,
		CreatedAt:    s.CreatedAt,
		StartedAt:    s.StartedAt,
		CompletedAt:  s.CompletedAt,
	}
}

func fixStepToAPI(s *domain.FixStep) FixStep {
	return FixStep{
		StepNumber: s.StepNumber,
		EventType:  s.EventType,
		Content:    s.Content,
		CreatedAt:  s.CreatedAt,
	}
}

func executionToAPI(e *domain.QueryExecution) QueryExecution {
	return QueryExecution{
		ID:              e.ID,
		QueryText:       e.QueryText,
		NaturalLanguage: e.NaturalLanguage,
		Status:          string(e.Status),
		Columns:         e.Columns,
		Rows:            e.Rows,
		RowCount:        e.RowCount,
		ExecutionTimeMs: e.ExecutionTimeMs,
		ErrorMessage:    e.ErrorMessage,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
	}
}

func historyEntryToAPI(e *domain.QueryHistoryEntry) QueryHistoryEntry {
	return QueryHistoryEntry{
		ID:              e.ID,
		ExecutionID:     e.ExecutionID,
		QueryText:       e.QueryText,
		NaturalLanguage: e.NaturalLanguage,
		Status:          string(e.Status),
		RowCount:        e.RowCount,
		ExecutionTimeMs: e.ExecutionTimeMs,
		ErrorMessage:    e.ErrorMessage,
		CreatedAt:       e.CreatedAt,
	}
}

func ruleToAPI(r *domain.Rule) Rule {
	return Rule{
		ID:               r.ID,
		Name:             r.Name,
		Category:         r.Category,
		Description:      r.Description,
		Severity:         r.Severity,
		Scope:            r.Scope,
		Expression:       r.Expression,
		FixExpression:    r.FixExpression,
		HasFixExpression: r.HasFixExpression(),
	}
}
