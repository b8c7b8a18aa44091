package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"modelsentry/internal/db"
	"modelsentry/internal/domain"
)

// testRepos bundles all repositories over one migrated test database.
type testRepos struct {
	models   *ModelRepo
	runs     *RunRepo
	sessions *FixSessionRepo
	queries  *QueryExecutionRepo
}

func newTestRepos(t *testing.T) *testRepos {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	return &testRepos{
		models:   NewModelRepo(writeDB),
		runs:     NewRunRepo(writeDB),
		sessions: NewFixSessionRepo(writeDB),
		queries:  NewQueryExecutionRepo(writeDB),
	}
}

func (r *testRepos) seedModel(t *testing.T, databaseName string) *domain.SemanticModel {
	t.Helper()
	model, err := r.models.Upsert(context.Background(), &domain.SemanticModel{
		DatabaseName:  databaseName,
		ServerAddress: "localhost:9000",
		ModelName:     databaseName,
	})
	require.NoError(t, err)
	return model
}

func (r *testRepos) seedRun(t *testing.T, databaseName string) *domain.AnalysisRun {
	t.Helper()
	r.seedModel(t, databaseName)
	run, err := r.runs.Create(context.Background(), &domain.AnalysisRun{ModelDatabaseName: databaseName})
	require.NoError(t, err)
	return run
}

// seedCompletedRun drives a run to COMPLETED with the given findings and
// returns the stored findings in evaluation order.
func (r *testRepos) seedCompletedRun(t *testing.T, databaseName string, findings []domain.Finding) (*domain.AnalysisRun, []domain.Finding) {
	t.Helper()
	ctx := context.Background()

	run := r.seedRun(t, databaseName)
	require.NoError(t, r.runs.MarkRunning(ctx, run.ID))
	require.NoError(t, r.runs.Complete(ctx, run.ID, findings))

	run, err := r.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	stored, err := r.runs.ListFindings(ctx, run.ID)
	require.NoError(t, err)
	return run, stored
}

func finding(ruleID string, severity int) domain.Finding {
	return domain.Finding{
		RuleID:         ruleID,
		RuleName:       "rule " + ruleID,
		Severity:       severity,
		Category:       domain.CategoryPerformance,
		AffectedObject: "Sales[Amount]",
		ObjectType:     domain.ObjectTypeDataColumn,
	}
}
