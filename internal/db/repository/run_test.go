package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsentry/internal/domain"
)

func TestRunLifecycle(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	run := repos.seedRun(t, "AdventureWorks")
	assert.Equal(t, domain.JobStatusPending, run.Status)
	assert.NotEmpty(t, run.ID)
	assert.Nil(t, run.StartedAt)

	require.NoError(t, repos.runs.MarkRunning(ctx, run.ID))
	run, err := repos.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, run.Status)
	assert.NotNil(t, run.StartedAt)

	findings := []domain.Finding{
		finding("AVOID_FLOATING_POINT", domain.SeverityError),
		finding("AVOID_IFERROR", domain.SeverityWarning),
		finding("HIDE_KEY_COLUMNS", domain.SeverityInfo),
		finding("SUMMARIZE_NONE_FOR_KEYS", domain.SeverityWarning),
	}
	require.NoError(t, repos.runs.Complete(ctx, run.ID, findings))

	run, err = repos.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, run.Status)
	assert.Equal(t, 1, run.ErrorCount)
	assert.Equal(t, 2, run.WarningCount)
	assert.Equal(t, 1, run.InfoCount)
	assert.NotNil(t, run.CompletedAt)

	stored, err := repos.runs.ListFindings(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for i, f := range stored {
		assert.Equal(t, i+1, f.Seq)
		assert.Equal(t, domain.FixStatusUnfixed, f.FixStatus)
	}
	assert.Equal(t, "AVOID_FLOATING_POINT", stored[0].RuleID)
}

func TestRunMarkFailedFromPending(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	run := repos.seedRun(t, "AdventureWorks")
	require.NoError(t, repos.runs.MarkFailed(ctx, run.ID, domain.CancelReasonBeforeStart))

	run, err := repos.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, domain.CancelReasonBeforeStart, *run.ErrorMessage)
}

func TestRunTerminalTransitionRace(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	run := repos.seedRun(t, "AdventureWorks")
	require.NoError(t, repos.runs.MarkRunning(ctx, run.ID))
	require.NoError(t, repos.runs.MarkFailed(ctx, run.ID, "cancelled"))

	// The slower Complete loses: zero rows affected, findings rolled back.
	err := repos.runs.Complete(ctx, run.ID, []domain.Finding{finding("R", 1)})
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	stored, err := repos.runs.ListFindings(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)

	run, err = repos.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, run.Status)
	assert.Zero(t, run.ErrorCount)
}

func TestRunMarkRunningRequiresPending(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	run := repos.seedRun(t, "AdventureWorks")
	require.NoError(t, repos.runs.MarkRunning(ctx, run.ID))

	err := repos.runs.MarkRunning(ctx, run.ID)
	var invalid *domain.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestRunTransitionUnknownID(t *testing.T) {
	repos := newTestRepos(t)

	err := repos.runs.MarkRunning(context.Background(), "missing")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRunListByModelNewestFirst(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	repos.seedModel(t, "AdventureWorks")
	var ids []string
	for i := 0; i < 3; i++ {
		run, err := repos.runs.Create(ctx, &domain.AnalysisRun{ModelDatabaseName: "AdventureWorks"})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := repos.runs.ListByModel(ctx, "AdventureWorks")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	// UUIDv7 ids are time-ordered, so newest-first means descending ids.
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)
}

func TestUpdateFindingFixRecomputesAggregates(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	run, stored := repos.seedCompletedRun(t, "AdventureWorks", []domain.Finding{
		finding("A", domain.SeverityError),
		finding("B", domain.SeverityError),
	})
	assert.Equal(t, 2, run.ErrorCount)

	summary := "set DataType to Decimal"
	require.NoError(t, repos.runs.UpdateFindingFix(ctx, stored[0].ID, domain.FixStatusFixed, &summary))

	run, err := repos.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.ErrorCount)

	fixed, err := repos.runs.GetFinding(ctx, stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FixStatusFixed, fixed.FixStatus)
	require.NotNil(t, fixed.FixSummary)
	assert.Equal(t, summary, *fixed.FixSummary)

	// Non-FIXED statuses keep the finding in the aggregates.
	require.NoError(t, repos.runs.UpdateFindingFix(ctx, stored[1].ID, domain.FixStatusFailed, nil))
	run, err = repos.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.ErrorCount)
}
