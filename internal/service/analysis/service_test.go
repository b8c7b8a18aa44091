package analysis

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsentry/internal/db"
	"modelsentry/internal/db/repository"
	"modelsentry/internal/domain"
	"modelsentry/internal/lifecycle"
	"modelsentry/internal/rules"
	"modelsentry/internal/testutil"
)

const waitTimeout = 5 * time.Second

type serviceFixture struct {
	svc          *Service
	models       *repository.ModelRepo
	runs         *repository.RunRepo
	jobs         *lifecycle.Manager
	introspector *testutil.MockIntrospector
	provider     *testutil.MockRuleProvider
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)

	f := &serviceFixture{
		models: repository.NewModelRepo(writeDB),
		runs:   repository.NewRunRepo(writeDB),
		jobs:   lifecycle.NewManager(slog.Default()),
		introspector: &testutil.MockIntrospector{
			SnapshotFn: func(ctx context.Context, serverAddress, databaseName string) (*domain.ModelSnapshot, error) {
				return testutil.Snapshot(), nil
			},
		},
		provider: &testutil.MockRuleProvider{Rules: rules.Builtin()},
	}
	f.svc = NewService(f.models, f.runs, f.provider, f.introspector,
		rules.NewEngine(slog.Default()), f.jobs, "localhost:9000", time.Minute, slog.Default())
	return f
}

func (f *serviceFixture) waitForRun(t *testing.T, id string) *domain.AnalysisRun {
	t.Helper()
	require.True(t, f.jobs.Wait(id, waitTimeout), "run %s did not finish", id)
	run, err := f.runs.Get(context.Background(), id)
	require.NoError(t, err)
	return run
}

func TestStartRunCompletesWithFindings(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterModel(ctx, &domain.RegisterModelRequest{
		DatabaseName:  "AdventureWorks",
		ServerAddress: "tabular.internal:9000",
	})
	require.NoError(t, err)

	run, err := f.svc.StartRun(ctx, "AdventureWorks")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, run.Status)

	run = f.waitForRun(t, run.ID)
	assert.Equal(t, domain.JobStatusCompleted, run.Status)
	assert.Positive(t, run.ErrorCount+run.WarningCount+run.InfoCount)

	findings, summary, err := f.svc.ListFindings(ctx, run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, findings)
	assert.Equal(t, run.ErrorCount, summary.ErrorCount)

	// Findings carry evaluation order.
	for i, finding := range findings {
		assert.Equal(t, i+1, finding.Seq)
	}
}

func TestStartRunAutoRegistersModel(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	run, err := f.svc.StartRun(ctx, "Contoso")
	require.NoError(t, err)
	f.waitForRun(t, run.ID)

	model, err := f.svc.GetModel(ctx, "Contoso")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", model.ServerAddress)
}

func TestStartRunValidatesDatabaseName(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.StartRun(context.Background(), "  ")
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestStartRunSnapshotFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.introspector.SnapshotFn = func(ctx context.Context, serverAddress, databaseName string) (*domain.ModelSnapshot, error) {
		return nil, domain.ErrUnavailable("model %q is offline", databaseName)
	}

	run, err := f.svc.StartRun(context.Background(), "AdventureWorks")
	require.NoError(t, err)

	run = f.waitForRun(t, run.ID)
	assert.Equal(t, domain.JobStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "offline")
	assert.Zero(t, run.ErrorCount)

	findings, _, err := f.svc.ListFindings(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCancelRunBeforeStart(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// A PENDING run with no worker behind it: the cancel must fail it
	// directly rather than wait for a worker that will never come.
	_, err := f.models.Upsert(ctx, &domain.SemanticModel{DatabaseName: "AdventureWorks"})
	require.NoError(t, err)
	run, err := f.runs.Create(ctx, &domain.AnalysisRun{ModelDatabaseName: "AdventureWorks"})
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelRun(ctx, run.ID))

	run, err = f.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, domain.CancelReasonBeforeStart, *run.ErrorMessage)
}

func TestCancelRunInFlight(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	f.introspector.SnapshotFn = func(ctx context.Context, serverAddress, databaseName string) (*domain.ModelSnapshot, error) {
		close(started)
		<-release
		return nil, ctx.Err()
	}

	run, err := f.svc.StartRun(ctx, "AdventureWorks")
	require.NoError(t, err)
	<-started

	require.NoError(t, f.svc.CancelRun(ctx, run.ID))
	close(release)

	run = f.waitForRun(t, run.ID)
	assert.Equal(t, domain.JobStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, domain.CancelReasonCancelled, *run.ErrorMessage)
}

func TestCancelRunTerminalIsNoop(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	run, err := f.svc.StartRun(ctx, "AdventureWorks")
	require.NoError(t, err)
	run = f.waitForRun(t, run.ID)
	require.Equal(t, domain.JobStatusCompleted, run.Status)

	require.NoError(t, f.svc.CancelRun(ctx, run.ID))
	run, err = f.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, run.Status)
}

func TestDeleteModelRemovesRuns(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	run, err := f.svc.StartRun(ctx, "AdventureWorks")
	require.NoError(t, err)
	f.waitForRun(t, run.ID)

	require.NoError(t, f.svc.DeleteModel(ctx, "AdventureWorks"))

	var notFound *domain.NotFoundError
	_, err = f.svc.GetModel(ctx, "AdventureWorks")
	require.ErrorAs(t, err, &notFound)
	_, err = f.svc.GetRun(ctx, run.ID)
	assert.ErrorAs(t, err, &notFound)
}

func TestListRunsRequiresKnownModel(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.ListRuns(context.Background(), "missing")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
