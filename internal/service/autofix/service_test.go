package autofix

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsentry/internal/db"
	"modelsentry/internal/db/repository"
	"modelsentry/internal/domain"
	"modelsentry/internal/lifecycle"
	"modelsentry/internal/testutil"
)

const waitTimeout = 5 * time.Second

// chatFunc adapts a function to the ChatCompleter interface.
type chatFunc func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)

func (f chatFunc) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return f(ctx, req)
}

// scriptedChat returns the given responses in order and fails the test
// on extra calls.
func scriptedChat(t *testing.T, responses ...openai.ChatCompletionResponse) ChatCompleter {
	t.Helper()
	i := 0
	return chatFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		if i >= len(responses) {
			t.Errorf("unexpected chat completion call %d", i+1)
			return openai.ChatCompletionResponse{}, context.Canceled
		}
		resp := responses[i]
		i++
		return resp, nil
	})
}

func assistantMessage(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
		}},
	}
}

func assistantToolCall(content, callID, tool string, args map[string]string) openai.ChatCompletionResponse {
	argJSON, _ := json.Marshal(args)
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
				ToolCalls: []openai.ToolCall{{
					ID:   callID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tool,
						Arguments: string(argJSON),
					},
				}},
			},
		}},
	}
}

type fixFixture struct {
	models   *repository.ModelRepo
	runs     *repository.RunRepo
	sessions *repository.FixSessionRepo
	jobs     *lifecycle.Manager
	editor   *testutil.MockEditor
	finding  domain.Finding
}

func newFixFixture(t *testing.T) *fixFixture {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	ctx := context.Background()

	f := &fixFixture{
		models:   repository.NewModelRepo(writeDB),
		runs:     repository.NewRunRepo(writeDB),
		sessions: repository.NewFixSessionRepo(writeDB),
		jobs:     lifecycle.NewManager(slog.Default()),
		editor:   &testutil.MockEditor{},
	}

	_, err := f.models.Upsert(ctx, &domain.SemanticModel{
		DatabaseName:  "AdventureWorks",
		ServerAddress: "localhost:9000",
	})
	require.NoError(t, err)
	run, err := f.runs.Create(ctx, &domain.AnalysisRun{ModelDatabaseName: "AdventureWorks"})
	require.NoError(t, err)
	require.NoError(t, f.runs.MarkRunning(ctx, run.ID))
	require.NoError(t, f.runs.Complete(ctx, run.ID, []domain.Finding{{
		RuleID:         "AVOID_FLOATING_POINT",
		RuleName:       "Do not use floating point data types",
		Severity:       domain.SeverityError,
		Category:       domain.CategoryErrorPrevention,
		AffectedObject: "Sales[Amount]",
		ObjectType:     domain.ObjectTypeDataColumn,
	}}))
	findings, err := f.runs.ListFindings(ctx, run.ID)
	require.NoError(t, err)
	f.finding = findings[0]
	return f
}

func (f *fixFixture) newService(chat ChatCompleter, cfg Config) *Service {
	introspector := &testutil.MockIntrospector{
		SnapshotFn: func(ctx context.Context, serverAddress, databaseName string) (*domain.ModelSnapshot, error) {
			return testutil.Snapshot(), nil
		},
	}
	return NewService(f.sessions, f.runs, f.models, chat, f.editor, introspector,
		&testutil.MockQueryEngine{}, f.jobs, cfg, slog.Default())
}

func (f *fixFixture) waitForSession(t *testing.T, id string) *domain.FixSession {
	t.Helper()
	require.True(t, f.jobs.Wait(id, waitTimeout), "session %s did not finish", id)
	session, err := f.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return session
}

func TestStartSessionAppliesFix(t *testing.T) {
	f := newFixFixture(t)
	ctx := context.Background()

	chat := scriptedChat(t,
		assistantToolCall("the column stores currency amounts", "call_1", "update_object",
			map[string]string{"object": "Sales[Amount]", "property": "DataType", "value": "Decimal"}),
		assistantMessage("Changed DataType of Sales[Amount] to Decimal."),
	)
	svc := f.newService(chat, Config{ChatModel: "gpt-4o-mini"})

	session, err := svc.StartSession(ctx, f.finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, session.Status)

	session = f.waitForSession(t, session.ID)
	assert.Equal(t, domain.JobStatusCompleted, session.Status)
	require.NotNil(t, session.FixSummary)
	assert.Equal(t, "Changed DataType of Sales[Amount] to Decimal.", *session.FixSummary)

	// The trail records the whole loop in order.
	steps, err := svc.ListSteps(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, domain.StepEventReasoning, steps[0].EventType)
	assert.Equal(t, domain.StepEventToolCall, steps[1].EventType)
	assert.Equal(t, domain.StepEventToolResult, steps[2].EventType)
	assert.Equal(t, domain.StepEventMessage, steps[3].EventType)

	var call toolCallPayload
	require.NoError(t, json.Unmarshal([]byte(steps[1].Content), &call))
	assert.Equal(t, "update_object", call.Tool)

	// The edit reached the model and the finding flipped to FIXED.
	require.Len(t, f.editor.Updates, 1)
	assert.Equal(t, "Sales[Amount]", f.editor.Updates[0].ObjectPath)
	assert.Equal(t, "DataType", f.editor.Updates[0].Property)
	assert.Equal(t, "Decimal", f.editor.Updates[0].Value)

	finding, err := f.runs.GetFinding(ctx, f.finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FixStatusFixed, finding.FixStatus)

	run, err := f.runs.Get(ctx, f.finding.RunID)
	require.NoError(t, err)
	assert.Zero(t, run.ErrorCount)
}

func TestStartSessionRequiresChatEndpoint(t *testing.T) {
	f := newFixFixture(t)
	svc := f.newService(nil, Config{})

	_, err := svc.StartSession(context.Background(), f.finding.ID)
	var unavailable *domain.UnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestStartSessionUnknownFinding(t *testing.T) {
	f := newFixFixture(t)
	svc := f.newService(scriptedChat(t), Config{})

	_, err := svc.StartSession(context.Background(), "missing")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestStartSessionRejectsConcurrentSession(t *testing.T) {
	f := newFixFixture(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	chat := chatFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		close(started)
		<-release
		return assistantMessage("done"), nil
	})
	svc := f.newService(chat, Config{})

	first, err := svc.StartSession(ctx, f.finding.ID)
	require.NoError(t, err)
	<-started

	_, err = svc.StartSession(ctx, f.finding.ID)
	var active *domain.SessionActiveError
	assert.ErrorAs(t, err, &active)

	close(release)
	f.waitForSession(t, first.ID)
}

func TestSessionFailsOnChatError(t *testing.T) {
	f := newFixFixture(t)
	ctx := context.Background()

	chat := chatFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, context.DeadlineExceeded
	})
	svc := f.newService(chat, Config{})

	session, err := svc.StartSession(ctx, f.finding.ID)
	require.NoError(t, err)

	session = f.waitForSession(t, session.ID)
	assert.Equal(t, domain.JobStatusFailed, session.Status)
	require.NotNil(t, session.ErrorMessage)
	assert.Contains(t, *session.ErrorMessage, "chat completion")

	finding, err := f.runs.GetFinding(ctx, f.finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FixStatusFailed, finding.FixStatus)

	steps, err := svc.ListSteps(ctx, session.ID)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	assert.Equal(t, domain.StepEventError, steps[len(steps)-1].EventType)
}

func TestSessionStepLimit(t *testing.T) {
	f := newFixFixture(t)
	ctx := context.Background()

	// The agent loops on tool calls forever; the step cap must end it.
	chat := chatFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return assistantToolCall("", "call_n", "get_object_definition",
			map[string]string{"object": "Sales[Amount]"}), nil
	})
	svc := f.newService(chat, Config{MaxSteps: 4})

	session, err := svc.StartSession(ctx, f.finding.ID)
	require.NoError(t, err)

	session = f.waitForSession(t, session.ID)
	assert.Equal(t, domain.JobStatusFailed, session.Status)
	require.NotNil(t, session.ErrorMessage)
	assert.Equal(t, domain.CancelReasonStepLimit, *session.ErrorMessage)

	steps, err := svc.ListSteps(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, steps, 4)
}

func TestCancelSessionBeforeStart(t *testing.T) {
	f := newFixFixture(t)
	ctx := context.Background()
	svc := f.newService(scriptedChat(t), Config{})

	// A PENDING session with no worker behind it.
	session, err := f.sessions.Create(ctx, &domain.FixSession{FindingID: f.finding.ID})
	require.NoError(t, err)

	require.NoError(t, svc.CancelSession(ctx, session.ID))

	session, err = f.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, session.Status)
	require.NotNil(t, session.ErrorMessage)
	assert.Equal(t, domain.CancelReasonBeforeStart, *session.ErrorMessage)

	finding, err := f.runs.GetFinding(ctx, f.finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FixStatusFailed, finding.FixStatus)
}

func TestCancelSessionInFlight(t *testing.T) {
	f := newFixFixture(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	chat := chatFunc(func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		close(started)
		<-release
		return openai.ChatCompletionResponse{}, ctx.Err()
	})
	svc := f.newService(chat, Config{})

	session, err := svc.StartSession(ctx, f.finding.ID)
	require.NoError(t, err)
	<-started

	require.NoError(t, svc.CancelSession(ctx, session.ID))
	close(release)

	session = f.waitForSession(t, session.ID)
	assert.Equal(t, domain.JobStatusFailed, session.Status)
	require.NotNil(t, session.ErrorMessage)
	assert.Equal(t, domain.CancelReasonCancelled, *session.ErrorMessage)

	// The trail ends with the cancellation record.
	steps, err := svc.ListSteps(ctx, session.ID)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	assert.Equal(t, domain.StepEventError, steps[len(steps)-1].EventType)
	assert.Equal(t, domain.CancelReasonCancelled, steps[len(steps)-1].Content)
}

func TestCancelSessionDuringToolCallKeepsResult(t *testing.T) {
	f := newFixFixture(t)
	ctx := context.Background()

	// Cancel lands while the editor is mid-update. The update still
	// succeeds, so its result step must be recorded before the single
	// cancellation record ends the trail.
	started := make(chan struct{})
	release := make(chan struct{})
	f.editor.UpdateFn = func(ctx context.Context, serverAddress, databaseName, objectPath, property, value string) error {
		close(started)
		<-release
		return nil
	}

	chat := scriptedChat(t,
		assistantToolCall("switching the column to a fixed decimal", "call_1", "update_object",
			map[string]string{"object": "Sales[Amount]", "property": "DataType", "value": "Decimal"}),
	)
	svc := f.newService(chat, Config{})

	session, err := svc.StartSession(ctx, f.finding.ID)
	require.NoError(t, err)
	<-started

	require.NoError(t, svc.CancelSession(ctx, session.ID))
	close(release)

	session = f.waitForSession(t, session.ID)
	assert.Equal(t, domain.JobStatusFailed, session.Status)
	require.NotNil(t, session.ErrorMessage)
	assert.Equal(t, domain.CancelReasonCancelled, *session.ErrorMessage)

	require.Len(t, f.editor.Updates, 1)

	steps, err := svc.ListSteps(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, domain.StepEventReasoning, steps[0].EventType)
	assert.Equal(t, domain.StepEventToolCall, steps[1].EventType)
	assert.Equal(t, domain.StepEventToolResult, steps[2].EventType)
	assert.Equal(t, domain.StepEventError, steps[3].EventType)
	assert.Equal(t, domain.CancelReasonCancelled, steps[3].Content)

	var result toolResultPayload
	require.NoError(t, json.Unmarshal([]byte(steps[2].Content), &result))
	assert.Equal(t, "call_1", result.ID)
}

func TestListSessionsNewestFirst(t *testing.T) {
	f := newFixFixture(t)
	ctx := context.Background()

	chat := scriptedChat(t, assistantMessage("first"), assistantMessage("second"))
	svc := f.newService(chat, Config{})

	first, err := svc.StartSession(ctx, f.finding.ID)
	require.NoError(t, err)
	f.waitForSession(t, first.ID)

	second, err := svc.StartSession(ctx, f.finding.ID)
	require.NoError(t, err)
	f.waitForSession(t, second.ID)

	sessions, err := svc.ListSessions(ctx, f.finding.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)
}
