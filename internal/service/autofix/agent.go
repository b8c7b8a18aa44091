package autofix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"modelsentry/internal/domain"
	"modelsentry/internal/rules"
)

const systemPrompt = `You are a tabular model engineer. You are given one
best-practice finding against a semantic model. Inspect the affected
object, apply the smallest metadata change that resolves the finding,
verify it when useful, and finish with a short summary of what you
changed. If the finding cannot be fixed safely, say so in your final
message instead of guessing.`

// toolCallPayload is the persisted content of a tool_call step; the
// matching tool_result step carries the same call id.
type toolCallPayload struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolResultPayload struct {
	ID     string `json:"id"`
	Result string `json:"result"`
}

// runAgent is the session's work function: a tool-calling loop where
// every appended step is immediately readable and cancellation is
// observed only at step boundaries.
func (s *Service) runAgent(ctx context.Context, sessionID string, finding *domain.Finding, model *domain.SemanticModel) (string, error) {
	logger := s.logger.With("session_id", sessionID, "finding_id", finding.ID)

	appended := 0
	// Trail writes run on a fresh context. Cancellation belongs to the
	// work and takes effect at the next checkpoint; a step earned by work
	// that already completed is always recorded.
	appendStep := func(eventType, content string) error {
		if appended >= s.cfg.MaxSteps {
			return errors.New(domain.CancelReasonStepLimit)
		}
		if _, err := s.sessions.AppendStep(context.Background(), sessionID, eventType, content); err != nil {
			return fmt.Errorf("append %s step: %w", eventType, err)
		}
		appended++
		return nil
	}

	// checkpoint finalizes the trail with exactly one terminating record
	// when cancellation (or the soft timeout) is observed.
	checkpoint := func() error {
		if ctx.Err() == nil {
			return nil
		}
		_, _ = s.sessions.AppendStep(context.Background(), sessionID, domain.StepEventError, domain.CancelReasonCancelled)
		return ctx.Err()
	}

	snap, err := s.introspector.Snapshot(ctx, model.ServerAddress, model.DatabaseName)
	if err != nil {
		if cerr := checkpoint(); cerr != nil {
			return "", cerr
		}
		_ = appendStep(domain.StepEventError, err.Error())
		return "", err
	}
	objects := rules.FlattenSnapshot(snap)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(
			"Finding: rule %q (%s, severity %d) flagged %s %q in database %q.\nRule: %s",
			finding.RuleID, finding.Category, finding.Severity,
			finding.ObjectType, finding.AffectedObject, model.DatabaseName, finding.RuleName,
		)},
	}

	for {
		if err := checkpoint(); err != nil {
			return "", err
		}

		resp, err := s.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    s.cfg.ChatModel,
			Messages: messages,
			Tools:    agentTools(),
		})
		if err != nil {
			if cerr := checkpoint(); cerr != nil {
				return "", cerr
			}
			_ = appendStep(domain.StepEventError, err.Error())
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			_ = appendStep(domain.StepEventError, "model returned no choices")
			return "", errors.New("model returned no choices")
		}
		msg := resp.Choices[0].Message

		// Agent signals completion with a plain message.
		if len(msg.ToolCalls) == 0 {
			if err := appendStep(domain.StepEventMessage, msg.Content); err != nil {
				return "", err
			}
			logger.Info("fix session finished", "steps", appended)
			return msg.Content, nil
		}

		if msg.Content != "" {
			if err := appendStep(domain.StepEventReasoning, msg.Content); err != nil {
				return "", err
			}
		}
		messages = append(messages, msg)

		for _, tc := range msg.ToolCalls {
			callJSON, _ := json.Marshal(toolCallPayload{
				ID:        tc.ID,
				Tool:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
			if err := appendStep(domain.StepEventToolCall, string(callJSON)); err != nil {
				return "", err
			}

			result, fatal := s.invokeTool(ctx, &tc, objects, model)
			if fatal != nil {
				if cerr := checkpoint(); cerr != nil {
					return "", cerr
				}
				_ = appendStep(domain.StepEventError, fatal.Error())
				return "", fatal
			}

			resultJSON, _ := json.Marshal(toolResultPayload{ID: tc.ID, Result: result})
			if err := appendStep(domain.StepEventToolResult, string(resultJSON)); err != nil {
				return "", err
			}

			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}
}

// invokeTool executes one tool call. Malformed arguments are returned
// to the model as the tool result so it can correct itself; collaborator
// failures and unknown tools are fatal to the session.
func (s *Service) invokeTool(ctx context.Context, tc *openai.ToolCall, objects []rules.Object, model *domain.SemanticModel) (string, error) {
	var args map[string]string
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		return fmt.Sprintf("error: invalid arguments: %v", err), nil
	}

	switch tc.Function.Name {
	case "get_object_definition":
		path := args["object"]
		for i := range objects {
			if objects[i].Path == path {
				def, err := json.Marshal(objects[i].Attrs)
				if err != nil {
					return "", fmt.Errorf("marshal object definition: %w", err)
				}
				return string(def), nil
			}
		}
		return fmt.Sprintf("error: object %q not found in model", path), nil

	case "update_object":
		object, property, value := args["object"], args["property"], args["value"]
		if object == "" || property == "" {
			return "error: object and property are required", nil
		}
		if err := s.editor.UpdateObject(ctx, model.ServerAddress, model.DatabaseName, object, property, value); err != nil {
			return "", fmt.Errorf("update %s of %s: %w", property, object, err)
		}
		return fmt.Sprintf("updated %s of %s", property, object), nil

	case "run_verification_query":
		query := args["query"]
		if query == "" {
			return "error: query is required", nil
		}
		result, err := s.queryEngine.Run(ctx, query)
		if err != nil {
			return "", fmt.Errorf("verification query: %w", err)
		}
		summary, merr := json.Marshal(map[string]interface{}{
			"rowCount": len(result.Rows),
			"columns":  result.Columns,
		})
		if merr != nil {
			return "", fmt.Errorf("marshal query summary: %w", merr)
		}
		return string(summary), nil

	default:
		return "", fmt.Errorf("unknown tool %q", tc.Function.Name)
	}
}

func agentTools() []openai.Tool {
	objectParam := map[string]interface{}{
		"type":        "string",
		"description": "object path, e.g. Sales[Amount]",
	}
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "get_object_definition",
				Description: "Read the metadata of one model object.",
				Parameters: map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{"object": objectParam},
					"required":   []string{"object"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "update_object",
				Description: "Set one metadata property of a model object.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"object":   objectParam,
						"property": map[string]interface{}{"type": "string"},
						"value":    map[string]interface{}{"type": "string"},
					},
					"required": []string{"object", "property", "value"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "run_verification_query",
				Description: "Run a DAX query against the model to verify a change.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"query": map[string]interface{}{"type": "string"},
					},
					"required": []string{"query"},
				},
			},
		},
	}
}
