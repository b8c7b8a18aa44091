package queryexec

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"modelsentry/internal/domain"
)

var _ domain.QueryTranslator = (*OpenAITranslator)(nil)

const translatorSystemPrompt = `You translate analyst questions into DAX
queries for a tabular model. Respond with the DAX query only, no
markdown fences, no commentary. The query must start with EVALUATE or
DEFINE.`

// ChatCompleter is the slice of the OpenAI-compatible client the
// translator needs. *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAITranslator turns natural-language prompts into DAX via an
// OpenAI-compatible chat endpoint. The executor treats it as a
// black-box text-to-text function.
type OpenAITranslator struct {
	chat  ChatCompleter
	model string
}

// NewOpenAITranslator creates a translator using the given completion
// model.
func NewOpenAITranslator(chat ChatCompleter, model string) *OpenAITranslator {
	return &OpenAITranslator{chat: chat, model: model}
}

// Translate converts prompt into query text.
func (t *OpenAITranslator) Translate(ctx context.Context, prompt string) (string, error) {
	resp, err := t.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: translatorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", domain.ErrUnavailable("translate query: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ErrUnavailable("translate query: model returned no choices")
	}

	queryText := strings.TrimSpace(resp.Choices[0].Message.Content)
	queryText = strings.TrimPrefix(queryText, "```dax")
	queryText = strings.TrimPrefix(queryText, "```")
	queryText = strings.TrimSuffix(queryText, "```")
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return "", fmt.Errorf("translate query: empty translation")
	}
	return queryText, nil
}
