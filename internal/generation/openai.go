package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/bull/notes-rag/internal/provider"
)

// DefaultOpenAIModel is the chat model used when none is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI answers with the chat completions API.
type OpenAI struct {
	client    *openai.Client
	model     string
	truncator truncator
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI creates a chat generator with the given OpenAI client.
// Optional maxTokens parameter sets truncation limit (defaults to DefaultMaxTokens).
func NewOpenAI(client *openai.Client, model string, logger *slog.Logger, maxTokens ...int) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	max := DefaultMaxTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		max = maxTokens[0]
	}
	return &OpenAI{
		client:    client,
		model:     model,
		truncator: newTruncator(max, logger),
	}
}

func (g *OpenAI) Name() string { return ProviderOpenAI }

func (g *OpenAI) Generate(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(g.truncator.truncate(user)),
		},
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(0.2),
	}

	var answer string
	operation := func() error {
		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("chat completion returned no choices"))
		}
		answer = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", provider.Wrap(ProviderOpenAI, "generate", err)
	}
	return answer, nil
}
