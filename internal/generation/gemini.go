package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/bull/notes-rag/internal/provider"
)

// DefaultGeminiModel is the Gemini model used when none is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini answers with the Google Generative AI API.
type Gemini struct {
	client    *genai.Client
	model     string
	truncator truncator
}

var _ Generator = (*Gemini)(nil)

// NewGemini creates a Gemini generator on an existing client.
func NewGemini(client *genai.Client, model string, logger *slog.Logger) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{
		client:    client,
		model:     model,
		truncator: newTruncator(DefaultMaxTokens, logger),
	}
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Generate(ctx context.Context, system, user string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.2)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(g.truncator.truncate(user)))
	if err != nil {
		return "", provider.Wrap(ProviderGemini, "generate", err)
	}

	answer := responseText(resp)
	if answer == "" {
		return "", provider.Wrap(ProviderGemini, "generate", fmt.Errorf("empty response"))
	}
	return answer, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
