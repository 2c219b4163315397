package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"github.com/bull/notes-rag/internal/provider"
)

const (
	DefaultGeminiModel      = "text-embedding-004"
	DefaultGeminiDimensions = 768

	// geminiMaxBatch is the BatchEmbedContents request limit.
	geminiMaxBatch = 100
)

// Gemini generates embeddings with the Google Generative AI API.
type Gemini struct {
	model      *genai.EmbeddingModel
	dimensions int
}

var _ Embedder = (*Gemini)(nil)

// NewGemini creates a Gemini embedder on an existing client. dimensions of 0
// uses DefaultGeminiDimensions.
func NewGemini(client *genai.Client, model string, dimensions int) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	if dimensions <= 0 {
		dimensions = DefaultGeminiDimensions
	}
	return &Gemini{
		model:      client.EmbeddingModel(model),
		dimensions: dimensions,
	}
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Dimensions() int { return g.dimensions }

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, provider.Wrap(ProviderGemini, "embed", err)
	}
	if resp.Embedding == nil {
		return nil, provider.Wrap(ProviderGemini, "embed", fmt.Errorf("no embedding returned"))
	}
	return resp.Embedding.Values, nil
}

func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += geminiMaxBatch {
		end := min(i+geminiMaxBatch, len(texts))

		batch := g.model.NewBatch()
		for _, text := range texts[i:end] {
			batch.AddContent(genai.Text(text))
		}

		resp, err := g.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, provider.Wrap(ProviderGemini, "embed", fmt.Errorf("batch %d-%d: %w", i, end, err))
		}
		if len(resp.Embeddings) != end-i {
			return nil, provider.Wrap(ProviderGemini, "embed",
				fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), end-i))
		}
		for _, emb := range resp.Embeddings {
			vectors = append(vectors, emb.Values)
		}
	}

	return vectors, nil
}
