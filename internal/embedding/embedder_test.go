package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/notes-rag/internal/provider"
)

func TestNone(t *testing.T) {
	e := None()
	assert.False(t, Enabled(e))
	assert.False(t, Enabled(nil))
	assert.Equal(t, ProviderNone, e.Name())
	assert.Zero(t, e.Dimensions())

	_, err := e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoProvider)
	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestParseProvider(t *testing.T) {
	for in, want := range map[string]string{
		"":        ProviderAuto,
		"auto":    ProviderAuto,
		"OpenAI":  ProviderOpenAI,
		" gemini": ProviderGemini,
		"none":    ProviderNone,
	} {
		got, err := ParseProvider(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseProvider("ollama")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeLazy, m)

	m, err = ParseMode("EAGER")
	require.NoError(t, err)
	assert.Equal(t, ModeEager, m)

	_, err = ParseMode("sometimes")
	assert.Error(t, err)
}

func TestNewOpenAI_Defaults(t *testing.T) {
	e := NewOpenAI(nil, OpenAIConfig{})
	assert.Equal(t, DefaultOpenAIModel, e.model)
	assert.Equal(t, 1536, e.Dimensions())
	assert.Equal(t, DefaultBatchSize, e.batchSize)
	assert.True(t, Enabled(e))

	e = NewOpenAI(nil, OpenAIConfig{Model: "text-embedding-3-large"})
	assert.Equal(t, 3072, e.Dimensions())

	e = NewOpenAI(nil, OpenAIConfig{Dimensions: 256})
	assert.Equal(t, 256, e.Dimensions())
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "")
	assert.Error(t, err)
}

func TestNewOpenAIClient_BaseURL(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddings(t, &calls)
	defer srv.Close()

	client, err := NewOpenAIClient("test", srv.URL)
	require.NoError(t, err)

	v, err := NewOpenAI(client, OpenAIConfig{Dimensions: 3}).Embed(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1, 0}, v)
	assert.Equal(t, int32(1), calls.Load())
}

// fakeEmbeddings serves the embeddings endpoint. Vectors are returned in
// reverse order so callers must reorder by index.
func fakeEmbeddings(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(req.Input[i])), 1, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-3-small",
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func newTestClient(url string) *openai.Client {
	client := openai.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(url+"/"),
		option.WithMaxRetries(0),
	)
	return &client
}

func TestOpenAI_EmbedBatchOrderAndBatching(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddings(t, &calls)
	defer srv.Close()

	e := NewOpenAI(newTestClient(srv.URL), OpenAIConfig{Dimensions: 3, BatchSize: 2})
	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1, 1, 0}, vectors[0])
	assert.Equal(t, []float32{2, 1, 0}, vectors[1])
	assert.Equal(t, []float32{3, 1, 0}, vectors[2])
	assert.Equal(t, int32(2), calls.Load())

	v, err := e.Embed(context.Background(), "dddd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1, 0}, v)
}

func TestOpenAI_ErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e := NewOpenAI(newTestClient(srv.URL), OpenAIConfig{})
	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)

	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ProviderOpenAI, perr.Provider)
	assert.False(t, isRateLimitError(errors.New("plain")))
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1}, toFloat32([]float64{0.5, -1}))
	assert.Empty(t, toFloat32(nil))
}
