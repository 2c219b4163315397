package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/notes-rag/internal/chunking"
	"github.com/bull/notes-rag/internal/config"
	"github.com/bull/notes-rag/internal/embedding"
	"github.com/bull/notes-rag/internal/generation"
	"github.com/bull/notes-rag/internal/rag"
	"github.com/bull/notes-rag/internal/storage"
	"github.com/bull/notes-rag/internal/vectorindex"
)

func testConfig() *config.Config {
	return &config.Config{
		StoreBackend:       storage.BackendMemory,
		VectorBackend:      vectorindex.BackendMemory,
		EmbeddingProvider:  embedding.ProviderNone,
		EmbeddingMode:      embedding.ModeLazy,
		GenerationProvider: generation.ProviderExtractive,
		ChunkMode:          chunking.ModeMulti,
		ChunkSize:          chunking.DefaultChunkSize,
		ChunkOverlap:       chunking.DefaultChunkOverlap,
		MaxFetchBytes:      1 << 20,
		FetchTimeout:       time.Second,
		DefaultTopK:        rag.DefaultTopK,
	}
}

func TestNew_KeywordMode(t *testing.T) {
	a, err := New(context.Background(), testConfig(), nil, Options{OwnIndex: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, rag.SearchKeyword, a.Pipeline.SearchMode())
	assert.Nil(t, a.Pipeline.Index())
	assert.Equal(t, generation.ProviderExtractive, a.Generator.Name())

	_, err = a.Reindex(context.Background())
	assert.Error(t, err)
}

func TestNew_OpenAIVectorMode(t *testing.T) {
	cfg := testConfig()
	cfg.EmbeddingProvider = embedding.ProviderOpenAI
	cfg.GenerationProvider = generation.ProviderOpenAI
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIEmbeddingModel = "text-embedding-3-small"
	cfg.EmbeddingDimensions = 256

	a, err := New(context.Background(), cfg, nil, Options{OwnIndex: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, rag.SearchVector, a.Pipeline.SearchMode())
	require.NotNil(t, a.Pipeline.Index())
	assert.Equal(t, 256, a.Pipeline.Index().Dimensions())
	assert.Equal(t, generation.ProviderOpenAI, a.Generator.Name())

	before := a.Pipeline.Index()
	n, err := a.Reindex(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotSame(t, before, a.Pipeline.Index())
}

func TestNew_SQLiteStore(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = storage.BackendSQLite
	cfg.SQLiteDir = t.TempDir()

	a, err := New(context.Background(), cfg, nil, Options{OwnIndex: true})
	require.NoError(t, err)

	item, err := a.Pipeline.Ingest(context.Background(), rag.IngestRequest{Content: "persisted note"})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = New(context.Background(), cfg, nil, Options{OwnIndex: true})
	require.NoError(t, err)
	defer a.Close()

	got, err := a.Store.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted note", got.Content)
}

// fakeEmbeddings serves the OpenAI embeddings endpoint with 3-dim vectors.
func fakeEmbeddings(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, 0, len(req.Input))
		for i, text := range req.Input {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(text)), 1, 0},
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
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_SecondProcessLeavesOwnerRefsAlone(t *testing.T) {
	ctx := context.Background()
	srv := fakeEmbeddings(t)

	cfg := testConfig()
	cfg.StoreBackend = storage.BackendSQLite
	cfg.SQLiteDir = t.TempDir()
	cfg.EmbeddingProvider = embedding.ProviderOpenAI
	cfg.EmbeddingMode = embedding.ModeEager
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = srv.URL
	cfg.OpenAIEmbeddingModel = "text-embedding-3-small"
	cfg.EmbeddingDimensions = 3

	server, err := New(ctx, cfg, nil, Options{OwnIndex: true})
	require.NoError(t, err)
	defer server.Close()

	_, err = server.Pipeline.Ingest(ctx, rag.IngestRequest{Content: "the lighthouse keeper logs every ship"})
	require.NoError(t, err)
	counts, err := server.Store.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts.EmbeddedChunks)

	cli, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)

	counts, err = server.Store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.EmbeddedChunks, "opening a second app must not clear refs")

	// The query backfills the CLI's private index without touching refs.
	answer, err := cli.Pipeline.Query(ctx, "who logs the ships?", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Sources)

	_, err = cli.Reindex(ctx)
	assert.ErrorIs(t, err, ErrPrivateIndex)
	require.NoError(t, cli.Close())

	counts, err = server.Store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.EmbeddedChunks)

	size, err := server.Pipeline.Index().Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}
