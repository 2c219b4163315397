package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/notes-rag/internal/chunking"
	"github.com/bull/notes-rag/internal/embedding"
	"github.com/bull/notes-rag/internal/generation"
	"github.com/bull/notes-rag/internal/storage"
	"github.com/bull/notes-rag/internal/vectorindex"
)

// clearEnv blanks every key FromEnv reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "SERVER_MODE", "STORE_BACKEND", "SQLITE_DIR", "VECTOR_BACKEND",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION", "EMBEDDING_PROVIDER",
		"EMBEDDING_MODE", "EMBEDDING_DIMENSIONS", "GENERATION_PROVIDER",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_EMBEDDING_MODEL", "OPENAI_CHAT_MODEL",
		"GEMINI_API_KEY", "GEMINI_EMBEDDING_MODEL", "GEMINI_CHAT_MODEL",
		"CHUNK_MODE", "CHUNK_SIZE", "CHUNK_OVERLAP", "MAX_CONTENT_CHARS",
		"MAX_CHUNKS_PER_ITEM", "MAX_REQUEST_BYTES", "MAX_FETCH_BYTES",
		"FETCH_TIMEOUT", "DEFAULT_TOP_K", "CORS_ORIGINS", "GITHUB_TOKEN",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ModeHTTP, cfg.ServerMode)
	assert.Equal(t, storage.BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, vectorindex.BackendMemory, cfg.VectorBackend)
	assert.Equal(t, 6334, cfg.QdrantPort)
	assert.Equal(t, embedding.ProviderNone, cfg.EmbeddingProvider)
	assert.Equal(t, generation.ProviderExtractive, cfg.GenerationProvider)
	assert.Equal(t, embedding.ModeLazy, cfg.EmbeddingMode)
	assert.Equal(t, chunking.ModeMulti, cfg.ChunkMode)
	assert.Equal(t, chunking.DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 5, cfg.DefaultTopK)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestFromEnv_AutoProviderSelection(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, embedding.ProviderGemini, cfg.EmbeddingProvider)
	assert.Equal(t, generation.ProviderGemini, cfg.GenerationProvider)

	t.Setenv("OPENAI_API_KEY", "o")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, embedding.ProviderOpenAI, cfg.EmbeddingProvider)
	assert.Equal(t, generation.ProviderOpenAI, cfg.GenerationProvider)

	t.Setenv("EMBEDDING_PROVIDER", "none")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, embedding.ProviderNone, cfg.EmbeddingProvider)
}

func TestFromEnv_ExplicitProviderNeedsKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "openai")

	_, err := FromEnv()
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_MODE", "stdio")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("VECTOR_BACKEND", "qdrant")
	t.Setenv("EMBEDDING_MODE", "eager")
	t.Setenv("CHUNK_MODE", "single")
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "10")
	t.Setenv("FETCH_TIMEOUT", "3")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeStdio, cfg.ServerMode)
	assert.Equal(t, storage.BackendMemory, cfg.StoreBackend)
	assert.Equal(t, vectorindex.BackendQdrant, cfg.VectorBackend)
	assert.Equal(t, embedding.ModeEager, cfg.EmbeddingMode)
	assert.Equal(t, chunking.ModeSingle, cfg.ChunkMode)
	assert.Equal(t, 100, cfg.ChunkSize)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		"SERVER_MODE":    "grpc",
		"STORE_BACKEND":  "postgres",
		"VECTOR_BACKEND": "faiss",
		"EMBEDDING_MODE": "sometimes",
		"CHUNK_MODE":     "paragraph",
		"DEFAULT_TOP_K":  "50",
		"CHUNK_OVERLAP":  "9999",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_GeminiDimensions(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g")
	t.Setenv("EMBEDDING_DIMENSIONS", "256")

	_, err := FromEnv()
	assert.ErrorContains(t, err, "EMBEDDING_DIMENSIONS must be 768")

	t.Setenv("EMBEDDING_DIMENSIONS", "768")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, embedding.ProviderGemini, cfg.EmbeddingProvider)

	// OpenAI models accept a reduced size.
	t.Setenv("OPENAI_API_KEY", "sk")
	t.Setenv("EMBEDDING_DIMENSIONS", "256")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, embedding.ProviderOpenAI, cfg.EmbeddingProvider)
}

func TestParseServerMode_LegacyBoolean(t *testing.T) {
	mode, err := parseServerMode("true")
	require.NoError(t, err)
	assert.Equal(t, ModeHTTP, mode)

	mode, err = parseServerMode("false")
	require.NoError(t, err)
	assert.Equal(t, ModeStdio, mode)
}
