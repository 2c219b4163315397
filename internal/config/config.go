// Package config loads settings from the environment, with an optional .env
// file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/notes-rag/internal/chunking"
	"github.com/bull/notes-rag/internal/embedding"
	"github.com/bull/notes-rag/internal/generation"
	"github.com/bull/notes-rag/internal/rag"
	"github.com/bull/notes-rag/internal/storage"
	"github.com/bull/notes-rag/internal/vectorindex"
)

// Server modes.
const (
	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

type Config struct {
	Port       string
	ServerMode string

	StoreBackend string
	SQLiteDir    string

	VectorBackend    string
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	// Resolved provider names; "auto" never survives Load.
	EmbeddingProvider   string
	EmbeddingMode       embedding.Mode
	EmbeddingDimensions int
	GenerationProvider  string

	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIEmbeddingModel string
	OpenAIChatModel      string
	GeminiAPIKey         string
	GeminiEmbeddingModel string
	GeminiChatModel      string

	ChunkMode        chunking.Mode
	ChunkSize        int
	ChunkOverlap     int
	MaxContentChars  int
	MaxChunksPerItem int

	MaxRequestBytes int
	MaxFetchBytes   int64
	FetchTimeout    time.Duration
	DefaultTopK     int

	CORSOrigins []string
	GitHubToken string

	LogLevel  string
	LogFormat string
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		SQLiteDir:  getEnv("SQLITE_DIR", ""),
		QdrantHost: getEnv("QDRANT_HOST", "localhost"),
		QdrantPort: getEnvInt("QDRANT_PORT", 6334),

		QdrantCollection:    getEnv("QDRANT_COLLECTION", vectorindex.DefaultCollection),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),

		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", embedding.DefaultOpenAIModel),
		OpenAIChatModel:      getEnv("OPENAI_CHAT_MODEL", generation.DefaultOpenAIModel),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiEmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", embedding.DefaultGeminiModel),
		GeminiChatModel:      getEnv("GEMINI_CHAT_MODEL", generation.DefaultGeminiModel),

		ChunkSize:        getEnvInt("CHUNK_SIZE", chunking.DefaultChunkSize),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", chunking.DefaultChunkOverlap),
		MaxContentChars:  getEnvInt("MAX_CONTENT_CHARS", 100000),
		MaxChunksPerItem: getEnvInt("MAX_CHUNKS_PER_ITEM", 0),

		MaxRequestBytes: getEnvInt("MAX_REQUEST_BYTES", 1<<20),
		MaxFetchBytes:   getEnvInt64("MAX_FETCH_BYTES", 2<<20),
		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 15*time.Second),
		DefaultTopK:     getEnvInt("DEFAULT_TOP_K", rag.DefaultTopK),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		GitHubToken: getEnv("GITHUB_TOKEN", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	var err error
	cfg.ServerMode, err = parseServerMode(getEnv("SERVER_MODE", ModeHTTP))
	collect(err)
	cfg.StoreBackend, err = storage.ParseBackend(getEnv("STORE_BACKEND", storage.BackendSQLite))
	collect(err)
	cfg.VectorBackend, err = vectorindex.ParseBackend(getEnv("VECTOR_BACKEND", vectorindex.BackendMemory))
	collect(err)
	cfg.EmbeddingMode, err = embedding.ParseMode(getEnv("EMBEDDING_MODE", string(embedding.ModeLazy)))
	collect(err)
	cfg.ChunkMode, err = chunking.ParseMode(getEnv("CHUNK_MODE", string(chunking.ModeMulti)))
	collect(err)

	embProvider, err := embedding.ParseProvider(getEnv("EMBEDDING_PROVIDER", embedding.ProviderAuto))
	collect(err)
	genProvider, err := generation.ParseProvider(getEnv("GENERATION_PROVIDER", "auto"))
	collect(err)

	if len(errs) == 0 {
		cfg.EmbeddingProvider, err = cfg.resolveEmbedding(embProvider)
		collect(err)
		cfg.GenerationProvider, err = cfg.resolveGeneration(genProvider)
		collect(err)
		collect(cfg.Validate())
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveEmbedding picks OpenAI, then Gemini, then none for auto, and checks
// that an explicit choice has its key.
func (c *Config) resolveEmbedding(name string) (string, error) {
	switch name {
	case embedding.ProviderAuto:
		switch {
		case c.OpenAIAPIKey != "":
			return embedding.ProviderOpenAI, nil
		case c.GeminiAPIKey != "":
			return embedding.ProviderGemini, nil
		default:
			return embedding.ProviderNone, nil
		}
	case embedding.ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return "", fmt.Errorf("EMBEDDING_PROVIDER=openai requires OPENAI_API_KEY")
		}
	case embedding.ProviderGemini:
		if c.GeminiAPIKey == "" {
			return "", fmt.Errorf("EMBEDDING_PROVIDER=gemini requires GEMINI_API_KEY")
		}
	}
	return name, nil
}

func (c *Config) resolveGeneration(name string) (string, error) {
	switch name {
	case "auto":
		switch {
		case c.OpenAIAPIKey != "":
			return generation.ProviderOpenAI, nil
		case c.GeminiAPIKey != "":
			return generation.ProviderGemini, nil
		default:
			return generation.ProviderExtractive, nil
		}
	case generation.ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return "", fmt.Errorf("GENERATION_PROVIDER=openai requires OPENAI_API_KEY")
		}
	case generation.ProviderGemini:
		if c.GeminiAPIKey == "" {
			return "", fmt.Errorf("GENERATION_PROVIDER=gemini requires GEMINI_API_KEY")
		}
	}
	return name, nil
}

// Validate checks numeric ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.MaxContentChars < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONTENT_CHARS must not be negative"))
	}
	if c.MaxChunksPerItem < 0 {
		errs = append(errs, fmt.Errorf("MAX_CHUNKS_PER_ITEM must not be negative"))
	}
	if c.MaxRequestBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_REQUEST_BYTES must be positive"))
	}
	if c.MaxFetchBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FETCH_BYTES must be positive"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive"))
	}
	if c.DefaultTopK < 1 || c.DefaultTopK > rag.MaxTopK {
		errs = append(errs, fmt.Errorf("DEFAULT_TOP_K must be between 1 and %d, got %d", rag.MaxTopK, c.DefaultTopK))
	}
	if c.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must not be negative"))
	}
	// Gemini's embedding model has a fixed output size.
	if c.EmbeddingProvider == embedding.ProviderGemini && c.EmbeddingDimensions != 0 &&
		c.EmbeddingDimensions != embedding.DefaultGeminiDimensions {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must be %d or unset for gemini, got %d",
			embedding.DefaultGeminiDimensions, c.EmbeddingDimensions))
	}
	if c.QdrantPort <= 0 || c.QdrantPort > 65535 {
		errs = append(errs, fmt.Errorf("QDRANT_PORT out of range: %d", c.QdrantPort))
	}
	return errors.Join(errs...)
}

// parseServerMode accepts http or stdio. "true" and "false" are kept from
// the older boolean SERVER_MODE, where true meant HTTP.
func parseServerMode(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ModeHTTP, "true", "":
		return ModeHTTP, nil
	case ModeStdio, "false":
		return ModeStdio, nil
	default:
		return "", fmt.Errorf("unknown SERVER_MODE %q (want http or stdio)", s)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("10s") or whole seconds ("10").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
