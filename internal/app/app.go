// Package app builds the notes pipeline and its collaborators from config.
// Both binaries share it so the server and the CLI see the same data.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/bull/notes-rag/internal/chunking"
	"github.com/bull/notes-rag/internal/config"
	"github.com/bull/notes-rag/internal/embedding"
	"github.com/bull/notes-rag/internal/fetch"
	"github.com/bull/notes-rag/internal/generation"
	"github.com/bull/notes-rag/internal/github"
	"github.com/bull/notes-rag/internal/rag"
	"github.com/bull/notes-rag/internal/storage"
	"github.com/bull/notes-rag/internal/vectorindex"
)

// ErrPrivateIndex is returned by Reindex when the process does not own the
// index and the index lives only in its own memory.
var ErrPrivateIndex = errors.New("reindex needs the owning process or a shared vector backend")

// Options controls how an App shares state with other processes using the
// same store.
type Options struct {
	// OwnIndex marks the long-running process that owns the vector index.
	// Only the owner clears embedding refs and resets the Qdrant collection
	// on open; everyone else attaches without disturbing it.
	OwnIndex bool
}

// App holds the wired components. Close releases them.
type App struct {
	Config    *config.Config
	Store     storage.Store
	Embedder  embedding.Embedder
	Generator generation.Generator
	Fetcher   *fetch.Fetcher
	Pipeline  *rag.Pipeline

	logger *slog.Logger
	opts   Options
	index  vectorindex.Index
	gemini *genai.Client
}

// New opens the store and vector index and wires the pipeline. The owner's
// index starts empty, so it clears embedding references left by a previous
// run and chunks are re-embedded by backfill or eager ingest. Other processes
// attach to a shared index, or keep a private in-memory one without ever
// writing refs to the store.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger, opts: opts}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Store, err = openStore(cfg)
	if err != nil {
		return nil, err
	}

	a.Embedder, err = a.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	a.Generator, err = a.newGenerator(ctx)
	if err != nil {
		return nil, err
	}

	if embedding.Enabled(a.Embedder) {
		a.index, err = a.newIndex(ctx, opts.OwnIndex)
		if err != nil {
			return nil, err
		}
	}
	if opts.OwnIndex {
		if err := a.Store.ClearEmbeddingRefs(ctx); err != nil {
			return nil, fmt.Errorf("clearing embedding refs: %w", err)
		}
	}

	ghClient, err := github.NewClient(cfg.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("creating github client: %w", err)
	}
	a.Fetcher = fetch.New(fetch.Config{
		Timeout:  cfg.FetchTimeout,
		MaxBytes: cfg.MaxFetchBytes,
		GitHub:   github.NewFetcher(ghClient),
		Logger:   logger,
	})

	chunker := chunking.NewChunker(chunking.Config{
		Mode:         cfg.ChunkMode,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})

	a.Pipeline, err = rag.NewPipeline(a.Store, a.index, chunker, a.Embedder, a.Generator, a.Fetcher, rag.Config{
		EmbeddingMode:    cfg.EmbeddingMode,
		MaxContentChars:  cfg.MaxContentChars,
		MaxChunksPerItem: cfg.MaxChunksPerItem,
		DefaultTopK:      cfg.DefaultTopK,
		// A private in-memory index is invisible to the owner, so refs
		// into it would only mislead.
		SkipEmbeddingRefs: a.privateIndex(),
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Pipeline ready",
		"store", cfg.StoreBackend,
		"vector_backend", cfg.VectorBackend,
		"search_mode", a.Pipeline.SearchMode(),
		"embedding", a.Embedder.Name(),
		"embedding_mode", cfg.EmbeddingMode,
		"generation", a.Generator.Name(),
		"chunk_mode", cfg.ChunkMode,
		"own_index", opts.OwnIndex)

	return a, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case storage.BackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		store, err := storage.NewSQLiteStore(cfg.SQLiteDir)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, nil
	}
}

// privateIndex reports whether this process's index is invisible to the owner.
func (a *App) privateIndex() bool {
	return !a.opts.OwnIndex && a.Config.VectorBackend != vectorindex.BackendQdrant
}

// newIndex opens a vector index sized for the configured embedder. A Qdrant
// collection is reset only when reset is true; otherwise it is attached to.
func (a *App) newIndex(ctx context.Context, reset bool) (vectorindex.Index, error) {
	dims := a.Embedder.Dimensions()
	switch a.Config.VectorBackend {
	case vectorindex.BackendQdrant:
		return vectorindex.NewQdrant(ctx, vectorindex.QdrantConfig{
			Host:       a.Config.QdrantHost,
			Port:       a.Config.QdrantPort,
			Collection: a.Config.QdrantCollection,
			Dimensions: dims,
			Reset:      reset,
		})
	default:
		return vectorindex.NewMemory(dims)
	}
}

// Reindex rebuilds the vector index from every stored chunk. It takes over
// the index: the Qdrant collection is reset and embedding refs are rewritten.
// A non-owner with an in-memory index gets ErrPrivateIndex, since a rebuild
// there would be thrown away on exit while clobbering the owner's refs.
func (a *App) Reindex(ctx context.Context) (int, error) {
	if !embedding.Enabled(a.Embedder) {
		return 0, fmt.Errorf("reindex: no embedding provider configured")
	}
	if a.privateIndex() {
		return 0, ErrPrivateIndex
	}
	fresh, err := a.newIndex(ctx, true)
	if err != nil {
		return 0, err
	}
	n, err := a.Pipeline.Rebuild(ctx, fresh)
	if a.Pipeline.Index() != fresh {
		fresh.Close()
		return n, err
	}
	// The pipeline closed the previous index on swap.
	a.index = fresh
	return n, err
}

func (a *App) geminiClient(ctx context.Context) (*genai.Client, error) {
	if a.gemini != nil {
		return a.gemini, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(a.Config.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	a.gemini = client
	return client, nil
}

func (a *App) newEmbedder(ctx context.Context) (embedding.Embedder, error) {
	cfg := a.Config
	switch cfg.EmbeddingProvider {
	case embedding.ProviderOpenAI:
		client, err := embedding.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		return embedding.NewOpenAI(client, embedding.OpenAIConfig{
			Model:      cfg.OpenAIEmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
		}), nil
	case embedding.ProviderGemini:
		client, err := a.geminiClient(ctx)
		if err != nil {
			return nil, err
		}
		return embedding.NewGemini(client, cfg.GeminiEmbeddingModel, cfg.EmbeddingDimensions), nil
	default:
		return embedding.None(), nil
	}
}

func (a *App) newGenerator(ctx context.Context) (generation.Generator, error) {
	cfg := a.Config
	switch cfg.GenerationProvider {
	case generation.ProviderOpenAI:
		client, err := embedding.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		return generation.NewOpenAI(client, cfg.OpenAIChatModel, a.logger), nil
	case generation.ProviderGemini:
		client, err := a.geminiClient(ctx)
		if err != nil {
			return nil, err
		}
		return generation.NewGemini(client, cfg.GeminiChatModel, a.logger), nil
	default:
		return &generation.Extractive{}, nil
	}
}

// Close releases the index, the store and provider clients.
func (a *App) Close() error {
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.gemini != nil {
		errs = append(errs, a.gemini.Close())
	}
	return errors.Join(errs...)
}
