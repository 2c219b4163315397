// Package rag is the retrieval pipeline: it ingests items into the content
// store and vector index, and answers questions from retrieved chunks.
//
// With an embedding provider the pipeline searches by cosine similarity,
// embedding chunks either at ingest (eager) or on the first query that needs
// them (lazy). Without one it scores chunks by keyword occurrence. The choice
// is made once, when the pipeline is built.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bull/notes-rag/internal/chunking"
	"github.com/bull/notes-rag/internal/embedding"
	"github.com/bull/notes-rag/internal/fetch"
	"github.com/bull/notes-rag/internal/generation"
	"github.com/bull/notes-rag/internal/storage"
	"github.com/bull/notes-rag/internal/vectorindex"
)

// DefaultBackfillBatchSize is the number of chunks embedded per provider call
// during lazy backfill.
const DefaultBackfillBatchSize = 32

// Search modes reported by Stats and Answer.
const (
	SearchVector  = "vector"
	SearchKeyword = "keyword"
)

// Fetcher retrieves readable text for URL items. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Document, error)
}

// Config holds pipeline budgets and policies.
type Config struct {
	EmbeddingMode embedding.Mode
	// MaxContentChars caps item content; longer content is truncated. 0 = unlimited.
	MaxContentChars int
	// MaxChunksPerItem drops trailing chunks beyond the cap. 0 = unlimited.
	MaxChunksPerItem  int
	BackfillBatchSize int
	DefaultTopK       int
	// SkipEmbeddingRefs leaves embedding refs in the store untouched. Set it
	// when the index is private to this process while another process owns
	// the refs, so they never point into an index nobody else can see.
	SkipEmbeddingRefs bool
}

// Pipeline orchestrates ingestion and retrieval. It owns no persistent state.
type Pipeline struct {
	store     storage.Store
	chunker   *chunking.Chunker
	embedder  embedding.Embedder
	generator generation.Generator
	fetcher   Fetcher
	cfg       Config
	logger    *slog.Logger

	vectorMode bool

	// mu guards index, which Rebuild swaps.
	mu    sync.RWMutex
	index vectorindex.Index

	// embedMu serializes writes to the index so a chunk is never embedded
	// twice by concurrent ingest and backfill.
	embedMu sync.Mutex
}

// NewPipeline creates a retrieval pipeline. embedder may be embedding.None(),
// in which case index may be nil and queries use keyword search. fetcher may
// be nil to disable URL items.
func NewPipeline(
	store storage.Store,
	index vectorindex.Index,
	chunker *chunking.Chunker,
	embedder embedding.Embedder,
	generator generation.Generator,
	fetcher Fetcher,
	cfg Config,
	logger *slog.Logger,
) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil {
		embedder = embedding.None()
	}
	if generator == nil {
		generator = &generation.Extractive{}
	}
	if chunker == nil {
		chunker = chunking.NewChunker(chunking.Config{})
	}
	if cfg.EmbeddingMode == "" {
		cfg.EmbeddingMode = embedding.ModeLazy
	}
	if cfg.BackfillBatchSize <= 0 {
		cfg.BackfillBatchSize = DefaultBackfillBatchSize
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}

	vectorMode := embedding.Enabled(embedder)
	if vectorMode {
		if index == nil {
			return nil, fmt.Errorf("embedding provider %s configured without a vector index", embedder.Name())
		}
		if index.Dimensions() != embedder.Dimensions() {
			return nil, fmt.Errorf("%w: index has %d, %s embeddings have %d",
				vectorindex.ErrDimensionMismatch, index.Dimensions(), embedder.Name(), embedder.Dimensions())
		}
	}

	return &Pipeline{
		store:      store,
		index:      index,
		chunker:    chunker,
		embedder:   embedder,
		generator:  generator,
		fetcher:    fetcher,
		cfg:        cfg,
		logger:     logger,
		vectorMode: vectorMode,
	}, nil
}

// SearchMode reports SearchVector or SearchKeyword.
func (p *Pipeline) SearchMode() string {
	if p.vectorMode {
		return SearchVector
	}
	return SearchKeyword
}

// Index returns the active vector index, nil in keyword mode.
func (p *Pipeline) Index() vectorindex.Index {
	return p.currentIndex()
}

func (p *Pipeline) currentIndex() vectorindex.Index {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index
}

// Ingest saves an item, splits it into chunks and, in eager mode, embeds
// them. URL items without content are fetched first. Per-chunk embedding
// failures are logged and leave the chunk for lazy backfill.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*storage.Item, error) {
	req, err := ValidateIngest(req, 0)
	if err != nil {
		return nil, err
	}
	if req.Type == storage.ItemTypeURL {
		return p.IngestURL(ctx, req.URL, req.Metadata)
	}
	return p.ingestContent(ctx, req.Type, req.Content, req.Metadata)
}

// IngestURL fetches rawURL and saves its readable text as a url item with
// url and title metadata. Caller metadata wins over the fetched title.
func (p *Pipeline) IngestURL(ctx context.Context, rawURL string, metadata map[string]any) (*storage.Item, error) {
	if p.fetcher == nil {
		return nil, ErrFetchUnavailable
	}
	if _, err := fetch.ValidateURL(rawURL); err != nil {
		return nil, invalid("url", "must be an absolute http or https URL")
	}

	doc, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	p.logger.Debug("Fetched URL", "url", doc.URL, "chars", len(doc.Text), "truncated", doc.Truncated)

	meta := make(map[string]any, len(metadata)+2)
	meta[storage.MetaURL] = doc.URL
	if doc.Title != "" {
		meta[storage.MetaTitle] = doc.Title
	}
	for k, v := range metadata {
		meta[k] = v
	}

	return p.ingestContent(ctx, storage.ItemTypeURL, doc.Text, meta)
}

func (p *Pipeline) ingestContent(ctx context.Context, itemType storage.ItemType, content string, metadata map[string]any) (*storage.Item, error) {
	start := time.Now()

	if p.cfg.MaxContentChars > 0 && utf8.RuneCountInString(content) > p.cfg.MaxContentChars {
		p.logger.Warn("Truncating item content",
			"chars", utf8.RuneCountInString(content),
			"max_chars", p.cfg.MaxContentChars)
		content = string([]rune(content)[:p.cfg.MaxContentChars])
	}

	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[storage.MetaCharacterCount] = utf8.RuneCountInString(content)

	item := &storage.Item{
		ID:        uuid.New().String(),
		Type:      itemType,
		Content:   content,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	pieces := p.chunker.Split(content)
	if p.cfg.MaxChunksPerItem > 0 && len(pieces) > p.cfg.MaxChunksPerItem {
		p.logger.Debug("Dropping trailing chunks",
			"item", item.ID,
			"chunks", len(pieces),
			"max_chunks", p.cfg.MaxChunksPerItem)
		pieces = pieces[:p.cfg.MaxChunksPerItem]
	}

	chunks := make([]*storage.Chunk, 0, len(pieces))
	pending := make([]pendingChunk, 0, len(pieces))
	for i, piece := range pieces {
		chunk := &storage.Chunk{
			ID:         storage.ChunkID(item.ID, i),
			ItemID:     item.ID,
			Content:    piece,
			ChunkIndex: i,
		}
		chunks = append(chunks, chunk)
		pending = append(pending, pendingChunk{id: chunk.ID, text: chunk.Content})
	}
	if err := p.store.InsertItemWithChunks(ctx, item, chunks); err != nil {
		return nil, fmt.Errorf("store item: %w", err)
	}

	embedded := 0
	if p.vectorMode && p.cfg.EmbeddingMode == embedding.ModeEager && len(pending) > 0 {
		p.embedMu.Lock()
		index := p.currentIndex()
		for i := 0; i < len(pending); i += p.cfg.BackfillBatchSize {
			end := min(i+p.cfg.BackfillBatchSize, len(pending))
			embedded += p.embedChunks(ctx, index, pending[i:end])
		}
		p.embedMu.Unlock()
	}

	p.logger.Info("Ingested item",
		"id", item.ID,
		"type", item.Type,
		"chunks", len(pending),
		"embedded", embedded,
		"duration", time.Since(start))

	return item, nil
}

// Stats summarizes the pipeline for status endpoints.
type Stats struct {
	Items              int    `json:"items"`
	Chunks             int    `json:"chunks"`
	EmbeddedChunks     int    `json:"embeddedChunks"`
	IndexSize          int    `json:"indexSize"`
	SearchMode         string `json:"searchMode"`
	EmbeddingMode      string `json:"embeddingMode"`
	EmbeddingProvider  string `json:"embeddingProvider"`
	GenerationProvider string `json:"generationProvider"`
	ChunkMode          string `json:"chunkMode"`
}

// Stats reports item, chunk and embedding counts plus the active modes.
func (p *Pipeline) Stats(ctx context.Context) (*Stats, error) {
	counts, err := p.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count store: %w", err)
	}

	stats := &Stats{
		Items:              counts.Items,
		Chunks:             counts.Chunks,
		EmbeddedChunks:     counts.EmbeddedChunks,
		SearchMode:         p.SearchMode(),
		EmbeddingMode:      string(p.cfg.EmbeddingMode),
		EmbeddingProvider:  p.embedder.Name(),
		GenerationProvider: p.generator.Name(),
		ChunkMode:          string(p.chunker.Mode()),
	}

	if index := p.currentIndex(); index != nil {
		size, err := index.Size(ctx)
		if err != nil {
			return nil, fmt.Errorf("index size: %w", err)
		}
		stats.IndexSize = size
	}
	return stats, nil
}

// Health checks the store and, in vector mode, the index.
func (p *Pipeline) Health(ctx context.Context) error {
	if err := p.store.Health(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if index := p.currentIndex(); p.vectorMode && index != nil {
		if err := index.Health(ctx); err != nil {
			return fmt.Errorf("vector index: %w", err)
		}
	}
	return nil
}

// Rebuild replaces the vector index with fresh and re-embeds every stored
// chunk into it. The previous index is closed. It returns the number of
// chunks embedded.
func (p *Pipeline) Rebuild(ctx context.Context, fresh vectorindex.Index) (int, error) {
	if !p.vectorMode {
		return 0, fmt.Errorf("rebuild: no embedding provider configured")
	}
	if fresh == nil {
		return 0, fmt.Errorf("rebuild: nil index")
	}
	if fresh.Dimensions() != p.embedder.Dimensions() {
		return 0, fmt.Errorf("rebuild: %w", vectorindex.ErrDimensionMismatch)
	}

	p.embedMu.Lock()
	defer p.embedMu.Unlock()

	if !p.cfg.SkipEmbeddingRefs {
		if err := p.store.ClearEmbeddingRefs(ctx); err != nil {
			return 0, fmt.Errorf("clear embedding refs: %w", err)
		}
	}

	p.mu.Lock()
	old := p.index
	p.index = fresh
	p.mu.Unlock()

	if old != nil && old != fresh {
		if err := old.Close(); err != nil {
			p.logger.Warn("Failed to close previous index", "error", err)
		}
	}

	records, err := p.store.ListChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}

	pending := make([]pendingChunk, len(records))
	for i, rec := range records {
		pending[i] = pendingChunk{id: rec.ID, text: rec.Content}
	}

	start := time.Now()
	embedded := 0
	for i := 0; i < len(pending); i += p.cfg.BackfillBatchSize {
		if err := ctx.Err(); err != nil {
			return embedded, err
		}
		end := min(i+p.cfg.BackfillBatchSize, len(pending))
		embedded += p.embedChunks(ctx, fresh, pending[i:end])
	}

	p.logger.Info("Rebuilt vector index",
		"chunks", len(pending),
		"embedded", embedded,
		"duration", time.Since(start))

	return embedded, nil
}
