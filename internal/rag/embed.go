package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/bull/notes-rag/internal/vectorindex"
)

type pendingChunk struct {
	id   string
	text string
}

// embedChunks embeds one batch and adds it to index. A failed batch call is
// retried one chunk at a time; chunks that still fail are logged and skipped.
// Returns the number of chunks added. Callers hold embedMu.
func (p *Pipeline) embedChunks(ctx context.Context, index vectorindex.Index, batch []pendingChunk) int {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) != len(batch) {
		err = fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(batch))
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		p.logger.Warn("Batch embedding failed, embedding chunks individually",
			"chunks", len(batch),
			"error", err)

		vectors = make([][]float32, len(batch))
		for i, c := range batch {
			v, err := p.embedder.Embed(ctx, c.text)
			if err != nil {
				if ctx.Err() != nil {
					return 0
				}
				p.logger.Warn("Failed to embed chunk", "chunk", c.id, "error", err)
				continue
			}
			vectors[i] = v
		}
	}

	added := 0
	for i, c := range batch {
		if vectors[i] == nil {
			continue
		}
		ref, err := index.Add(ctx, c.id, vectors[i])
		if err != nil {
			p.logger.Warn("Failed to index chunk", "chunk", c.id, "error", err)
			continue
		}
		added++
		if p.cfg.SkipEmbeddingRefs {
			continue
		}
		if err := p.store.SetEmbeddingRef(ctx, c.id, ref); err != nil {
			p.logger.Warn("Failed to record embedding ref", "chunk", c.id, "ref", ref, "error", err)
		}
	}
	return added
}

// backfill embeds every stored chunk the index does not have yet, in
// sequential batches. Index lookups that fail abort the backfill; provider
// failures only skip the affected chunks.
func (p *Pipeline) backfill(ctx context.Context) error {
	p.embedMu.Lock()
	defer p.embedMu.Unlock()

	index := p.currentIndex()

	records, err := p.store.ListChunks(ctx)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}

	var pending []pendingChunk
	for _, rec := range records {
		ok, err := index.Has(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("check embedding for %s: %w", rec.ID, err)
		}
		if !ok {
			pending = append(pending, pendingChunk{id: rec.ID, text: rec.Content})
		}
	}
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()
	embedded := 0
	for i := 0; i < len(pending); i += p.cfg.BackfillBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+p.cfg.BackfillBatchSize, len(pending))
		embedded += p.embedChunks(ctx, index, pending[i:end])
	}

	p.logger.Info("Backfilled embeddings",
		"pending", len(pending),
		"embedded", embedded,
		"duration", time.Since(start))

	return nil
}
