package rag

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bull/notes-rag/internal/generation"
	"github.com/bull/notes-rag/internal/storage"
)

// SystemInstruction is sent with every generation request.
const SystemInstruction = "You answer questions using only the numbered context passages from the user's saved notes and web pages. " +
	"Cite the passages you rely on by their bracket numbers, for example [1]. " +
	"If the context does not contain enough information to answer, say so. " +
	"Be concise."

// NoRelevantContent is the answer when retrieval finds nothing.
const NoRelevantContent = "I couldn't find anything relevant in your saved content to answer this question. " +
	"Try saving notes or URLs about this topic first."

// SourcePreviewChars caps Source.Content.
const SourcePreviewChars = 200

// Answer is the result of a query.
type Answer struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
	SearchMode string   `json:"searchMode"`
}

// Source is one retrieved chunk as shown to the caller. Score is cosine
// similarity in vector mode and the keyword score in keyword mode.
type Source struct {
	Index    int              `json:"index"`
	Content  string           `json:"content"`
	ItemID   string           `json:"itemId"`
	ItemType storage.ItemType `json:"itemType"`
	Score    float64          `json:"score"`
	Metadata map[string]any   `json:"metadata"`
}

func (p *Pipeline) noRelevantContent() *Answer {
	return &Answer{
		Answer:     NoRelevantContent,
		Sources:    []Source{},
		Confidence: 0,
		SearchMode: p.SearchMode(),
	}
}

// Query answers question from the top topK chunks. topK of 0 uses the
// configured default. Errors from embedding the question or generating the
// answer abort the query.
func (p *Pipeline) Query(ctx context.Context, question string, topK int) (*Answer, error) {
	start := time.Now()

	question, topK, err := ValidateQuery(question, topK, p.cfg.DefaultTopK)
	if err != nil {
		return nil, err
	}

	var (
		hits       []scoredChunk
		confidence float64
	)
	if p.vectorMode {
		hits, err = p.vectorSearch(ctx, question, topK)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			confidence = clamp01(hits[0].score)
		}
	} else {
		records, err := p.store.ListChunks(ctx)
		if err != nil {
			return nil, fmt.Errorf("list chunks: %w", err)
		}
		hits = rankByKeywords(records, question, topK)
		if len(hits) > 0 {
			confidence = math.Min(1, hits[0].score/KeywordScoreScale)
		}
	}

	if len(hits) == 0 {
		p.logger.Info("No relevant content", "mode", p.SearchMode(), "duration", time.Since(start))
		return p.noRelevantContent(), nil
	}

	answer, err := p.generator.Generate(ctx, SystemInstruction, generation.UserMessage(buildContext(hits), question))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	p.logger.Info("Answered query",
		"mode", p.SearchMode(),
		"sources", len(hits),
		"confidence", confidence,
		"duration", time.Since(start))

	return &Answer{
		Answer:     answer,
		Sources:    buildSources(hits),
		Confidence: confidence,
		SearchMode: p.SearchMode(),
	}, nil
}

func (p *Pipeline) vectorSearch(ctx context.Context, question string, topK int) ([]scoredChunk, error) {
	if err := p.backfill(ctx); err != nil {
		return nil, fmt.Errorf("backfill embeddings: %w", err)
	}

	qv, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	matches, err := p.currentIndex().Search(ctx, qv, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	similarity := make(map[string]float64, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
		// duplicate entries for a chunk keep the best-ranked similarity
		if _, seen := similarity[m.ChunkID]; !seen {
			similarity[m.ChunkID] = m.Similarity
		}
	}

	records, err := p.store.GetChunksByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	hits := make([]scoredChunk, len(records))
	for i, rec := range records {
		hits[i] = scoredChunk{record: rec, score: similarity[rec.ID]}
	}
	return hits, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// buildContext numbers passages from 1 in ranking order.
func buildContext(hits []scoredChunk) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("[%d] %s", i+1, h.record.Content)
	}
	return strings.Join(parts, "\n\n")
}

func buildSources(hits []scoredChunk) []Source {
	sources := make([]Source, len(hits))
	for i, h := range hits {
		sources[i] = Source{
			Index:    i + 1,
			Content:  preview(h.record.Content, SourcePreviewChars),
			ItemID:   h.record.ItemID,
			ItemType: h.record.ItemType,
			Score:    h.score,
			Metadata: h.record.ItemMetadata,
		}
	}
	return sources
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
