package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/bull/notes-rag/internal/fetch"
	"github.com/bull/notes-rag/internal/provider"
)

const testDims = 64

// hashEmbedder is a bag-of-words embedder: each word increments one
// dimension picked by hashing. Texts sharing words are similar.
type hashEmbedder struct {
	mu sync.Mutex

	// fail makes every call that includes a matching text fail.
	fail       func(text string) bool
	failBatch  bool
	embedded   []string
	batchCalls int
}

func (e *hashEmbedder) Name() string    { return "hash" }
func (e *hashEmbedder) Dimensions() int { return testDims }

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil && e.fail(text) {
		return nil, provider.Wrap("hash", "embed", errors.New("refused"))
	}
	e.embedded = append(e.embedded, text)
	return hashVector(text), nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batchCalls++
	if e.failBatch {
		return nil, provider.Wrap("hash", "embed", errors.New("batch refused"))
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if e.fail != nil && e.fail(text) {
			return nil, provider.Wrap("hash", "embed", errors.New("refused"))
		}
		vectors[i] = hashVector(text)
	}
	e.embedded = append(e.embedded, texts...)
	return vectors, nil
}

func (e *hashEmbedder) embeddedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.embedded)
}

func hashVector(text string) []float32 {
	v := make([]float32, testDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%testDims]++
	}
	return v
}

type fakeGenerator struct {
	mu     sync.Mutex
	system string
	user   string
	calls  int
	err    error
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.system, g.user = system, user
	if g.err != nil {
		return "", g.err
	}
	return "generated answer [1]", nil
}

type fakeFetcher struct {
	doc *fetch.Document
	err error
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*fetch.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc := *f.doc
	doc.URL = rawURL
	return &doc, nil
}
