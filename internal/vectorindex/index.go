// Package vectorindex maps embedding vectors to chunk ids and answers
// nearest-neighbour queries by cosine similarity.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrIndexUnreachable  = errors.New("vector index unreachable")
)

// Match is one search hit. Distance is 1 - Similarity for every backend.
type Match struct {
	ChunkID     string
	EmbeddingID int64
	Similarity  float64
	Distance    float64
}

// Index is implemented by the exact in-memory backend and the approximate
// Qdrant backend. Ranking order is the contract; backends may differ in the
// exact scores they report.
type Index interface {
	// Add stores vector for chunkID and returns its sequential embedding id.
	// Re-adding a chunk creates a second entry.
	Add(ctx context.Context, chunkID string, vector []float32) (int64, error)
	Has(ctx context.Context, chunkID string) (bool, error)
	// Search returns at most min(k, Size) matches by descending similarity.
	// An empty index yields an empty slice.
	Search(ctx context.Context, query []float32, k int) ([]Match, error)
	Size(ctx context.Context) (int, error)
	Dimensions() int
	Health(ctx context.Context) error
	Close() error
}

// Backend names accepted by config.
const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
)

// ParseBackend normalizes a backend name.
func ParseBackend(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case BackendMemory, "":
		return BackendMemory, nil
	case BackendQdrant:
		return BackendQdrant, nil
	default:
		return "", fmt.Errorf("unknown vector backend %q", s)
	}
}

func checkDimensions(want int, vector []float32, what string) error {
	if len(vector) != want {
		return fmt.Errorf("%w: %s has %d dimensions, expected %d",
			ErrDimensionMismatch, what, len(vector), want)
	}
	return nil
}

// CosineSimilarity returns dot(a,b) / (|a| * |b|), or 0 when either vector
// has zero magnitude or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
