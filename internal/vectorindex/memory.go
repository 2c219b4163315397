package vectorindex

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type memoryEntry struct {
	id      int64
	chunkID string
	vector  []float32
}

// Memory is an exact brute-force index. Entries live only in process memory
// and are rebuilt by re-embedding the content store.
type Memory struct {
	mu         sync.RWMutex
	dimensions int
	nextID     int64
	entries    []memoryEntry
	chunks     map[string]int // chunk id -> entry count
}

var _ Index = (*Memory)(nil)

// NewMemory creates an empty index for vectors of the given size.
func NewMemory(dimensions int) (*Memory, error) {
	if dimensions <= 0 {
		return nil, errors.New("vector dimensions must be positive")
	}
	return &Memory{
		dimensions: dimensions,
		nextID:     1,
		chunks:     make(map[string]int),
	}, nil
}

func (m *Memory) Add(ctx context.Context, chunkID string, vector []float32) (int64, error) {
	if err := checkDimensions(m.dimensions, vector, "embedding"); err != nil {
		return 0, err
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.entries = append(m.entries, memoryEntry{id: id, chunkID: chunkID, vector: stored})
	m.chunks[chunkID]++
	return id, nil
}

func (m *Memory) Has(ctx context.Context, chunkID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chunks[chunkID] > 0, nil
}

func (m *Memory) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if err := checkDimensions(m.dimensions, query, "query"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	matches := make([]Match, 0, len(m.entries))
	for _, e := range m.entries {
		sim := CosineSimilarity(query, e.vector)
		matches = append(matches, Match{
			ChunkID:     e.chunkID,
			EmbeddingID: e.id,
			Similarity:  sim,
			Distance:    1 - sim,
		})
	}
	m.mu.RUnlock()

	// Entries are appended in id order, so a stable sort keeps ties by id.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if k < 0 {
		k = 0
	}
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *Memory) Size(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *Memory) Dimensions() int {
	return m.dimensions
}

func (m *Memory) Health(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}
