package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps items and chunks in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	items      map[string]*Item
	itemOrder  []string // insertion order
	chunks     map[string]*Chunk
	itemChunks map[string][]string // item id -> chunk ids
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]*Item),
		chunks:     make(map[string]*Chunk),
		itemChunks: make(map[string][]string),
	}
}

func (s *MemoryStore) InsertItem(ctx context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("%w: item %s", ErrDuplicateID, item.ID)
	}
	s.putItem(item)
	return nil
}

func (s *MemoryStore) InsertChunk(ctx context.Context, chunk *Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[chunk.ItemID]; !ok {
		return fmt.Errorf("%w: parent %s of chunk %s", ErrNotFound, chunk.ItemID, chunk.ID)
	}
	if _, ok := s.chunks[chunk.ID]; ok {
		return fmt.Errorf("%w: chunk %s", ErrDuplicateID, chunk.ID)
	}
	s.putChunk(chunk)
	return nil
}

// InsertItemWithChunks checks everything before writing anything.
func (s *MemoryStore) InsertItemWithChunks(ctx context.Context, item *Item, chunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("%w: item %s", ErrDuplicateID, item.ID)
	}
	seen := make(map[string]bool, len(chunks))
	for _, chunk := range chunks {
		if chunk.ItemID != item.ID {
			return fmt.Errorf("%w: parent %s of chunk %s", ErrNotFound, chunk.ItemID, chunk.ID)
		}
		if _, ok := s.chunks[chunk.ID]; ok || seen[chunk.ID] {
			return fmt.Errorf("%w: chunk %s", ErrDuplicateID, chunk.ID)
		}
		seen[chunk.ID] = true
	}

	s.putItem(item)
	for _, chunk := range chunks {
		s.putChunk(chunk)
	}
	return nil
}

func (s *MemoryStore) putItem(item *Item) {
	stored := *item
	stored.Metadata = copyMetadata(item.Metadata)
	s.items[item.ID] = &stored
	s.itemOrder = append(s.itemOrder, item.ID)
}

func (s *MemoryStore) putChunk(chunk *Chunk) {
	stored := *chunk
	if chunk.EmbeddingRef != nil {
		ref := *chunk.EmbeddingRef
		stored.EmbeddingRef = &ref
	}
	s.chunks[chunk.ID] = &stored
	s.itemChunks[chunk.ItemID] = append(s.itemChunks[chunk.ItemID], chunk.ID)
}

func (s *MemoryStore) SetEmbeddingRef(ctx context.Context, chunkID string, ref int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[chunkID]
	if !ok {
		return fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID)
	}
	c.EmbeddingRef = &ref
	return nil
}

func (s *MemoryStore) ClearEmbeddingRefs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.chunks {
		c.EmbeddingRef = nil
	}
	return nil
}

func (s *MemoryStore) ListItems(ctx context.Context) ([]*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*Item, 0, len(s.itemOrder))
	for i := len(s.itemOrder) - 1; i >= 0; i-- {
		items = append(items, s.cloneItem(s.items[s.itemOrder[i]]))
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) GetItem(ctx context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.cloneItem(item), nil
}

func (s *MemoryStore) ListItemChunks(ctx context.Context, itemID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.itemChunks[itemID]
	chunks := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		c := *s.chunks[id]
		chunks = append(chunks, &c)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}

func (s *MemoryStore) GetChunksByIDs(ctx context.Context, ids []string) ([]*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*ChunkRecord, 0, len(ids))
	for _, id := range ids {
		c, ok := s.chunks[id]
		if !ok {
			continue
		}
		records = append(records, s.record(c))
	}
	return records, nil
}

func (s *MemoryStore) ListChunks(ctx context.Context) ([]*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order := make([]string, len(s.itemOrder))
	copy(order, s.itemOrder)
	sort.SliceStable(order, func(i, j int) bool {
		return s.items[order[i]].CreatedAt.Before(s.items[order[j]].CreatedAt)
	})

	records := make([]*ChunkRecord, 0, len(s.chunks))
	for _, itemID := range order {
		var itemRecords []*ChunkRecord
		for _, id := range s.itemChunks[itemID] {
			itemRecords = append(itemRecords, s.record(s.chunks[id]))
		}
		sort.SliceStable(itemRecords, func(i, j int) bool {
			return itemRecords[i].ChunkIndex < itemRecords[j].ChunkIndex
		})
		records = append(records, itemRecords...)
	}
	return records, nil
}

func (s *MemoryStore) Counts(ctx context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := Counts{Items: len(s.items), Chunks: len(s.chunks)}
	for _, c := range s.chunks {
		if c.EmbeddingRef != nil {
			counts.EmbeddedChunks++
		}
	}
	return counts, nil
}

func (s *MemoryStore) Health(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// record must be called with s.mu held.
func (s *MemoryStore) record(c *Chunk) *ChunkRecord {
	item := s.items[c.ItemID]
	rec := &ChunkRecord{
		Chunk:        *c,
		ItemType:     item.Type,
		ItemMetadata: copyMetadata(item.Metadata),
	}
	if c.EmbeddingRef != nil {
		ref := *c.EmbeddingRef
		rec.EmbeddingRef = &ref
	}
	return rec
}

func (s *MemoryStore) cloneItem(item *Item) *Item {
	out := *item
	out.Metadata = copyMetadata(item.Metadata)
	return &out
}
