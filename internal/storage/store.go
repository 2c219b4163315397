// Package storage is the durable content store for items and their chunks.
//
// Two backends implement Store: an in-memory map store for tests and
// throwaway sessions, and a SQLite store (modernc.org/sqlite, no CGO) for
// persistent use. Deleting an item cascades to its chunks in the SQLite
// schema; no per-item delete is exposed.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Store persists items and chunks.
type Store interface {
	InsertItem(ctx context.Context, item *Item) error
	InsertChunk(ctx context.Context, chunk *Chunk) error
	// InsertItemWithChunks stores an item and its chunks atomically: on error
	// neither the item nor any chunk is visible.
	InsertItemWithChunks(ctx context.Context, item *Item, chunks []*Chunk) error
	// SetEmbeddingRef records the vector index entry for a chunk.
	SetEmbeddingRef(ctx context.Context, chunkID string, ref int64) error
	// ClearEmbeddingRefs forgets every embedding reference, used when the
	// volatile vector index starts empty.
	ClearEmbeddingRefs(ctx context.Context) error

	// ListItems returns all items, newest first.
	ListItems(ctx context.Context) ([]*Item, error)
	// GetItem returns ErrNotFound when no item has the id.
	GetItem(ctx context.Context, id string) (*Item, error)
	// ListItemChunks returns an item's chunks in index order.
	ListItemChunks(ctx context.Context, itemID string) ([]*Chunk, error)
	// GetChunksByIDs returns records in the order of ids, skipping unknown ids.
	GetChunksByIDs(ctx context.Context, ids []string) ([]*ChunkRecord, error)
	// ListChunks returns every chunk ordered by item creation, then chunk index.
	ListChunks(ctx context.Context) ([]*ChunkRecord, error)

	Counts(ctx context.Context) (Counts, error)
	Health(ctx context.Context) error
	Close() error
}

// Backend names accepted by config.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// ParseBackend normalizes a backend name.
func ParseBackend(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case BackendSQLite, "":
		return BackendSQLite, nil
	case BackendMemory:
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("unknown store backend %q", s)
	}
}
