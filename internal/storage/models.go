package storage

import (
	"fmt"
	"time"
)

// ItemType distinguishes saved notes from saved web pages.
type ItemType string

const (
	ItemTypeText ItemType = "text"
	ItemTypeURL  ItemType = "url"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	return t == ItemTypeText || t == ItemTypeURL
}

// Well-known metadata keys.
const (
	MetaTitle          = "title"
	MetaURL            = "url"
	MetaCharacterCount = "characterCount"
)

// Item is one ingested unit of knowledge. Items are never updated.
type Item struct {
	ID        string         `json:"id"`
	Type      ItemType       `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Chunk is a retrievable slice of an item's content.
type Chunk struct {
	ID           string `json:"id"`     // "{itemId}_chunk_{i}"
	ItemID       string `json:"itemId"` // parent Item.ID
	Content      string `json:"content"`
	ChunkIndex   int    `json:"chunkIndex"`
	EmbeddingRef *int64 `json:"embeddingRef,omitempty"` // nil until embedded
}

// ChunkRecord is a chunk joined with its parent item's type and metadata.
type ChunkRecord struct {
	Chunk
	ItemType     ItemType       `json:"itemType"`
	ItemMetadata map[string]any `json:"itemMetadata"`
}

// ChunkID builds the deterministic id of the i-th chunk of an item.
func ChunkID(itemID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", itemID, index)
}

// Counts summarizes store contents.
type Counts struct {
	Items          int `json:"items"`
	Chunks         int `json:"chunks"`
	EmbeddedChunks int `json:"embeddedChunks"`
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
