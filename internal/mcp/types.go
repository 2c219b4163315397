// Package mcp exposes the notes pipeline as Model Context Protocol tools.
package mcp

// SaveNoteInput defines the input parameters for the save_note tool.
type SaveNoteInput struct {
	// Content is the note text.
	Content string `json:"content" jsonschema:"The note text to save"`
	// Title is an optional display title.
	Title string `json:"title,omitempty" jsonschema:"Optional title for the note"`
	// Tags are stored in the item metadata.
	Tags []string `json:"tags,omitempty" jsonschema:"Optional tags stored with the note"`
}

// SaveURLInput defines the input parameters for the save_url tool.
type SaveURLInput struct {
	// URL is the page to fetch and save.
	URL string `json:"url" jsonschema:"Absolute http or https URL of the page to save"`
	// Title overrides the fetched page title.
	Title string `json:"title,omitempty" jsonschema:"Optional title overriding the page title"`
	// Tags are stored in the item metadata.
	Tags []string `json:"tags,omitempty" jsonschema:"Optional tags stored with the page"`
}

// SaveOutput describes a saved item.
type SaveOutput struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Title          string `json:"title,omitempty"`
	CharacterCount int    `json:"character_count"`
}

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	// Question is answered from saved content.
	Question string `json:"question" jsonschema:"The question to answer from saved notes and pages"`
	// TopK is the number of passages to retrieve.
	TopK int `json:"top_k,omitempty" jsonschema:"Number of passages to retrieve (1-20)"`
}

// AskOutput contains the answer and its sources.
type AskOutput struct {
	Answer     string         `json:"answer"`
	Sources    []SourceOutput `json:"sources"`
	Confidence float64        `json:"confidence"`
	SearchMode string         `json:"search_mode"`
}

// SourceOutput is one passage the answer was drawn from.
type SourceOutput struct {
	Index   int     `json:"index"`
	ItemID  string  `json:"item_id"`
	Type    string  `json:"type"`
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ListItemsInput defines the input parameters for the list_items tool.
type ListItemsInput struct {
	// Limit caps the number of items returned, newest first.
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of items to return, newest first (default 50)"`
}

// ListItemsOutput contains saved items, newest first.
type ListItemsOutput struct {
	Items []ItemSummary `json:"items"`
	Count int           `json:"count"`
	Total int           `json:"total"`
}

// ItemSummary is a saved item without its full content.
type ItemSummary struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
	Preview   string `json:"preview"`
	CreatedAt string `json:"created_at"`
}

// GetItemInput defines the input parameters for the get_item tool.
type GetItemInput struct {
	// ID is the item id returned by save_note or save_url.
	ID string `json:"id" jsonschema:"The item id"`
}

// GetItemOutput contains the full item.
type GetItemOutput struct {
	ID        string         `json:"id"`
	Type      string         `json:"type,omitempty"`
	Content   string         `json:"content,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Chunks    int            `json:"chunks"`
	CreatedAt string         `json:"created_at,omitempty"`
	// Found indicates whether the item exists.
	Found bool `json:"found"`
}

// StatusInput defines the input parameters for the index_status tool.
type StatusInput struct{}

// StatusOutput reports store and index counts and the active modes.
type StatusOutput struct {
	Items              int    `json:"items"`
	Chunks             int    `json:"chunks"`
	EmbeddedChunks     int    `json:"embedded_chunks"`
	IndexSize          int    `json:"index_size"`
	SearchMode         string `json:"search_mode"`
	EmbeddingMode      string `json:"embedding_mode"`
	EmbeddingProvider  string `json:"embedding_provider"`
	GenerationProvider string `json:"generation_provider"`
	ChunkMode          string `json:"chunk_mode"`
	// PendingChunks are stored but not yet in the vector index.
	PendingChunks int `json:"pending_chunks"`
}
