package rag

import (
	"strings"

	"github.com/bull/notes-rag/internal/fetch"
	"github.com/bull/notes-rag/internal/storage"
)

const (
	// MaxTopK bounds the number of chunks a query may retrieve.
	MaxTopK = 20
	// DefaultTopK is used when neither the caller nor config sets one.
	DefaultTopK = 5
)

// IngestRequest is one item to save. URL items may carry the address in
// either URL or Content.
type IngestRequest struct {
	Type     storage.ItemType `json:"type"`
	Content  string           `json:"content,omitempty"`
	URL      string           `json:"url,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// ValidateIngest checks req and returns it normalized: URL items have their
// address in URL and no content. maxBytes of 0 disables the size check.
func ValidateIngest(req IngestRequest, maxBytes int) (IngestRequest, error) {
	req.Type = storage.ItemType(strings.ToLower(strings.TrimSpace(string(req.Type))))
	if req.Type == "" {
		req.Type = storage.ItemTypeText
		if req.URL != "" && req.Content == "" {
			req.Type = storage.ItemTypeURL
		}
	}
	if !req.Type.Valid() {
		return req, invalid("type", "must be %q or %q", storage.ItemTypeText, storage.ItemTypeURL)
	}

	switch req.Type {
	case storage.ItemTypeText:
		if strings.TrimSpace(req.Content) == "" {
			return req, invalid("content", "must not be empty")
		}
		if maxBytes > 0 && len(req.Content) > maxBytes {
			return req, invalid("content", "exceeds %d bytes", maxBytes)
		}

	case storage.ItemTypeURL:
		raw := strings.TrimSpace(req.URL)
		if raw == "" {
			raw = strings.TrimSpace(req.Content)
		}
		if raw == "" {
			return req, invalid("url", "must not be empty")
		}
		u, err := fetch.ValidateURL(raw)
		if err != nil {
			return req, invalid("url", "must be an absolute http or https URL")
		}
		req.URL = u.String()
		req.Content = ""
	}

	return req, nil
}

// ValidateQuery trims the question and resolves topK. A topK of 0 selects
// defaultTopK.
func ValidateQuery(question string, topK, defaultTopK int) (string, int, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", 0, invalid("question", "must not be empty")
	}

	if topK == 0 {
		topK = defaultTopK
		if topK <= 0 {
			topK = DefaultTopK
		}
		topK = min(topK, MaxTopK)
	}
	if topK < 1 || topK > MaxTopK {
		return "", 0, invalid("topK", "must be between 1 and %d", MaxTopK)
	}
	return question, topK, nil
}
