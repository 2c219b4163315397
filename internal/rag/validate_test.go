package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/notes-rag/internal/storage"
)

func TestValidateIngest(t *testing.T) {
	tests := []struct {
		name    string
		req     IngestRequest
		max     int
		field   string
		wantURL string
	}{
		{name: "text ok", req: IngestRequest{Type: "text", Content: "hello"}},
		{name: "type defaults to text", req: IngestRequest{Content: "hello"}},
		{name: "unknown type", req: IngestRequest{Type: "pdf", Content: "x"}, field: "type"},
		{name: "empty text", req: IngestRequest{Type: "text", Content: " \n"}, field: "content"},
		{name: "text too large", req: IngestRequest{Type: "text", Content: strings.Repeat("a", 11)}, max: 10, field: "content"},
		{name: "text at limit", req: IngestRequest{Type: "text", Content: strings.Repeat("a", 10)}, max: 10},
		{name: "url in url field", req: IngestRequest{Type: "url", URL: "https://example.com/a"}, wantURL: "https://example.com/a"},
		{name: "url in content field", req: IngestRequest{Type: "URL", Content: " http://example.com "}, wantURL: "http://example.com"},
		{name: "url type inferred", req: IngestRequest{URL: "https://example.com"}, wantURL: "https://example.com"},
		{name: "relative url", req: IngestRequest{Type: "url", URL: "/docs"}, field: "url"},
		{name: "non-http url", req: IngestRequest{Type: "url", URL: "file:///etc/passwd"}, field: "url"},
		{name: "missing url", req: IngestRequest{Type: "url"}, field: "url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateIngest(tt.req, tt.max)
			if tt.field != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.field, verr.Field)
				return
			}
			require.NoError(t, err)
			if tt.wantURL != "" {
				assert.Equal(t, storage.ItemTypeURL, got.Type)
				assert.Equal(t, tt.wantURL, got.URL)
				assert.Empty(t, got.Content)
			} else {
				assert.Equal(t, storage.ItemTypeText, got.Type)
			}
		})
	}
}

func TestValidateQuery(t *testing.T) {
	q, k, err := ValidateQuery("  what?  ", 0, 7)
	require.NoError(t, err)
	assert.Equal(t, "what?", q)
	assert.Equal(t, 7, k)

	_, k, err = ValidateQuery("q", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, k)

	_, k, err = ValidateQuery("q", MaxTopK, 5)
	require.NoError(t, err)
	assert.Equal(t, MaxTopK, k)

	for _, topK := range []int{-1, MaxTopK + 1} {
		_, _, err = ValidateQuery("q", topK, 5)
		assert.True(t, IsValidation(err), "topK %d", topK)
	}

	_, _, err = ValidateQuery("   ", 3, 5)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "question", verr.Field)
}
