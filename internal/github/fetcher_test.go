package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlobURL(t *testing.T) {
	ref, err := ParseBlobURL("https://github.com/acme/notes/blob/main/docs/guide.md")
	require.NoError(t, err)
	assert.Equal(t, BlobRef{Owner: "acme", Repo: "notes", Ref: "main", Path: "docs/guide.md"}, ref)
	assert.Equal(t, "https://raw.githubusercontent.com/acme/notes/main/docs/guide.md", ref.RawURL())

	for _, raw := range []string{
		"https://github.com/acme/notes",
		"https://github.com/acme/notes/tree/main/docs",
		"https://github.com/acme/notes/blob/main",
		"https://example.com/acme/notes/blob/main/a.md",
		"://bad",
	} {
		_, err := ParseBlobURL(raw)
		assert.ErrorIs(t, err, ErrNotBlobURL, raw)
	}
}

func TestFetchBlob(t *testing.T) {
	var gotRef string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/notes/contents/docs/guide.md", r.URL.Path)
		gotRef = r.URL.Query().Get("ref")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"encoding": "base64",
			"name":     "guide.md",
			"path":     "docs/guide.md",
			"sha":      "abc123",
			"content":  base64.StdEncoding.EncodeToString([]byte("# Guide\n\nHello.")),
		})
	}))
	defer srv.Close()

	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	f := NewFetcher(&Client{Client: gh})
	doc, err := f.FetchBlob(context.Background(), BlobRef{Owner: "acme", Repo: "notes", Ref: "v1", Path: "docs/guide.md"})
	require.NoError(t, err)

	assert.Equal(t, "v1", gotRef)
	assert.Equal(t, "# Guide\n\nHello.", doc.Content)
	assert.Equal(t, "abc123", doc.SHA)
	assert.Equal(t, "docs/guide.md", doc.Path)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	assert.NotNil(t, c.Repositories)
}
