package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/notes-rag/internal/github"
)

const samplePage = `<!doctype html>
<html>
<head>
  <title>  Saving Notes  </title>
  <style>body { color: red; }</style>
  <script>var tracking = "should not appear";</script>
</head>
<body>
  <nav>Home | About</nav>
  <h1>Saving Notes</h1>
  <p>Notes are chunked before embedding.</p>
  <p>Queries retrieve the closest chunks.</p>
  <noscript>enable javascript</noscript>
</body>
</html>`

func TestHTMLText(t *testing.T) {
	title, text, err := HTMLText(strings.NewReader(samplePage))
	require.NoError(t, err)

	assert.Equal(t, "Saving Notes", title)
	assert.Contains(t, text, "Notes are chunked before embedding.")
	assert.Contains(t, text, "Queries retrieve the closest chunks.")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "enable javascript")
	assert.NotContains(t, text, "Home | About")

	// paragraphs must not run together
	assert.NotContains(t, text, "embedding.Queries")
}

func TestHTMLText_TitleFallbacks(t *testing.T) {
	title, _, err := HTMLText(strings.NewReader(`<html><head><meta property="og:title" content="OG Title"></head><body><h1>H</h1></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "OG Title", title)

	title, _, err = HTMLText(strings.NewReader(`<html><body><h1> Heading </h1><p>x</p></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Heading", title)
}

func TestMarkdownText(t *testing.T) {
	src := "# Getting Started\n\nIntroduction with **bold** and a [link](https://example.com).\n\n## Install\n\n- one\n- two\n\n```go\nfmt.Println(\"hi\")\n```\n"

	title, text, err := MarkdownText([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "Getting Started", title)
	assert.Contains(t, text, "Getting Started")
	assert.Contains(t, text, "Introduction with bold and a link.")
	assert.Contains(t, text, "Install")
	assert.Contains(t, text, "one")
	assert.Contains(t, text, `fmt.Println("hi")`)
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "](")
	assert.NotContains(t, text, "```")
	assert.NotContains(t, text, "# ")
}

func TestMarkdownText_NoHeadings(t *testing.T) {
	title, text, err := MarkdownText([]byte("just a paragraph"))
	require.NoError(t, err)
	assert.Empty(t, title)
	assert.Equal(t, "just a paragraph", text)
}

func TestValidateURL(t *testing.T) {
	_, err := ValidateURL("https://example.com/a")
	assert.NoError(t, err)

	for _, raw := range []string{"ftp://example.com", "example.com/a", "/relative", "http://", "javascript:alert(1)"} {
		_, err := ValidateURL(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestFetch_HTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	doc, err := New(Config{}).Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/page", doc.URL)
	assert.Equal(t, "Saving Notes", doc.Title)
	assert.Equal(t, "text/html", doc.ContentType)
	assert.False(t, doc.Truncated)
	assert.Contains(t, doc.Text, "closest chunks")
}

func TestFetch_MarkdownByExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("# Readme\n\nSome *text*."))
	}))
	defer srv.Close()

	doc, err := New(Config{}).Fetch(context.Background(), srv.URL+"/README.md")
	require.NoError(t, err)
	assert.Equal(t, "Readme", doc.Title)
	assert.Equal(t, "text/markdown", doc.ContentType)
	assert.Contains(t, doc.Text, "Some text.")
}

func TestFetch_TruncatesLargeBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 1000)))
	}))
	defer srv.Close()

	doc, err := New(Config{MaxBytes: 100}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, doc.Truncated)
	assert.Len(t, doc.Text, 100)
}

func TestFetch_TruncationKeepsRunesWhole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("a" + strings.Repeat("é", 500)))
	}))
	defer srv.Close()

	doc, err := New(Config{MaxBytes: 100}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, doc.Truncated)
	assert.True(t, utf8.ValidString(doc.Text))
	assert.Equal(t, "a"+strings.Repeat("é", 49), doc.Text)
}

func TestCutAtRune(t *testing.T) {
	assert.Equal(t, []byte("abc"), cutAtRune([]byte("abc"), 5))
	assert.Equal(t, []byte("ab"), cutAtRune([]byte("abc"), 2))
	assert.Equal(t, []byte("x"), cutAtRune([]byte("x日本"), 3))
	assert.Equal(t, []byte("x日"), cutAtRune([]byte("x日本"), 4))

	// Bytes that are not UTF-8 never back off more than a few bytes.
	latin := bytes.Repeat([]byte{0x80}, 10)
	assert.Len(t, cutAtRune(latin, 5), 5)
}

func TestFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/image":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		case "/blank":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body><script>x()</script></body></html>"))
		}
	}))
	defer srv.Close()

	f := New(Config{})

	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = f.Fetch(context.Background(), srv.URL+"/image")
	assert.ErrorIs(t, err, ErrUnsupportedContent)

	_, err = f.Fetch(context.Background(), srv.URL+"/blank")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = f.Fetch(context.Background(), "not a url")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

type fakeBlobs struct {
	got github.BlobRef
}

func (f *fakeBlobs) FetchBlob(ctx context.Context, ref github.BlobRef) (*github.FetchedDoc, error) {
	f.got = ref
	return &github.FetchedDoc{Path: ref.Path, Content: "# Design\n\nThe index is volatile.", URL: ref.RawURL()}, nil
}

func TestFetch_GitHubBlob(t *testing.T) {
	blobs := &fakeBlobs{}
	f := New(Config{GitHub: blobs})

	raw := "https://github.com/acme/notes/blob/main/docs/DESIGN.md"
	doc, err := f.Fetch(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "docs/DESIGN.md", blobs.got.Path)
	assert.Equal(t, raw, doc.URL)
	assert.Equal(t, "Design", doc.Title)
	assert.Equal(t, "text/markdown", doc.ContentType)
	assert.Contains(t, doc.Text, "The index is volatile.")
}

func TestCleanLines(t *testing.T) {
	assert.Equal(t, "a b\n\nc", cleanLines("  a   b  \n\n\n\n   c \r\n"))
}
