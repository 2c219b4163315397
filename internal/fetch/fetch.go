// Package fetch downloads a URL and extracts readable text and a title from
// it. HTML goes through goquery, markdown through goldmark, and github.com
// blob URLs through the GitHub contents API.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/bull/notes-rag/internal/github"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxBytes = 2 << 20

	userAgent = "notes-rag/1.0 (+https://github.com/bull/notes-rag)"
)

var (
	ErrInvalidURL         = errors.New("invalid url")
	ErrUnsupportedContent = errors.New("unsupported content type")
	ErrEmptyContent       = errors.New("no readable text")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

// Document is the readable form of a fetched URL.
type Document struct {
	URL         string
	Title       string
	Text        string
	ContentType string
	Truncated   bool
}

// BlobFetcher fetches files from GitHub. *github.Fetcher implements it.
type BlobFetcher interface {
	FetchBlob(ctx context.Context, ref github.BlobRef) (*github.FetchedDoc, error)
}

// Config configures a Fetcher.
type Config struct {
	Timeout  time.Duration
	MaxBytes int64
	// GitHub handles github.com blob URLs. Nil fetches them as HTML pages.
	GitHub BlobFetcher
	Logger *slog.Logger
	// Client overrides the HTTP client. Its Timeout is replaced by Timeout.
	Client *http.Client
}

// Fetcher retrieves URLs with bounded time and size.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	github   BlobFetcher
	logger   *slog.Logger
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := &http.Client{}
	if cfg.Client != nil {
		c := *cfg.Client
		client = &c
	}
	client.Timeout = cfg.Timeout

	return &Fetcher{
		client:   client,
		maxBytes: cfg.MaxBytes,
		github:   cfg.GitHub,
		logger:   cfg.Logger,
	}
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// Fetch downloads raw and extracts its text.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (*Document, error) {
	u, err := ValidateURL(raw)
	if err != nil {
		return nil, err
	}

	if f.github != nil {
		if ref, err := github.ParseBlobURL(u.String()); err == nil {
			return f.fetchBlob(ctx, u.String(), ref)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,text/markdown,text/plain;q=0.9,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	body, truncated, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	if truncated {
		f.logger.Warn("response truncated", "url", u.String(), "max_bytes", f.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	doc, err := extract(body, contentType, u.Path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", u, err)
	}
	doc.URL = u.String()
	doc.Truncated = truncated

	f.logger.Debug("fetched url",
		"url", doc.URL,
		"content_type", doc.ContentType,
		"chars", len(doc.Text))

	return doc, nil
}

func (f *Fetcher) fetchBlob(ctx context.Context, raw string, ref github.BlobRef) (*Document, error) {
	file, err := f.github.FetchBlob(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", raw, err)
	}

	content := []byte(file.Content)
	truncated := int64(len(content)) > f.maxBytes
	if truncated {
		content = cutAtRune(content, f.maxBytes)
	}

	contentType := "text/plain"
	if isMarkdownPath(ref.Path) {
		contentType = "text/markdown"
	}
	doc, err := extract(content, contentType, ref.Path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", raw, err)
	}
	if doc.Title == "" {
		doc.Title = path.Base(ref.Path)
	}
	doc.URL = raw
	doc.Truncated = truncated
	return doc, nil
}

// readLimited reads at most maxBytes and reports whether more was available.
func (f *Fetcher) readLimited(r io.Reader) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > f.maxBytes {
		return cutAtRune(body, f.maxBytes), true, nil
	}
	return body, false, nil
}

// cutAtRune shortens b to at most n bytes without splitting a UTF-8 sequence.
// It backs off at most utf8.UTFMax-1 bytes, so other encodings still get a
// cut close to n.
func cutAtRune(b []byte, n int64) []byte {
	if int64(len(b)) <= n {
		return b
	}
	cut := int(n)
	for i := 0; i < utf8.UTFMax-1 && cut > 0 && !utf8.RuneStart(b[cut]); i++ {
		cut--
	}
	if !utf8.RuneStart(b[cut]) {
		cut = int(n)
	}
	return b[:cut]
}

// extract dispatches on the media type, falling back to the path extension
// for servers that send text/plain or octet-stream for markdown.
func extract(body []byte, contentType, urlPath string) (*Document, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}

	var title, text string
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		utf8Reader, err := charset.NewReader(bytes.NewReader(body), contentType)
		if err != nil {
			return nil, err
		}
		title, text, err = HTMLText(utf8Reader)
		if err != nil {
			return nil, err
		}
		mediaType = "text/html"

	case mediaType == "text/markdown" || mediaType == "text/x-markdown" || isMarkdownPath(urlPath):
		title, text, err = MarkdownText(body)
		if err != nil {
			return nil, err
		}
		mediaType = "text/markdown"

	case mediaType == "" || strings.HasPrefix(mediaType, "text/"):
		text = cleanLines(string(body))
		if mediaType == "" {
			mediaType = "text/plain"
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	return &Document{
		Title:       strings.TrimSpace(title),
		Text:        text,
		ContentType: mediaType,
	}, nil
}

func isMarkdownPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown", ".mdx":
		return true
	}
	return false
}

// cleanLines trims every line and drops blank runs, keeping one empty line
// between paragraphs.
func cleanLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	cleaned := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(cleaned) > 0 && !blank {
				cleaned = append(cleaned, "")
			}
			blank = true
			continue
		}
		cleaned = append(cleaned, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
