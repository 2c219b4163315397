package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v81/github"
)

// ErrNotBlobURL is returned by ParseBlobURL for URLs that do not name a file.
var ErrNotBlobURL = errors.New("not a github blob url")

// BlobRef identifies a file at a given ref in a repository.
type BlobRef struct {
	Owner string
	Repo  string
	Ref   string
	Path  string
}

// RawURL is the raw.githubusercontent.com address of the file.
func (b BlobRef) RawURL() string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", b.Owner, b.Repo, b.Ref, b.Path)
}

// ParseBlobURL parses https://github.com/{owner}/{repo}/blob/{ref}/{path}.
// Refs containing slashes are not supported; the first segment after blob/
// is taken as the ref.
func ParseBlobURL(raw string) (BlobRef, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return BlobRef{}, fmt.Errorf("%w: %v", ErrNotBlobURL, err)
	}
	if host := strings.ToLower(u.Hostname()); host != "github.com" && host != "www.github.com" {
		return BlobRef{}, ErrNotBlobURL
	}

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 5)
	if len(parts) < 5 || parts[2] != "blob" || parts[4] == "" {
		return BlobRef{}, ErrNotBlobURL
	}

	return BlobRef{
		Owner: parts[0],
		Repo:  parts[1],
		Ref:   parts[3],
		Path:  parts[4],
	}, nil
}

// FetchedDoc represents a file fetched from GitHub
type FetchedDoc struct {
	Path    string // Path within the repository
	Content string // Decoded file content
	SHA     string // File's Git blob SHA
	URL     string // GitHub raw URL
}

// Fetcher handles fetching files from GitHub repositories
type Fetcher struct {
	client *Client
}

// NewFetcher creates a new file fetcher
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

// FetchBlob fetches the content of the file named by ref.
func (f *Fetcher) FetchBlob(ctx context.Context, ref BlobRef) (*FetchedDoc, error) {
	fileContent, _, _, err := f.client.Repositories.GetContents(
		ctx,
		ref.Owner,
		ref.Repo,
		ref.Path,
		&github.RepositoryContentGetOptions{Ref: ref.Ref},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", ref.Path, err)
	}

	if fileContent == nil || fileContent.Content == nil {
		return nil, fmt.Errorf("no file content returned for %s", ref.Path)
	}

	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", ref.Path, err)
	}

	return &FetchedDoc{
		Path:    ref.Path,
		Content: string(content),
		SHA:     fileContent.GetSHA(),
		URL:     ref.RawURL(),
	}, nil
}
