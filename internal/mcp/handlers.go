package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/notes-rag/internal/rag"
	"github.com/bull/notes-rag/internal/storage"
)

const (
	defaultListLimit = 50
	previewChars     = 160
)

func tagMetadata(title string, tags []string) map[string]any {
	meta := map[string]any{}
	if title = strings.TrimSpace(title); title != "" {
		meta[storage.MetaTitle] = title
	}
	if len(tags) > 0 {
		meta["tags"] = tags
	}
	return meta
}

func saveOutput(item *storage.Item) SaveOutput {
	out := SaveOutput{
		ID:    item.ID,
		Type:  string(item.Type),
		Title: metaString(item.Metadata, storage.MetaTitle),
	}
	out.CharacterCount = utf8.RuneCountInString(item.Content)
	return out
}

// makeSaveNoteHandler creates the save_note tool handler.
func makeSaveNoteHandler(p Pipeline, maxBytes int) func(
	context.Context, *mcp.CallToolRequest, SaveNoteInput,
) (*mcp.CallToolResult, SaveOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SaveNoteInput) (
		*mcp.CallToolResult, SaveOutput, error,
	) {
		ingest, err := rag.ValidateIngest(rag.IngestRequest{
			Type:     storage.ItemTypeText,
			Content:  input.Content,
			Metadata: tagMetadata(input.Title, input.Tags),
		}, maxBytes)
		if err != nil {
			return nil, SaveOutput{}, err
		}

		item, err := p.Ingest(ctx, ingest)
		if err != nil {
			return nil, SaveOutput{}, fmt.Errorf("failed to save note: %w", err)
		}
		return nil, saveOutput(item), nil
	}
}

// makeSaveURLHandler creates the save_url tool handler.
func makeSaveURLHandler(p Pipeline) func(
	context.Context, *mcp.CallToolRequest, SaveURLInput,
) (*mcp.CallToolResult, SaveOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SaveURLInput) (
		*mcp.CallToolResult, SaveOutput, error,
	) {
		ingest, err := rag.ValidateIngest(rag.IngestRequest{
			Type:     storage.ItemTypeURL,
			URL:      input.URL,
			Metadata: tagMetadata(input.Title, input.Tags),
		}, 0)
		if err != nil {
			return nil, SaveOutput{}, err
		}

		item, err := p.Ingest(ctx, ingest)
		if err != nil {
			return nil, SaveOutput{}, fmt.Errorf("failed to save url: %w", err)
		}
		return nil, saveOutput(item), nil
	}
}

// makeAskHandler creates the ask tool handler.
func makeAskHandler(p Pipeline) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		answer, err := p.Query(ctx, input.Question, input.TopK)
		if err != nil {
			if rag.IsValidation(err) {
				return nil, AskOutput{}, err
			}
			return nil, AskOutput{}, fmt.Errorf("failed to answer question: %w", err)
		}

		sources := make([]SourceOutput, len(answer.Sources))
		for i, s := range answer.Sources {
			sources[i] = SourceOutput{
				Index:   s.Index,
				ItemID:  s.ItemID,
				Type:    string(s.ItemType),
				Title:   metaString(s.Metadata, storage.MetaTitle),
				URL:     metaString(s.Metadata, storage.MetaURL),
				Content: s.Content,
				Score:   s.Score,
			}
		}

		return nil, AskOutput{
			Answer:     answer.Answer,
			Sources:    sources,
			Confidence: answer.Confidence,
			SearchMode: answer.SearchMode,
		}, nil
	}
}

// makeListHandler creates the list_items tool handler.
func makeListHandler(store storage.Store) func(
	context.Context, *mcp.CallToolRequest, ListItemsInput,
) (*mcp.CallToolResult, ListItemsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListItemsInput) (
		*mcp.CallToolResult, ListItemsOutput, error,
	) {
		items, err := store.ListItems(ctx)
		if err != nil {
			return nil, ListItemsOutput{}, fmt.Errorf("failed to list items: %w", err)
		}

		limit := input.Limit
		if limit <= 0 {
			limit = defaultListLimit
		}
		total := len(items)
		if len(items) > limit {
			items = items[:limit]
		}

		summaries := make([]ItemSummary, len(items))
		for i, item := range items {
			summaries[i] = summarize(item)
		}

		return nil, ListItemsOutput{
			Items: summaries,
			Count: len(summaries),
			Total: total,
		}, nil
	}
}

// makeGetHandler creates the get_item tool handler.
// An unknown id is not an error: the output reports Found=false.
func makeGetHandler(store storage.Store) func(
	context.Context, *mcp.CallToolRequest, GetItemInput,
) (*mcp.CallToolResult, GetItemOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetItemInput) (
		*mcp.CallToolResult, GetItemOutput, error,
	) {
		item, err := store.GetItem(ctx, strings.TrimSpace(input.ID))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, GetItemOutput{ID: input.ID, Found: false}, nil
			}
			return nil, GetItemOutput{}, fmt.Errorf("failed to get item: %w", err)
		}

		chunks, err := store.ListItemChunks(ctx, item.ID)
		if err != nil {
			return nil, GetItemOutput{}, fmt.Errorf("failed to list chunks: %w", err)
		}

		return nil, GetItemOutput{
			ID:        item.ID,
			Type:      string(item.Type),
			Content:   item.Content,
			Metadata:  item.Metadata,
			Chunks:    len(chunks),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
			Found:     true,
		}, nil
	}
}

// makeStatusHandler creates the index_status tool handler.
func makeStatusHandler(p Pipeline) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		stats, err := p.Stats(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to get status: %w", err)
		}

		out := StatusOutput{
			Items:              stats.Items,
			Chunks:             stats.Chunks,
			EmbeddedChunks:     stats.EmbeddedChunks,
			IndexSize:          stats.IndexSize,
			SearchMode:         stats.SearchMode,
			EmbeddingMode:      stats.EmbeddingMode,
			EmbeddingProvider:  stats.EmbeddingProvider,
			GenerationProvider: stats.GenerationProvider,
			ChunkMode:          stats.ChunkMode,
		}
		if stats.SearchMode == rag.SearchVector {
			out.PendingChunks = stats.Chunks - stats.EmbeddedChunks
		}
		return nil, out, nil
	}
}

func summarize(item *storage.Item) ItemSummary {
	preview := strings.Join(strings.Fields(item.Content), " ")
	if utf8.RuneCountInString(preview) > previewChars {
		preview = string([]rune(preview)[:previewChars]) + "..."
	}
	return ItemSummary{
		ID:        item.ID,
		Type:      string(item.Type),
		Title:     metaString(item.Metadata, storage.MetaTitle),
		URL:       metaString(item.Metadata, storage.MetaURL),
		Preview:   preview,
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
