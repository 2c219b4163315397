// Package main provides the notes CLI for saving content and asking questions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/notes-rag/internal/app"
	"github.com/bull/notes-rag/internal/config"
	"github.com/bull/notes-rag/internal/logging"
	"github.com/bull/notes-rag/internal/rag"
	"github.com/bull/notes-rag/internal/storage"
)

var (
	flagTitle   string
	flagTags    []string
	flagTopK    int
	flagLimit   int
	flagJSON    bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "notes",
	Short: "Save notes and web pages, then ask questions about them",
	Long: `CLI over the same store and pipeline as the notes server.

Environment variables (or a .env file in the working directory):
  STORE_BACKEND       sqlite (default) or memory
  SQLITE_DIR          database directory (default: ~/.notes-rag/data)
  EMBEDDING_PROVIDER  auto, openai, gemini or none
  GENERATION_PROVIDER auto, openai, gemini or extractive
  OPENAI_API_KEY      enables OpenAI embeddings and answers
  GEMINI_API_KEY      enables Gemini embeddings and answers
  GITHUB_TOKEN        GitHub token for higher rate limits (optional)`,
	SilenceUsage: true,
}

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Save a text note (reads stdin when no text or \"-\" is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAdd,
}

var addURLCmd = &cobra.Command{
	Use:   "add-url <url>",
	Short: "Fetch a web page or GitHub file and save its text",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddURL,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved items, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved item",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from saved content",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index from every stored chunk",
	Long: `Creates an empty vector index and re-embeds every stored chunk into it.

Requires an embedding provider. Per-chunk failures are logged and left for
the next backfill. Reindex takes ownership of the index: a shared Qdrant
collection is reset and embedding refs in the store are rewritten.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show item, chunk and embedding counts",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print JSON output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log at debug level")

	for _, cmd := range []*cobra.Command{addCmd, addURLCmd} {
		cmd.Flags().StringVar(&flagTitle, "title", "", "title stored in metadata")
		cmd.Flags().StringSliceVar(&flagTags, "tag", nil, "tag stored in metadata (repeatable)")
	}
	askCmd.Flags().IntVarP(&flagTopK, "top-k", "k", 0, fmt.Sprintf("passages to retrieve (1-%d, default from DEFAULT_TOP_K)", rag.MaxTopK))
	listCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "maximum items to list (0 for all)")

	rootCmd.AddCommand(addCmd, addURLCmd, listCmd, showCmd, askCmd, reindexCmd, statusCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openApp loads config and wires the pipeline. Callers must Close it.
func openApp(cmd *cobra.Command) (*app.App, error) {
	return openAppWith(cmd, app.Options{})
}

func openAppWith(cmd *cobra.Command, opts app.Options) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if flagVerbose {
		level = "debug"
	} else if level == "info" {
		level = "warn"
	}
	logger := logging.New(level, cfg.LogFormat, cmd.ErrOrStderr())
	return app.New(cmd.Context(), cfg, logger, opts)
}

func metadata() map[string]any {
	meta := map[string]any{}
	if t := strings.TrimSpace(flagTitle); t != "" {
		meta[storage.MetaTitle] = t
	}
	if len(flagTags) > 0 {
		meta["tags"] = flagTags
	}
	return meta
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runAdd(cmd *cobra.Command, args []string) error {
	var content string
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		content = string(b)
	} else {
		content = args[0]
	}
	return save(cmd, rag.IngestRequest{Type: storage.ItemTypeText, Content: content, Metadata: metadata()})
}

func runAddURL(cmd *cobra.Command, args []string) error {
	return save(cmd, rag.IngestRequest{Type: storage.ItemTypeURL, URL: args[0], Metadata: metadata()})
}

func save(cmd *cobra.Command, req rag.IngestRequest) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err = rag.ValidateIngest(req, a.Config.MaxRequestBytes)
	if err != nil {
		return err
	}

	start := time.Now()
	item, err := a.Pipeline.Ingest(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("saving item: %w", err)
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		return printJSON(out, item)
	}
	fmt.Fprintf(out, "Saved %s %s", item.Type, item.ID)
	if title, ok := item.Metadata[storage.MetaTitle].(string); ok && title != "" {
		fmt.Fprintf(out, " (%s)", title)
	}
	fmt.Fprintf(out, " in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.Store.ListItems(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing items: %w", err)
	}
	total := len(items)
	if flagLimit > 0 && len(items) > flagLimit {
		items = items[:flagLimit]
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		return printJSON(out, items)
	}
	if total == 0 {
		fmt.Fprintln(out, "No saved items.")
		return nil
	}
	for _, item := range items {
		label, _ := item.Metadata[storage.MetaTitle].(string)
		if label == "" {
			label = oneLine(item.Content, 60)
		}
		fmt.Fprintf(out, "%s  %-4s  %s  %s\n", item.ID, item.Type, item.CreatedAt.Local().Format("2006-01-02 15:04"), label)
	}
	if total > len(items) {
		fmt.Fprintf(out, "(%d of %d items)\n", len(items), total)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	item, err := a.Store.GetItem(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("item %s: %w", args[0], err)
	}
	chunks, err := a.Store.ListItemChunks(cmd.Context(), item.ID)
	if err != nil {
		return fmt.Errorf("listing chunks: %w", err)
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		return printJSON(out, map[string]any{"item": item, "chunks": chunks})
	}
	fmt.Fprintf(out, "ID:      %s\n", item.ID)
	fmt.Fprintf(out, "Type:    %s\n", item.Type)
	fmt.Fprintf(out, "Created: %s\n", item.CreatedAt.Local().Format(time.RFC1123))
	for k, v := range item.Metadata {
		fmt.Fprintf(out, "%s: %v\n", k, v)
	}
	fmt.Fprintf(out, "Chunks:  %d\n\n%s\n", len(chunks), item.Content)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.Pipeline.Query(cmd.Context(), strings.Join(args, " "), flagTopK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		return printJSON(out, answer)
	}
	fmt.Fprintln(out, answer.Answer)
	if len(answer.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(out, "\nSources (%s search, confidence %.2f):\n", answer.SearchMode, answer.Confidence)
	for _, s := range answer.Sources {
		label, _ := s.Metadata[storage.MetaTitle].(string)
		if u, ok := s.Metadata[storage.MetaURL].(string); ok && u != "" {
			label = strings.TrimSpace(label + " " + u)
		}
		if label == "" {
			label = s.ItemID
		}
		fmt.Fprintf(out, "  [%d] %s (score %.2f)\n", s.Index, label, s.Score)
	}
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	a, err := openAppWith(cmd, app.Options{OwnIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	n, err := a.Reindex(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %d chunks in %s\n", n, time.Since(start).Round(time.Millisecond))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Pipeline.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		return printJSON(out, stats)
	}
	fmt.Fprintf(out, "Items:           %d\n", stats.Items)
	fmt.Fprintf(out, "Chunks:          %d\n", stats.Chunks)
	fmt.Fprintf(out, "Embedded chunks: %d\n", stats.EmbeddedChunks)
	fmt.Fprintf(out, "Index size:      %d\n", stats.IndexSize)
	fmt.Fprintf(out, "Search mode:     %s\n", stats.SearchMode)
	fmt.Fprintf(out, "Embedding:       %s (%s)\n", stats.EmbeddingProvider, stats.EmbeddingMode)
	fmt.Fprintf(out, "Generation:      %s\n", stats.GenerationProvider)
	fmt.Fprintf(out, "Chunk mode:      %s\n", stats.ChunkMode)
	return nil
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
