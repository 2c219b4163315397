package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bull/notes-rag/internal/storage/migrations"
)

// DatabaseFile is the file name created inside the data directory.
const DatabaseFile = "notes.db"

// SQLiteStore persists items and chunks in a single SQLite database.
// Concurrency is handled by SQLite in WAL mode with a busy timeout.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database in dataDir and applies
// pending migrations. An empty dataDir defaults to ~/.notes-rag/data.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".notes-rag", "data")
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// Pragmas in the DSN apply to every pooled connection.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Health pings the database.
func (s *SQLiteStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping: %w", err)
	}
	return nil
}

// migrate applies every NNN_name.up.sql newer than the recorded version.
func (s *SQLiteStore) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) InsertItem(ctx context.Context, item *Item) error {
	return insertItem(ctx, s.db, item)
}

func (s *SQLiteStore) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return insertChunk(ctx, s.db, chunk)
}

func (s *SQLiteStore) InsertItemWithChunks(ctx context.Context, item *Item, chunks []*Chunk) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertItem(ctx, tx, item); err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err = insertChunk(ctx, tx, chunk); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing item %s: %w", item.ID, err)
	}
	return nil
}

func insertItem(ctx context.Context, db execer, item *Item) error {
	metadata := item.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO items (id, type, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		item.ID, string(item.Type), item.Content, string(metaJSON), item.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: item %s: %v", ErrDuplicateID, item.ID, err)
		}
		return fmt.Errorf("inserting item: %w", err)
	}
	return nil
}

func insertChunk(ctx context.Context, db execer, chunk *Chunk) error {
	var ref sql.NullInt64
	if chunk.EmbeddingRef != nil {
		ref = sql.NullInt64{Int64: *chunk.EmbeddingRef, Valid: true}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO chunks (id, item_id, content, chunk_index, embedding_ref) VALUES (?, ?, ?, ?, ?)`,
		chunk.ID, chunk.ItemID, chunk.Content, chunk.ChunkIndex, ref,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("%w: parent %s of chunk %s", ErrNotFound, chunk.ItemID, chunk.ID)
		}
		if isConstraintError(err) {
			return fmt.Errorf("%w: chunk %s: %v", ErrDuplicateID, chunk.ID, err)
		}
		return fmt.Errorf("inserting chunk: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetEmbeddingRef(ctx context.Context, chunkID string, ref int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding_ref = ? WHERE id = ?`, ref, chunkID)
	if err != nil {
		return fmt.Errorf("updating embedding ref: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating embedding ref: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID)
	}
	return nil
}

func (s *SQLiteStore) ClearEmbeddingRefs(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding_ref = NULL`); err != nil {
		return fmt.Errorf("clearing embedding refs: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListItems(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, content, metadata, created_at FROM items ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, content, metadata, created_at FROM items WHERE id = ?`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

func (s *SQLiteStore) ListItemChunks(ctx context.Context, itemID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, content, chunk_index, embedding_ref FROM chunks
		 WHERE item_id = ? ORDER BY chunk_index`, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying item chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var ref sql.NullInt64
		if err := rows.Scan(&c.ID, &c.ItemID, &c.Content, &c.ChunkIndex, &ref); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if ref.Valid {
			c.EmbeddingRef = &ref.Int64
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

const chunkRecordColumns = `c.id, c.item_id, c.content, c.chunk_index, c.embedding_ref, i.type, i.metadata`

func (s *SQLiteStore) GetChunksByIDs(ctx context.Context, ids []string) ([]*ChunkRecord, error) {
	if len(ids) == 0 {
		return []*ChunkRecord{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkRecordColumns+` FROM chunks c JOIN items i ON i.id = c.item_id
		 WHERE c.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*ChunkRecord, len(ids))
	for rows.Next() {
		rec, err := scanChunkRecord(rows)
		if err != nil {
			return nil, err
		}
		byID[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]*ChunkRecord, 0, len(byID))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *SQLiteStore) ListChunks(ctx context.Context) ([]*ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkRecordColumns+` FROM chunks c JOIN items i ON i.id = c.item_id
		 ORDER BY i.created_at, i.rowid, c.chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var records []*ChunkRecord
	for rows.Next() {
		rec, err := scanChunkRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM items),
		(SELECT COUNT(*) FROM chunks),
		(SELECT COUNT(*) FROM chunks WHERE embedding_ref IS NOT NULL)`,
	).Scan(&c.Items, &c.Chunks, &c.EmbeddedChunks)
	if err != nil {
		return Counts{}, fmt.Errorf("counting rows: %w", err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*Item, error) {
	var (
		item      Item
		itemType  string
		metaJSON  string
		createdAt int64
	)
	if err := row.Scan(&item.ID, &itemType, &item.Content, &metaJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning item: %w", err)
	}
	item.Type = ItemType(itemType)
	item.CreatedAt = time.Unix(0, createdAt).UTC()

	meta, err := decodeMetadata(metaJSON)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", item.ID, err)
	}
	item.Metadata = meta
	return &item, nil
}

func scanChunkRecord(row scanner) (*ChunkRecord, error) {
	var (
		rec      ChunkRecord
		ref      sql.NullInt64
		itemType string
		metaJSON string
	)
	if err := row.Scan(&rec.ID, &rec.ItemID, &rec.Content, &rec.ChunkIndex, &ref, &itemType, &metaJSON); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	if ref.Valid {
		rec.EmbeddingRef = &ref.Int64
	}
	rec.ItemType = ItemType(itemType)

	meta, err := decodeMetadata(metaJSON)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", rec.ID, err)
	}
	rec.ItemMetadata = meta
	return &rec, nil
}

func decodeMetadata(raw string) (map[string]any, error) {
	meta := map[string]any{}
	if raw == "" || raw == "null" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return meta, nil
}

func isConstraintError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY")
}
