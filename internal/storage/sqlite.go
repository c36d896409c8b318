package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/dshills/docgen/pkg/types"
)

// DefaultCacheSize is the number of documents kept in the read cache
const DefaultCacheSize = 256

// SQLiteStorage implements the Storage interface using SQLite.
// All access is serialized behind a single mutex.
type SQLiteStorage struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool

	cache     *lru.Cache[string, *types.Document]
	cacheSize int
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a SQLiteStorage
type Option func(*SQLiteStorage)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *SQLiteStorage) {
		s.logger = logger
	}
}

// WithCacheSize sets the read cache capacity. Zero or negative uses the default.
func WithCacheSize(n int) Option {
	return func(s *SQLiteStorage) {
		s.cacheSize = n
	}
}

// withClock overrides the timestamp source
func withClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) {
		s.now = now
	}
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-20000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath and
// applies pending migrations. Use ":memory:" for an ephemeral store.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	s := &SQLiteStorage{
		path:   dbPath,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("storage")

	if s.cacheSize <= 0 {
		s.cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *types.Document](s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	s.cache = cache

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	s.db = db

	s.logger.Debug("store opened",
		zap.String("path", dbPath),
		zap.String("driver", DriverName),
		zap.String("build_mode", BuildMode))
	return s, nil
}

// Save upserts a document. See Storage.Save.
func (s *SQLiteStorage) Save(ctx context.Context, content string, meta *types.DocMetadata, prompt string, opts ...SaveOption) (string, error) {
	if meta == nil {
		return "", ErrNilMetadata
	}
	if meta.SourcePath == "" {
		return "", &types.ValidationError{Field: "source_path", Err: types.ErrEmptySourcePath}
	}

	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	promptHash := types.HashPrompt(prompt)
	meta.PromptHash = promptHash
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	id := types.DocumentID(meta.SourcePath, promptHash)

	configJSON, err := marshalJSON(meta.Config, "{}")
	if err != nil {
		return "", fmt.Errorf("marshal llm config: %w", err)
	}
	depsJSON, err := marshalJSON(meta.Dependencies, "[]")
	if err != nil {
		return "", fmt.Errorf("marshal dependencies: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prompts (hash, prompt, last_used)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET last_used = excluded.last_used
	`, promptHash, prompt, s.now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to upsert prompt: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (
			id, file_path, content, model, tokens_used, generation_time,
			created_at, temperature, prompt_hash, llm_config, dependencies
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_path = excluded.file_path,
			content = excluded.content,
			model = excluded.model,
			tokens_used = excluded.tokens_used,
			generation_time = excluded.generation_time,
			created_at = excluded.created_at,
			temperature = excluded.temperature,
			prompt_hash = excluded.prompt_hash,
			llm_config = excluded.llm_config,
			dependencies = excluded.dependencies
	`, id, meta.SourcePath, content, meta.Model, meta.TokensUsed, meta.GenerationTime,
		meta.CreatedAt.UnixNano(), meta.Temperature, promptHash, configJSON, depsJSON)
	if err != nil {
		return "", fmt.Errorf("failed to upsert document: %w", err)
	}

	if o.vector != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (doc_id, vector, dimension)
			VALUES (?, ?, ?)
			ON CONFLICT(doc_id) DO UPDATE SET
				vector = excluded.vector,
				dimension = excluded.dimension
		`, id, serializeVector(o.vector), len(o.vector))
		if err != nil {
			return "", fmt.Errorf("failed to upsert embedding: %w", err)
		}
	} else {
		// A vector of the previous content must not outlive it
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE doc_id = ?", id); err != nil {
			return "", fmt.Errorf("failed to clear embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	s.cache.Remove(id)
	s.logger.Debug("document saved",
		zap.String("id", id),
		zap.String("path", meta.SourcePath))
	return id, nil
}

const selectDocument = `
	SELECT d.id, d.file_path, d.content, d.model, d.tokens_used, d.generation_time,
	       d.created_at, d.temperature, d.prompt_hash, d.llm_config, d.dependencies,
	       COALESCE(p.prompt, '')
	FROM documents d
	LEFT JOIN prompts p ON p.hash = d.prompt_hash
`

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var (
		doc        types.Document
		meta       types.DocMetadata
		model      sql.NullString
		createdAt  int64
		configJSON sql.NullString
		depsJSON   sql.NullString
	)
	err := row.Scan(&doc.ID, &doc.SourcePath, &doc.Content, &model, &meta.TokensUsed,
		&meta.GenerationTime, &createdAt, &meta.Temperature, &meta.PromptHash,
		&configJSON, &depsJSON, &doc.Prompt)
	if err != nil {
		return nil, err
	}

	meta.SourcePath = doc.SourcePath
	meta.Model = model.String
	meta.CreatedAt = time.Unix(0, createdAt)

	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &meta.Config); err != nil {
			return nil, fmt.Errorf("decode llm config for %s: %w", doc.ID, err)
		}
	}
	if depsJSON.Valid && depsJSON.String != "" {
		if err := json.Unmarshal([]byte(depsJSON.String), &meta.Dependencies); err != nil {
			return nil, fmt.Errorf("decode dependencies for %s: %w", doc.ID, err)
		}
	}

	doc.Metadata = &meta
	return &doc, nil
}

// Get returns the document with id
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	if doc, ok := s.cache.Get(id); ok {
		return doc.Clone(), nil
	}

	doc, err := scanDocument(s.db.QueryRowContext(ctx, selectDocument+" WHERE d.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	s.cache.Add(id, doc.Clone())
	return doc, nil
}

// ListByPath returns all documents for sourcePath, newest first
func (s *SQLiteStorage) ListByPath(ctx context.Context, sourcePath string) ([]*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		selectDocument+" WHERE d.file_path = ? ORDER BY d.created_at DESC, d.id", sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	docs := make([]*types.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document; its embedding goes with it
func (s *SQLiteStorage) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	s.cache.Remove(id)

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Vector returns the stored embedding for a document, or ErrNotFound
func (s *SQLiteStorage) Vector(ctx context.Context, id string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT vector FROM embeddings WHERE doc_id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return deserializeVector(blob), nil
}

// Stats returns row counts and schema information
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	stats := &Stats{BuildMode: BuildMode, Path: s.path}
	counts := []struct {
		table string
		dest  *int
	}{
		{"documents", &stats.Documents},
		{"prompts", &stats.Prompts},
		{"embeddings", &stats.Embeddings},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version.String()
	return stats, nil
}

// Close compacts the database and releases the connection.
// Calling Close more than once returns ErrStoreClosed.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.closed = true
	s.cache.Purge()

	if _, err := s.db.Exec("VACUUM"); err != nil {
		s.logger.Warn("vacuum failed", zap.Error(err))
	}
	return s.db.Close()
}

func marshalJSON(v any, empty string) (string, error) {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return empty, nil
		}
	case []string:
		if t == nil {
			return empty, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
