package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docgen/pkg/types"
)

func setupTestDB(t *testing.T, opts ...Option) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:", opts...)
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

// fakeClock returns strictly increasing timestamps
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func testMeta(path string) *types.DocMetadata {
	return &types.DocMetadata{
		SourcePath:     path,
		Model:          "gpt-4o",
		TokensUsed:     120,
		GenerationTime: 1.5,
		Temperature:    0.7,
		Config:         map[string]any{"max_tokens": 12000},
		Dependencies:   []string{"react", "./utils"},
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage.db)
	assert.Equal(t, DefaultCacheSize, storage.cacheSize)
}

func TestNewSQLiteStorage_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docs.db")

	storage, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	// Reopening skips applied migrations
	storage, err = NewSQLiteStorage(path)
	require.NoError(t, err)
	defer storage.Close()

	stats, err := storage.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, stats.SchemaVersion)
	assert.Equal(t, path, stats.Path)
}

func TestSaveGetRoundTrip(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	meta := testMeta("src/app.ts")

	id, err := storage.Save(ctx, "# App", meta, "document app.ts")
	require.NoError(t, err)

	assert.Len(t, id, types.DocumentIDLength)
	assert.Equal(t, types.HashPrompt("document app.ts"), meta.PromptHash)
	assert.Equal(t, types.DocumentID("src/app.ts", meta.PromptHash), id)
	assert.False(t, meta.CreatedAt.IsZero())

	doc, err := storage.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
	assert.Equal(t, "# App", doc.Content)
	assert.Equal(t, "document app.ts", doc.Prompt)
	assert.Equal(t, "src/app.ts", doc.SourcePath)

	require.NotNil(t, doc.Metadata)
	assert.Equal(t, 120, doc.Metadata.TokensUsed)
	assert.Equal(t, "src/app.ts", doc.Metadata.SourcePath)
	assert.Equal(t, "gpt-4o", doc.Metadata.Model)
	assert.InDelta(t, 1.5, doc.Metadata.GenerationTime, 1e-9)
	assert.InDelta(t, 0.7, doc.Metadata.Temperature, 1e-9)
	assert.Equal(t, meta.PromptHash, doc.Metadata.PromptHash)
	assert.Equal(t, []string{"react", "./utils"}, doc.Metadata.Dependencies)
	assert.EqualValues(t, 12000, doc.Metadata.Config["max_tokens"])
	assert.True(t, meta.CreatedAt.Equal(doc.Metadata.CreatedAt))
}

func TestSave_UpsertIsIdempotent(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	id1, err := storage.Save(ctx, "first", testMeta("a.ts"), "P")
	require.NoError(t, err)
	id2, err := storage.Save(ctx, "second", testMeta("a.ts"), "P")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	docs, err := storage.ListByPath(ctx, "a.ts")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "second", docs[0].Content)

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Prompts)
}

func TestSave_DifferentPromptsSamePath(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	id1, err := storage.Save(ctx, "one", testMeta("a.ts"), "P1")
	require.NoError(t, err)
	id2, err := storage.Save(ctx, "two", testMeta("a.ts"), "P2")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	// Same prompt reused for another file is stored once
	_, err = storage.Save(ctx, "three", testMeta("b.ts"), "P1")
	require.NoError(t, err)

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 2, stats.Prompts)
}

func TestSave_Validation(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	_, err := storage.Save(ctx, "x", nil, "p")
	assert.ErrorIs(t, err, ErrNilMetadata)

	_, err = storage.Save(ctx, "x", &types.DocMetadata{}, "p")
	assert.True(t, types.IsValidationError(err))
}

func TestGet_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, err := storage.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_ReturnsCopies(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	id, err := storage.Save(ctx, "content", testMeta("a.ts"), "p")
	require.NoError(t, err)

	first, err := storage.Get(ctx, id)
	require.NoError(t, err)
	first.Content = "mutated"
	first.Metadata.Dependencies[0] = "mutated"

	second, err := storage.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "content", second.Content)
	assert.Equal(t, "react", second.Metadata.Dependencies[0])
	assert.Equal(t, 1, storage.cache.Len())
}

func TestGet_CacheInvalidatedOnSave(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	id, err := storage.Save(ctx, "v1", testMeta("a.ts"), "p")
	require.NoError(t, err)

	doc, err := storage.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v1", doc.Content)

	_, err = storage.Save(ctx, "v2", testMeta("a.ts"), "p")
	require.NoError(t, err)

	doc, err = storage.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Content)
}

func TestListByPath_NewestFirst(t *testing.T) {
	clock := newFakeClock()
	storage := setupTestDB(t, withClock(clock.Now))
	defer storage.Close()

	ctx := context.Background()
	for _, p := range []string{"p1", "p2", "p3"} {
		_, err := storage.Save(ctx, "content "+p, testMeta("src/x.ts"), p)
		require.NoError(t, err)
	}
	_, err := storage.Save(ctx, "other", testMeta("src/y.ts"), "p1")
	require.NoError(t, err)

	docs, err := storage.ListByPath(ctx, "src/x.ts")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "content p3", docs[0].Content)
	assert.Equal(t, "content p2", docs[1].Content)
	assert.Equal(t, "content p1", docs[2].Content)

	empty, err := storage.ListByPath(ctx, "nothing.ts")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestDelete(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	id, err := storage.Save(ctx, "content", testMeta("a.ts"), "p", WithVector([]float32{0.1, 0.2, 0.3}))
	require.NoError(t, err)

	// Warm the cache
	_, err = storage.Get(ctx, id)
	require.NoError(t, err)

	deleted, err := storage.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = storage.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err = storage.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)

	// Embedding removed by cascade
	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Documents)
	assert.Equal(t, 0, stats.Embeddings)
	assert.Equal(t, 1, stats.Prompts)
}

func TestSave_WithVector(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	vec := []float32{0.5, -1.25, 3}

	id, err := storage.Save(ctx, "content", testMeta("a.ts"), "p", WithVector(vec))
	require.NoError(t, err)

	got, err := storage.Vector(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = storage.Vector(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSave_WithoutVectorClearsStaleEmbedding(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	id, err := storage.Save(ctx, "v1", testMeta("a.ts"), "p", WithVector([]float32{1, 2}))
	require.NoError(t, err)

	again, err := storage.Save(ctx, "v2 different", testMeta("a.ts"), "p")
	require.NoError(t, err)
	require.Equal(t, id, again)

	_, err = storage.Vector(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 0, stats.Embeddings)

	doc, err := storage.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v2 different", doc.Content)
}

func TestClose_Twice(t *testing.T) {
	storage := setupTestDB(t)

	require.NoError(t, storage.Close())
	assert.ErrorIs(t, storage.Close(), ErrStoreClosed)
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	storage := setupTestDB(t)
	require.NoError(t, storage.Close())

	ctx := context.Background()

	_, err := storage.Save(ctx, "x", testMeta("a.ts"), "p")
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = storage.Get(ctx, "id")
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = storage.ListByPath(ctx, "a.ts")
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = storage.Delete(ctx, "id")
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = storage.Stats(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestConcurrentSaves(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := storage.Save(ctx, "content", testMeta("same.ts"), "same prompt")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	docs, err := storage.ListByPath(ctx, "same.ts")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

