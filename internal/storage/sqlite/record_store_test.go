package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoglund/chronicle/internal/storage"
	"github.com/skoglund/chronicle/pkg/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var (
	scopeA = types.Scope{Server: "ServerA", Cluster: "main"}
	scopeB = types.Scope{Server: "ServerB", Cluster: "main"}
)

func TestRecordInsertAndDuplicate(t *testing.T) {
	store := NewRecordStore(openTestDB(t))
	ctx := context.Background()

	rec := &types.MemoryRecord{
		Text:      "Server restarted",
		Embedding: []float64{0.1, 0.2, 0.3},
		Scope:     scopeA,
	}
	id1, dup, err := store.Insert(ctx, rec)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.NotEmpty(t, id1)
	assert.NotEmpty(t, rec.ContentHash, "hash is filled in when missing")

	id2, dup, err := store.Insert(ctx, &types.MemoryRecord{Text: "Server restarted", Scope: scopeA})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, id1, id2)

	// Same content in a different scope is a new record.
	_, dup, err = store.Insert(ctx, &types.MemoryRecord{Text: "Server restarted", Scope: scopeB})
	require.NoError(t, err)
	assert.False(t, dup)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 1, stats.EmbeddedRecords)
	assert.Equal(t, 1, stats.PerServer["ServerA"])
}

func TestRecordInsertValidation(t *testing.T) {
	store := NewRecordStore(openTestDB(t))
	ctx := context.Background()

	_, _, err := store.Insert(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, _, err = store.Insert(ctx, &types.MemoryRecord{Scope: scopeA})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, _, err = store.Insert(ctx, &types.MemoryRecord{Text: "hello"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestRecordInsertConcurrentDedup(t *testing.T) {
	store := NewRecordStore(openTestDB(t))
	ctx := context.Background()

	const workers = 10
	var (
		wg   sync.WaitGroup
		dups sync.Map
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, dup, err := store.Insert(ctx, &types.MemoryRecord{Text: "raced content", Scope: scopeA})
			if err == nil {
				dups.Store(i, dup)
			}
		}(i)
	}
	wg.Wait()

	fresh := 0
	dups.Range(func(_, v any) bool {
		if !v.(bool) {
			fresh++
		}
		return true
	})
	assert.Equal(t, 1, fresh, "exactly one concurrent insert creates the record")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRecords)
}

func TestListByScopeFilters(t *testing.T) {
	store := NewRecordStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	inserts := []types.MemoryRecord{
		{Text: "old embedded", Embedding: []float64{1}, Scope: scopeA, CreatedAt: now.Add(-2 * time.Hour)},
		{Text: "new degraded", Scope: scopeA, CreatedAt: now.Add(-time.Minute)},
		{Text: "sibling server", Embedding: []float64{1}, Scope: scopeB, CreatedAt: now.Add(-time.Minute)},
		{Text: "other cluster", Scope: types.Scope{Server: "ServerX", Cluster: "other"}, CreatedAt: now},
	}
	for i := range inserts {
		_, _, err := store.Insert(ctx, &inserts[i])
		require.NoError(t, err)
	}

	records, err := store.ListByScope(ctx, scopeA, storage.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "new degraded", records[0].Text, "newest first")

	records, err = store.ListByScope(ctx, scopeA, storage.RecordQuery{IncludeCluster: true})
	require.NoError(t, err)
	assert.Len(t, records, 3, "cluster widening pulls in the sibling server")

	records, err = store.ListByScope(ctx, scopeA, storage.RecordQuery{Since: now.Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new degraded", records[0].Text)

	records, err = store.ListByScope(ctx, scopeA, storage.RecordQuery{EmbeddedOnly: true})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "old embedded", records[0].Text)

	records, err = store.ListByScope(ctx, scopeA, storage.RecordQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSearchKeyword(t *testing.T) {
	store := NewRecordStore(openTestDB(t))
	ctx := context.Background()

	texts := []string{"Alice tamed a Rex", "Bob placed a Foundation", "weather changed"}
	for _, text := range texts {
		_, _, err := store.Insert(ctx, &types.MemoryRecord{Text: text, Scope: scopeA})
		require.NoError(t, err)
	}

	records, err := store.SearchKeyword(ctx, []string{"rex", "foundation"}, scopeA, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = store.SearchKeyword(ctx, []string{"TAMED"}, scopeA, 10)
	require.NoError(t, err)
	require.Len(t, records, 1, "matching is case-insensitive")
	assert.Equal(t, "Alice tamed a Rex", records[0].Text)

	records, err = store.SearchKeyword(ctx, nil, scopeA, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordEmbeddingRoundTrip(t *testing.T) {
	store := NewRecordStore(openTestDB(t))
	ctx := context.Background()

	embedding := []float64{0.25, -1.5, 3.14159, 0}
	_, _, err := store.Insert(ctx, &types.MemoryRecord{Text: "embedded", Embedding: embedding, Scope: scopeA})
	require.NoError(t, err)

	records, err := store.ListByScope(ctx, scopeA, storage.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, embedding, records[0].Embedding)
}

func TestRecordPruneOlderThan(t *testing.T) {
	store := NewRecordStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := store.Insert(ctx, &types.MemoryRecord{Text: "ancient", Scope: scopeA, CreatedAt: now.Add(-72 * time.Hour)})
	require.NoError(t, err)
	_, _, err = store.Insert(ctx, &types.MemoryRecord{Text: "fresh", Scope: scopeA, CreatedAt: now})
	require.NoError(t, err)

	removed, err := store.PruneOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	records, err := store.ListByScope(ctx, scopeA, storage.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].Text)
}
