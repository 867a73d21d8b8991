package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoglund/chronicle/internal/storage"
	"github.com/skoglund/chronicle/pkg/types"
)

func TestProfileUpsertAndGet(t *testing.T) {
	store := NewProfileStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	p := types.NewPlayerProfile("Alice", now)
	p.TamingCount = 3
	p.Traits[types.TraitTamer] = 0.18
	p.FavoriteCreatures["Rex"] = 2
	require.NoError(t, store.UpsertProfile(ctx, p))

	got, err := store.GetProfile(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.EntityKey)
	assert.Equal(t, 3, got.TamingCount)
	assert.InDelta(t, 0.18, got.Traits[types.TraitTamer], 1e-9)
	assert.Equal(t, 2, got.FavoriteCreatures["Rex"])

	// Upsert replaces the row in place.
	p.TamingCount = 4
	p.LastSeen = now.Add(time.Minute)
	require.NoError(t, store.UpsertProfile(ctx, p))

	got, err = store.GetProfile(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, 4, got.TamingCount)
	assert.True(t, got.LastSeen.After(got.FirstSeen))
}

func TestProfileGetNotFound(t *testing.T) {
	store := NewProfileStore(openTestDB(t))

	_, err := store.GetProfile(context.Background(), "Nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetProfile(context.Background(), "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestProfileWithoutCreatures(t *testing.T) {
	store := NewProfileStore(openTestDB(t))
	ctx := context.Background()

	p := types.NewPlayerProfile("Bob", time.Now().UTC())
	require.NoError(t, store.UpsertProfile(ctx, p))

	got, err := store.GetProfile(ctx, "Bob")
	require.NoError(t, err)
	assert.Empty(t, got.FavoriteCreatures)
}

func TestAppendEventValidation(t *testing.T) {
	store := NewProfileStore(openTestDB(t))
	ctx := context.Background()

	err := store.AppendEvent(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.AppendEvent(ctx, &types.Event{EntityKey: "Alice", Type: "flying"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.AppendEvent(ctx, &types.Event{
		EntityKey: "Alice",
		Type:      types.EventTaming,
		Detail:    "Rex (level 150)",
		Scope:     scopeA,
	})
	assert.NoError(t, err)
}

func TestMostActiveOrdering(t *testing.T) {
	store := NewProfileStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	events := []struct {
		entity string
		count  int
	}{
		{"Alice", 3},
		{"Bob", 1},
		{"Carol", 2},
	}
	for _, e := range events {
		for i := 0; i < e.count; i++ {
			require.NoError(t, store.AppendEvent(ctx, &types.Event{
				EntityKey: e.entity,
				Type:      types.EventSocial,
				Scope:     scopeA,
				Timestamp: now,
			}))
		}
	}
	// Activity on another server must not leak into the summary.
	require.NoError(t, store.AppendEvent(ctx, &types.Event{
		EntityKey: "Mallory", Type: types.EventPvP, Scope: scopeB, Timestamp: now,
	}))

	players, err := store.MostActive(ctx, scopeA, 2)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, storage.ActivePlayer{EntityKey: "Alice", EventCount: 3}, players[0])
	assert.Equal(t, storage.ActivePlayer{EntityKey: "Carol", EventCount: 2}, players[1])
}

func TestRelationships(t *testing.T) {
	store := NewProfileStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	events := []types.Event{
		{EntityKey: "Alice", Type: types.EventDeath, Detail: "Bob", Scope: scopeA, Timestamp: now},
		{EntityKey: "Alice", Type: types.EventDeath, Detail: "Bob", Scope: scopeA, Timestamp: now},
		{EntityKey: "Bob", Type: types.EventDeath, Detail: "Alice", Scope: scopeA, Timestamp: now},
		// Killed by a wild creature: no counterpart entity exists.
		{EntityKey: "Alice", Type: types.EventDeath, Detail: "Raptor", Scope: scopeA, Timestamp: now},
		// Non-death events never create edges.
		{EntityKey: "Alice", Type: types.EventTaming, Detail: "Rex (level 150)", Scope: scopeA, Timestamp: now},
	}
	for i := range events {
		require.NoError(t, store.AppendEvent(ctx, &events[i]))
	}

	rels, err := store.Relationships(ctx, "Alice", 10)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, storage.Relationship{EntityKey: "Bob", Kind: storage.RelationKilledBy, Count: 2}, rels[0])
	assert.Equal(t, storage.Relationship{EntityKey: "Bob", Kind: storage.RelationKilled, Count: 1}, rels[1])

	rels, err = store.Relationships(ctx, "Carol", 10)
	require.NoError(t, err)
	assert.Empty(t, rels, "unobserved entities have no edges")

	_, err = store.Relationships(ctx, "", 10)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestPruneEventsKeepsProfiles(t *testing.T) {
	store := NewProfileStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	p := types.NewPlayerProfile("Alice", now)
	p.TamingCount = 5
	require.NoError(t, store.UpsertProfile(ctx, p))

	require.NoError(t, store.AppendEvent(ctx, &types.Event{
		EntityKey: "Alice", Type: types.EventTaming, Scope: scopeA, Timestamp: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, store.AppendEvent(ctx, &types.Event{
		EntityKey: "Alice", Type: types.EventTaming, Scope: scopeA, Timestamp: now,
	}))

	removed, err := store.PruneEvents(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	players, err := store.MostActive(ctx, scopeA, 10)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, 1, players[0].EventCount)

	got, err := store.GetProfile(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, 5, got.TamingCount, "pruned events never change counters")
}
