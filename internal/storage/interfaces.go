// Package storage provides composable storage interfaces for the chronicle
// engine.
//
// The storage layer is split into small, focused interfaces that can be
// implemented independently per backend. The SQLite backend is the default;
// a Postgres backend with a pgvector embedding column is provided for
// deployments that already run Postgres.
package storage

import (
	"context"
	"time"

	"github.com/skoglund/chronicle/pkg/types"
)

// RecordStore owns MemoryRecord persistence. Records are append-only and
// deduplicated per (content_hash, scope).
type RecordStore interface {
	// Insert stores a new record. The check-and-insert on
	// (content_hash, scope) is atomic: under concurrent inserts of the
	// same content exactly one record is created. When the content already
	// exists in the scope, Insert returns the existing record's ID with
	// duplicate=true and stores nothing.
	Insert(ctx context.Context, record *types.MemoryRecord) (id string, duplicate bool, err error)

	// ListByScope returns records for the given scope, filtered by the
	// query options, ordered by created_at descending.
	ListByScope(ctx context.Context, scope types.Scope, q RecordQuery) ([]types.MemoryRecord, error)

	// SearchKeyword returns records in scope whose text contains any of
	// the given terms, most recent first. Used as the fallback retrieval
	// path when similarity search is degraded.
	SearchKeyword(ctx context.Context, terms []string, scope types.Scope, limit int) ([]types.MemoryRecord, error)

	// Stats reports record counts for observability.
	Stats(ctx context.Context) (RecordStats, error)

	// PruneOlderThan deletes records created before cutoff and returns the
	// number removed.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// ProfileStore owns PlayerProfile persistence and the prunable aggregate
// event log. The Profile Tracker is its only writer.
type ProfileStore interface {
	// GetProfile returns the profile for the entity, or ErrNotFound.
	GetProfile(ctx context.Context, entityKey string) (*types.PlayerProfile, error)

	// UpsertProfile creates or replaces the profile row for
	// profile.EntityKey.
	UpsertProfile(ctx context.Context, profile *types.PlayerProfile) error

	// AppendEvent records a classified event row. Event rows are aggregate
	// bookkeeping only: pruning them never affects profile counters.
	AppendEvent(ctx context.Context, event *types.Event) error

	// MostActive returns the entities with the most recorded events on the
	// given server, busiest first.
	MostActive(ctx context.Context, scope types.Scope, limit int) ([]ActivePlayer, error)

	// Relationships aggregates player-to-player kill interactions for the
	// entity from recorded death event details: who killed the entity and
	// whom the entity killed, most frequent edges first. Counterparts are
	// limited to observed entities, so wild creature kills are excluded.
	Relationships(ctx context.Context, entityKey string, limit int) ([]Relationship, error)

	// PruneEvents deletes event rows older than cutoff and returns the
	// number removed. Profiles are untouched.
	PruneEvents(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
