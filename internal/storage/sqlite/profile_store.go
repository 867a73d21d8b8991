package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skoglund/chronicle/internal/storage"
	"github.com/skoglund/chronicle/pkg/types"
)

// ProfileStore implements storage.ProfileStore on SQLite.
type ProfileStore struct {
	db *sql.DB
}

var _ storage.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore creates a profile store over an opened chronicle database.
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// GetProfile returns the stored profile for the entity, or
// storage.ErrNotFound when the entity has never been observed.
func (s *ProfileStore) GetProfile(ctx context.Context, entityKey string) (*types.PlayerProfile, error) {
	if entityKey == "" {
		return nil, fmt.Errorf("%w: entity key is required", storage.ErrInvalidInput)
	}

	var (
		p             types.PlayerProfile
		traitsJSON    string
		creaturesJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT entity_key, traits, taming_count, death_count, building_count,
		       pvp_count, social_count, exploration_count, favorite_creatures,
		       first_seen, last_seen
		FROM player_profiles
		WHERE entity_key = ?
	`, entityKey).Scan(&p.EntityKey, &traitsJSON, &p.TamingCount, &p.DeathCount,
		&p.BuildingCount, &p.PvPCount, &p.SocialCount, &p.ExplorationCount,
		&creaturesJSON, &p.FirstSeen, &p.LastSeen)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get profile: %v", storage.ErrUnavailable, err)
	}

	if err := json.Unmarshal([]byte(traitsJSON), &p.Traits); err != nil {
		return nil, fmt.Errorf("failed to unmarshal traits for %s: %w", entityKey, err)
	}
	if creaturesJSON.Valid && creaturesJSON.String != "" {
		if err := json.Unmarshal([]byte(creaturesJSON.String), &p.FavoriteCreatures); err != nil {
			return nil, fmt.Errorf("failed to unmarshal favorite creatures for %s: %w", entityKey, err)
		}
	}
	return &p, nil
}

// UpsertProfile creates or replaces the profile row for profile.EntityKey.
// The Profile Tracker serializes writes per entity, so last-write-wins
// upsert semantics are safe here.
func (s *ProfileStore) UpsertProfile(ctx context.Context, profile *types.PlayerProfile) error {
	if profile == nil || profile.EntityKey == "" {
		return fmt.Errorf("%w: profile with entity key is required", storage.ErrInvalidInput)
	}

	traitsJSON, err := json.Marshal(profile.Traits)
	if err != nil {
		return fmt.Errorf("failed to marshal traits: %w", err)
	}
	var creaturesJSON []byte
	if len(profile.FavoriteCreatures) > 0 {
		creaturesJSON, err = json.Marshal(profile.FavoriteCreatures)
		if err != nil {
			return fmt.Errorf("failed to marshal favorite creatures: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO player_profiles (
			entity_key, traits, taming_count, death_count, building_count,
			pvp_count, social_count, exploration_count, favorite_creatures,
			first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_key) DO UPDATE SET
			traits = excluded.traits,
			taming_count = excluded.taming_count,
			death_count = excluded.death_count,
			building_count = excluded.building_count,
			pvp_count = excluded.pvp_count,
			social_count = excluded.social_count,
			exploration_count = excluded.exploration_count,
			favorite_creatures = excluded.favorite_creatures,
			last_seen = excluded.last_seen
	`, profile.EntityKey, string(traitsJSON), profile.TamingCount, profile.DeathCount,
		profile.BuildingCount, profile.PvPCount, profile.SocialCount,
		profile.ExplorationCount, nullableString(creaturesJSON),
		profile.FirstSeen, profile.LastSeen)
	if err != nil {
		return fmt.Errorf("%w: upsert profile: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// AppendEvent records one classified event row.
func (s *ProfileStore) AppendEvent(ctx context.Context, event *types.Event) error {
	if event == nil || event.EntityKey == "" {
		return fmt.Errorf("%w: event with entity key is required", storage.ErrInvalidInput)
	}
	if !event.Type.Valid() {
		return fmt.Errorf("%w: unknown event type %q", storage.ErrInvalidInput, event.Type)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO player_events (id, entity_key, event_type, detail, server, cluster, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), event.EntityKey, string(event.Type), event.Detail,
		event.Scope.Server, event.Scope.Cluster, ts)
	if err != nil {
		return fmt.Errorf("%w: append event: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// MostActive returns the busiest entities on the given server.
func (s *ProfileStore) MostActive(ctx context.Context, scope types.Scope, limit int) ([]storage.ActivePlayer, error) {
	if scope.Server == "" {
		return nil, fmt.Errorf("%w: scope server is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_key, COUNT(*) AS event_count
		FROM player_events
		WHERE server = ?
		GROUP BY entity_key
		ORDER BY event_count DESC, entity_key ASC
		LIMIT ?
	`, scope.Server, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: most active: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var players []storage.ActivePlayer
	for rows.Next() {
		var p storage.ActivePlayer
		if err := rows.Scan(&p.EntityKey, &p.EventCount); err != nil {
			return nil, fmt.Errorf("%w: most active: %v", storage.ErrUnavailable, err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// Relationships aggregates kill interactions for the entity from death
// event details. A death event's detail holds the killer's name, so the
// entity's own death rows yield killed_by edges and rows naming the entity
// as killer yield killed edges. Counterparts must themselves appear as
// event entities, which keeps wild creature kills out.
func (s *ProfileStore) Relationships(ctx context.Context, entityKey string, limit int) ([]storage.Relationship, error) {
	if entityKey == "" {
		return nil, fmt.Errorf("%w: entity key is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT other, kind, cnt FROM (
			SELECT detail AS other, 'killed_by' AS kind, COUNT(*) AS cnt
			FROM player_events
			WHERE entity_key = ? AND event_type = 'death' AND detail <> ''
			  AND detail IN (SELECT DISTINCT entity_key FROM player_events)
			GROUP BY detail
			UNION ALL
			SELECT entity_key, 'killed', COUNT(*)
			FROM player_events
			WHERE event_type = 'death' AND detail = ? AND entity_key <> ?
			GROUP BY entity_key
		) AS rel
		ORDER BY cnt DESC, other ASC, kind ASC
		LIMIT ?
	`, entityKey, entityKey, entityKey, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: relationships: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var rels []storage.Relationship
	for rows.Next() {
		var r storage.Relationship
		if err := rows.Scan(&r.EntityKey, &r.Kind, &r.Count); err != nil {
			return nil, fmt.Errorf("%w: relationships: %v", storage.ErrUnavailable, err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// PruneEvents deletes event rows older than cutoff. Profile counters are
// aggregates and are not recomputed from events, so pruning is safe.
func (s *ProfileStore) PruneEvents(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM player_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune events: %v", storage.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: prune events: %v", storage.ErrUnavailable, err)
	}
	return int(n), nil
}

// Close is a no-op: the *sql.DB is owned by the caller that opened it.
func (s *ProfileStore) Close() error { return nil }

// nullableString converts an optional JSON payload to a driver value,
// storing NULL instead of an empty string.
func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
