package sqlite

// Schema is the embedded DDL for the chronicle SQLite backend. All
// statements are idempotent so Open can run them on every start.
//
// memory_records is append-only and deduplicated per scope: the unique
// index on (content_hash, server, cluster) backs the atomic
// check-and-insert in RecordStore.Insert.
//
// player_events is aggregate bookkeeping only; rows may be pruned
// independently of player_profiles without affecting profile counters.
const Schema = `
CREATE TABLE IF NOT EXISTS memory_records (
    id           TEXT PRIMARY KEY,
    text         TEXT NOT NULL,
    embedding    BLOB,
    content_hash TEXT NOT NULL,
    server       TEXT NOT NULL,
    cluster      TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_records_hash_scope
    ON memory_records(content_hash, server, cluster);

CREATE INDEX IF NOT EXISTS idx_records_server_created
    ON memory_records(server, created_at);

CREATE INDEX IF NOT EXISTS idx_records_cluster_created
    ON memory_records(cluster, created_at);

CREATE TABLE IF NOT EXISTS player_profiles (
    entity_key        TEXT PRIMARY KEY,
    traits            TEXT NOT NULL,
    taming_count      INTEGER NOT NULL DEFAULT 0,
    death_count       INTEGER NOT NULL DEFAULT 0,
    building_count    INTEGER NOT NULL DEFAULT 0,
    pvp_count         INTEGER NOT NULL DEFAULT 0,
    social_count      INTEGER NOT NULL DEFAULT 0,
    exploration_count INTEGER NOT NULL DEFAULT 0,
    favorite_creatures TEXT,
    first_seen        TIMESTAMP NOT NULL,
    last_seen         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS player_events (
    id         TEXT PRIMARY KEY,
    entity_key TEXT NOT NULL,
    event_type TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    server     TEXT NOT NULL,
    cluster    TEXT NOT NULL DEFAULT '',
    timestamp  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_entity
    ON player_events(entity_key, timestamp);

CREATE INDEX IF NOT EXISTS idx_events_server
    ON player_events(server, timestamp);
`
