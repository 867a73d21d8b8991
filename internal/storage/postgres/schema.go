package postgres

// Schema is the embedded DDL for the chronicle Postgres backend. All
// statements are idempotent. The embedding is always stored as BYTEA
// (little-endian float64) so the backend works without pgvector; the
// vector column is added by MigrationPgvector when the extension exists.
const Schema = `
CREATE TABLE IF NOT EXISTS memory_records (
    id           TEXT PRIMARY KEY,
    text         TEXT NOT NULL,
    embedding    BYTEA,
    content_hash TEXT NOT NULL,
    server       TEXT NOT NULL,
    cluster      TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL,
    UNIQUE (content_hash, server, cluster)
);

CREATE INDEX IF NOT EXISTS idx_records_server_created
    ON memory_records(server, created_at);

CREATE INDEX IF NOT EXISTS idx_records_cluster_created
    ON memory_records(cluster, created_at);

CREATE TABLE IF NOT EXISTS player_profiles (
    entity_key        TEXT PRIMARY KEY,
    traits            JSONB NOT NULL,
    taming_count      INTEGER NOT NULL DEFAULT 0,
    death_count       INTEGER NOT NULL DEFAULT 0,
    building_count    INTEGER NOT NULL DEFAULT 0,
    pvp_count         INTEGER NOT NULL DEFAULT 0,
    social_count      INTEGER NOT NULL DEFAULT 0,
    exploration_count INTEGER NOT NULL DEFAULT 0,
    favorite_creatures JSONB,
    first_seen        TIMESTAMPTZ NOT NULL,
    last_seen         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS player_events (
    id         TEXT PRIMARY KEY,
    entity_key TEXT NOT NULL,
    event_type TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    server     TEXT NOT NULL,
    cluster    TEXT NOT NULL DEFAULT '',
    timestamp  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_entity
    ON player_events(entity_key, timestamp);

CREATE INDEX IF NOT EXISTS idx_events_server
    ON player_events(server, timestamp);
`

// MigrationPgvector adds the vector column used for in-database cosine
// search. Applied only when CREATE EXTENSION vector succeeded.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'memory_records' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE memory_records ADD COLUMN embedding_vec vector;
    END IF;
END $$;
`
