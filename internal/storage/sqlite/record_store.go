package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skoglund/chronicle/internal/storage"
	"github.com/skoglund/chronicle/pkg/types"
)

// RecordStore implements storage.RecordStore on SQLite.
type RecordStore struct {
	db *sql.DB
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a record store over an opened chronicle database.
func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Insert stores a new memory record with atomic per-scope deduplication.
// The unique index on (content_hash, server, cluster) makes the
// check-and-insert a single statement: ON CONFLICT DO NOTHING inserts
// exactly one row under concurrent identical inserts, and a zero
// rows-affected result means the content already existed.
func (s *RecordStore) Insert(ctx context.Context, record *types.MemoryRecord) (string, bool, error) {
	if record == nil {
		return "", false, storage.ErrInvalidInput
	}
	if record.Text == "" {
		return "", false, fmt.Errorf("%w: record text is required", storage.ErrInvalidInput)
	}
	if record.Scope.Server == "" {
		return "", false, fmt.Errorf("%w: record scope server is required", storage.ErrInvalidInput)
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ContentHash == "" {
		record.ContentHash = types.HashContent(record.Text)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_records (id, text, embedding, content_hash, server, cluster, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash, server, cluster) DO NOTHING
	`, record.ID, record.Text, serializeEmbedding(record.Embedding),
		record.ContentHash, record.Scope.Server, record.Scope.Cluster, record.CreatedAt)
	if err != nil {
		return "", false, fmt.Errorf("%w: insert record: %v", storage.ErrUnavailable, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("%w: insert record: %v", storage.ErrUnavailable, err)
	}
	if affected > 0 {
		return record.ID, false, nil
	}

	// Duplicate content: return the existing record's ID (cache hit).
	var existingID string
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM memory_records
		WHERE content_hash = ? AND server = ? AND cluster = ?
	`, record.ContentHash, record.Scope.Server, record.Scope.Cluster).Scan(&existingID)
	if err != nil {
		return "", false, fmt.Errorf("%w: lookup duplicate record: %v", storage.ErrUnavailable, err)
	}
	return existingID, true, nil
}

// ListByScope returns records for the scope, newest first.
func (s *RecordStore) ListByScope(ctx context.Context, scope types.Scope, q storage.RecordQuery) ([]types.MemoryRecord, error) {
	if scope.Server == "" {
		return nil, fmt.Errorf("%w: scope server is required", storage.ErrInvalidInput)
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, text, embedding, content_hash, server, cluster, created_at
		FROM memory_records
		WHERE `)
	args := make([]any, 0, 4)

	if q.IncludeCluster && scope.Cluster != "" {
		sb.WriteString(`(server = ? OR cluster = ?)`)
		args = append(args, scope.Server, scope.Cluster)
	} else {
		sb.WriteString(`server = ?`)
		args = append(args, scope.Server)
	}
	if !q.Since.IsZero() {
		sb.WriteString(` AND created_at >= ?`)
		args = append(args, q.Since)
	}
	if q.EmbeddedOnly {
		sb.WriteString(` AND embedding IS NOT NULL`)
	}
	sb.WriteString(` ORDER BY created_at DESC`)
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// SearchKeyword returns records in scope whose text contains any of the
// lowercased terms, newest first. This is the degraded-mode retrieval
// path: it also reaches records stored without an embedding.
func (s *RecordStore) SearchKeyword(ctx context.Context, terms []string, scope types.Scope, limit int) ([]types.MemoryRecord, error) {
	if scope.Server == "" {
		return nil, fmt.Errorf("%w: scope server is required", storage.ErrInvalidInput)
	}
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, text, embedding, content_hash, server, cluster, created_at
		FROM memory_records
		WHERE server = ? AND (`)
	args := []any{scope.Server}

	for i, term := range terms {
		if i > 0 {
			sb.WriteString(` OR `)
		}
		sb.WriteString(`instr(lower(text), ?) > 0`)
		args = append(args, strings.ToLower(term))
	}
	sb.WriteString(`) ORDER BY created_at DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword search: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Stats reports record counts overall and per server.
func (s *RecordStore) Stats(ctx context.Context) (storage.RecordStats, error) {
	stats := storage.RecordStats{PerServer: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(embedding) FROM memory_records
	`).Scan(&stats.TotalRecords, &stats.EmbeddedRecords)
	if err != nil {
		return stats, fmt.Errorf("%w: record stats: %v", storage.ErrUnavailable, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT server, COUNT(*) FROM memory_records GROUP BY server
	`)
	if err != nil {
		return stats, fmt.Errorf("%w: record stats: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var server string
		var count int
		if err := rows.Scan(&server, &count); err != nil {
			return stats, fmt.Errorf("%w: record stats: %v", storage.ErrUnavailable, err)
		}
		stats.PerServer[server] = count
	}
	return stats, rows.Err()
}

// PruneOlderThan deletes records created before cutoff.
func (s *RecordStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_records WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune records: %v", storage.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: prune records: %v", storage.ErrUnavailable, err)
	}
	return int(n), nil
}

// Close is a no-op: the *sql.DB is shared with the profile store and owned
// by the caller that opened it.
func (s *RecordStore) Close() error { return nil }

// scanRecords reads memory record rows into typed values.
func scanRecords(rows *sql.Rows) ([]types.MemoryRecord, error) {
	var records []types.MemoryRecord
	for rows.Next() {
		var (
			rec  types.MemoryRecord
			blob []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &blob, &rec.ContentHash,
			&rec.Scope.Server, &rec.Scope.Cluster, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", storage.ErrUnavailable, err)
		}
		embedding, err := deserializeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize embedding for %s: %w", rec.ID, err)
		}
		rec.Embedding = embedding
		records = append(records, rec)
	}
	return records, rows.Err()
}
