package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates the backing store itself is unreachable.
	// This is the single fatal signal the engine surfaces to callers;
	// everything else degrades to fewer or emptier results.
	ErrUnavailable = errors.New("storage unavailable")
)

// RecordQuery narrows record listings. The zero value lists every record
// for the exact server scope with no time bound.
type RecordQuery struct {
	// IncludeCluster widens the scope filter to sibling servers that share
	// the same non-empty cluster.
	IncludeCluster bool

	// Since restricts results to records created at or after this time.
	// Zero value means no lower bound.
	Since time.Time

	// EmbeddedOnly excludes records stored in degraded mode (no embedding).
	EmbeddedOnly bool

	// Limit caps the number of returned records. Zero means no cap.
	Limit int
}

// RecordStats summarizes the contents of a record store.
type RecordStats struct {
	// TotalRecords is the count across all scopes.
	TotalRecords int

	// EmbeddedRecords is the count of records that carry an embedding.
	EmbeddedRecords int

	// PerServer maps server name to record count.
	PerServer map[string]int
}

// ActivePlayer pairs an entity key with its observed event volume, used
// for per-server activity summaries.
type ActivePlayer struct {
	EntityKey  string
	EventCount int
}

// Relationship kinds derived from death event details.
const (
	// RelationKilledBy means the counterpart killed the queried entity.
	RelationKilledBy = "killed_by"

	// RelationKilled means the queried entity killed the counterpart.
	RelationKilled = "killed"
)

// Relationship is one aggregated player-to-player interaction edge.
type Relationship struct {
	// EntityKey is the counterpart entity.
	EntityKey string

	// Kind is RelationKilledBy or RelationKilled.
	Kind string

	// Count is how many events back the edge.
	Count int
}
