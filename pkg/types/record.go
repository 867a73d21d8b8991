// Package types defines the shared data model for the chronicle context
// memory engine: memory records, player profiles, events, and conversation
// threads.
package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Scope identifies the source partition a record or event belongs to.
// Every store and query is scoped; data from one server never leaks into
// queries for another.
type Scope struct {
	// Server is the individual game server name (e.g. "TheIsland-PvE").
	Server string `json:"server"`

	// Cluster is the cluster the server belongs to, if any. Records from
	// sibling servers in the same cluster are considered related but score
	// lower than exact server matches.
	Cluster string `json:"cluster,omitempty"`
}

// Key returns the canonical uniqueness key for the scope. Content hashes
// are deduplicated per scope key, not globally.
func (s Scope) Key() string {
	return s.Server + "\x1f" + s.Cluster
}

// SameServer reports whether other refers to the exact same server.
func (s Scope) SameServer(other Scope) bool {
	return s.Server == other.Server
}

// SameCluster reports whether other belongs to the same non-empty cluster.
func (s Scope) SameCluster(other Scope) bool {
	return s.Cluster != "" && s.Cluster == other.Cluster
}

// MemoryRecord is a single stored memory: a piece of text tied to a scope,
// with an optional vector embedding for similarity search.
//
// Records are append-only. A record whose content hash already exists within
// the same scope is never duplicated; the insert is treated as a cache hit.
type MemoryRecord struct {
	// ID is the unique record identifier (UUID).
	ID string `json:"id"`

	// Text is the raw stored content.
	Text string `json:"text"`

	// Embedding is the fixed-length vector for the text. Nil when the
	// record was stored in degraded mode (embedding backend unavailable);
	// such records are excluded from cosine search but remain reachable
	// through keyword fallback matching.
	Embedding []float64 `json:"embedding,omitempty"`

	// ContentHash is the hex SHA-256 of Text, unique per scope.
	ContentHash string `json:"content_hash"`

	// Scope is the server/cluster partition this record belongs to.
	Scope Scope `json:"scope"`

	// CreatedAt is when the record was first inserted. Recency ordering
	// always uses this field, never storage iteration order.
	CreatedAt time.Time `json:"created_at"`
}

// HasEmbedding reports whether the record participates in similarity search.
func (r *MemoryRecord) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// HashContent returns the canonical content hash for the given text.
func HashContent(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}

// ScoredRecord pairs a memory record with its similarity score for a query.
type ScoredRecord struct {
	Record MemoryRecord `json:"record"`

	// Score is the cosine similarity against the query embedding, in [0,1]
	// for typical text embeddings.
	Score float64 `json:"score"`
}
