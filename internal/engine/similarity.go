package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/skoglund/chronicle/internal/llm"
	"github.com/skoglund/chronicle/internal/storage"
	"github.com/skoglund/chronicle/pkg/types"
)

// VectorSearcher is the optional in-database nearest-neighbor upgrade. A
// record store that implements it (the Postgres backend with pgvector)
// handles candidate ranking itself; otherwise the similarity store runs
// the portable in-process cosine computation.
type VectorSearcher interface {
	NearestByVector(ctx context.Context, embedding []float64, scope types.Scope, limit int) ([]types.ScoredRecord, error)
}

// SimilarityStore owns MemoryRecord storage and embeddings. Inserts are
// idempotent per (content hash, scope); a missing embedding backend
// degrades inserts to embedding-less records and queries to empty results,
// never to a hard failure.
type SimilarityStore struct {
	records  storage.RecordStore
	embedder llm.Embedder
	logger   *log.Logger
	now      func() time.Time
}

// NewSimilarityStore creates a similarity store over the given record
// store and embedder.
func NewSimilarityStore(records storage.RecordStore, embedder llm.Embedder) *SimilarityStore {
	return &SimilarityStore{
		records:  records,
		embedder: embedder,
		logger:   log.New(log.Writer(), "[similarity] ", log.LstdFlags),
		now:      time.Now,
	}
}

// Insert stores text under the scope as of the current time. Re-inserting
// content already present in the scope is a cache hit: the existing
// record's ID is returned with duplicate=true and nothing is written. When
// the embedder is unavailable the record is stored in degraded mode
// without an embedding.
func (s *SimilarityStore) Insert(ctx context.Context, text string, scope types.Scope) (string, bool, error) {
	return s.InsertAt(ctx, text, scope, time.Time{})
}

// InsertAt is Insert with an explicit observation time used as the
// record's CreatedAt. A zero at stamps the current time.
func (s *SimilarityStore) InsertAt(ctx context.Context, text string, scope types.Scope, at time.Time) (string, bool, error) {
	if text == "" {
		return "", false, fmt.Errorf("%w: text is required", storage.ErrInvalidInput)
	}
	if scope.Server == "" {
		return "", false, fmt.Errorf("%w: scope server is required", storage.ErrInvalidInput)
	}

	createdAt := at.UTC()
	if at.IsZero() {
		createdAt = s.now().UTC()
	}

	record := &types.MemoryRecord{
		Text:        text,
		ContentHash: types.HashContent(text),
		Scope:       scope,
		CreatedAt:   createdAt,
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Printf("embedding unavailable, storing record in degraded mode: %v", err)
	} else {
		record.Embedding = embedding
	}

	return s.records.Insert(ctx, record)
}

// Query returns up to topK records in scope with cosine similarity to text
// at or above minSimilarity, highest first, ties broken by most recent
// CreatedAt. An unavailable embedder yields an empty result and nil error
// so downstream assembly continues.
func (s *SimilarityStore) Query(ctx context.Context, text string, scope types.Scope, topK int, minSimilarity float64) ([]types.ScoredRecord, error) {
	if text == "" || scope.Server == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	queryEmbedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Printf("embedding unavailable, similarity query degraded to empty: %v", err)
		return nil, nil
	}

	scored, err := s.rankCandidates(ctx, queryEmbedding, scope, topK, minSimilarity)
	if err != nil {
		return nil, err
	}
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// rankCandidates ranks scope candidates against the query embedding,
// preferring the store's in-database path when it offers one.
func (s *SimilarityStore) rankCandidates(ctx context.Context, queryEmbedding []float64, scope types.Scope, topK int, minSimilarity float64) ([]types.ScoredRecord, error) {
	if searcher, ok := s.records.(VectorSearcher); ok {
		scored, err := searcher.NearestByVector(ctx, queryEmbedding, scope, topK)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		filtered := scored[:0]
		for _, sr := range scored {
			if sr.Score >= minSimilarity {
				filtered = append(filtered, sr)
			}
		}
		return filtered, nil
	}

	candidates, err := s.records.ListByScope(ctx, scope, storage.RecordQuery{EmbeddedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	var scored []types.ScoredRecord
	for _, rec := range candidates {
		score := cosineSimilarity(queryEmbedding, rec.Embedding)
		if score < minSimilarity {
			continue
		}
		scored = append(scored, types.ScoredRecord{Record: rec, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Record.CreatedAt.After(scored[j].Record.CreatedAt)
	})
	return scored, nil
}

// KeywordFallback retrieves records by salient-token matching. Used when
// the similarity pass comes back empty, which covers both a down embedder
// and degraded-mode records that carry no embedding.
func (s *SimilarityStore) KeywordFallback(ctx context.Context, text string, scope types.Scope, limit int) ([]types.MemoryRecord, error) {
	terms := salientTokens(text)
	if len(terms) == 0 {
		return nil, nil
	}
	return s.records.SearchKeyword(ctx, terms, scope, limit)
}

// Stats reports record counts from the backing store.
func (s *SimilarityStore) Stats(ctx context.Context) (storage.RecordStats, error) {
	return s.records.Stats(ctx)
}

// PruneOlderThan removes records created before cutoff and returns the
// number removed.
func (s *SimilarityStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := s.records.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Printf("pruned %d memory records older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-magnitude vectors score 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
