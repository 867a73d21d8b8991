package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/skoglund/chronicle/internal/storage"
	"github.com/skoglund/chronicle/pkg/types"
)

// Window helpers for the thread candidate time filter.
func WindowHours(n int) time.Duration { return time.Duration(n) * time.Hour }
func WindowDays(n int) time.Duration  { return time.Duration(n) * 24 * time.Hour }
func WindowWeeks(n int) time.Duration { return time.Duration(n) * 7 * 24 * time.Hour }

// ThreadWeights are the relative weights of the three thread sub-scores.
// They should sum to 1.
type ThreadWeights struct {
	Temporal float64 `yaml:"temporal"`
	Overlap  float64 `yaml:"overlap"`
	Scope    float64 `yaml:"scope"`
}

// DefaultThreadWeights favor recency over overlap and scope equally.
var DefaultThreadWeights = ThreadWeights{Temporal: 0.4, Overlap: 0.3, Scope: 0.3}

// ThreadConfig holds thread builder tuning; zero fields get defaults.
type ThreadConfig struct {
	// Weights for the weighted-sum record score.
	Weights ThreadWeights

	// HalfLife is the age at which the temporal score halves.
	// Default: 6 hours.
	HalfLife time.Duration
}

// ThreadBuilder builds transient conversation threads: scored subsets of
// recent records re-ordered chronologically. It holds no persistent state.
type ThreadBuilder struct {
	records storage.RecordStore
	cfg     ThreadConfig
	now     func() time.Time
}

// NewThreadBuilder creates a thread builder over the given record store.
func NewThreadBuilder(records storage.RecordStore, cfg ThreadConfig) *ThreadBuilder {
	if cfg.Weights == (ThreadWeights{}) {
		cfg.Weights = DefaultThreadWeights
	}
	if cfg.HalfLife == 0 {
		cfg.HalfLife = 6 * time.Hour
	}
	return &ThreadBuilder{records: records, cfg: cfg, now: time.Now}
}

// BuildThread selects the maxItems highest-scoring records in scope within
// the window and returns them chronologically ascending, so consumers see
// conversation order rather than score order. An empty window yields an
// empty thread and nil error.
func (b *ThreadBuilder) BuildThread(ctx context.Context, scope types.Scope, window time.Duration, maxItems int) (types.ConversationThread, error) {
	if scope.Server == "" || window <= 0 {
		return types.ConversationThread{}, nil
	}
	if maxItems <= 0 {
		maxItems = 10
	}

	now := b.now().UTC()
	candidates, err := b.records.ListByScope(ctx, scope, storage.RecordQuery{
		IncludeCluster: true,
		Since:          now.Add(-window),
	})
	if err != nil {
		return types.ConversationThread{}, fmt.Errorf("list thread candidates: %w", err)
	}
	if len(candidates) == 0 {
		return types.ConversationThread{}, nil
	}

	// ListByScope returns newest first, so the overlap reference is the
	// most recent record in scope.
	reference := tokenSet(candidates[0].Text)

	type scoredCandidate struct {
		record types.MemoryRecord
		score  float64
	}
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, rec := range candidates {
		score := b.cfg.Weights.Temporal*temporalScore(now.Sub(rec.CreatedAt), b.cfg.HalfLife) +
			b.cfg.Weights.Overlap*overlapScore(tokenSet(rec.Text), reference) +
			b.cfg.Weights.Scope*scopeScore(rec.Scope, scope)
		scored = append(scored, scoredCandidate{record: rec, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].record.CreatedAt.After(scored[j].record.CreatedAt)
	})
	if len(scored) > maxItems {
		scored = scored[:maxItems]
	}

	var total float64
	records := make([]types.MemoryRecord, len(scored))
	for i, sc := range scored {
		records[i] = sc.record
		total += sc.score
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return types.ConversationThread{
		Records: records,
		Score:   total / float64(len(records)),
	}, nil
}

// temporalScore is the exponential half-life decay of age: 1.0 at age
// zero, 0.5 at one half-life, strictly decreasing in age.
func temporalScore(age, halfLife time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}

// overlapScore is the Jaccard similarity of the salient token sets.
func overlapScore(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// scopeScore weights scope affinity: exact server 1.0, sibling server in
// the same cluster 0.5, anything else 0.33.
func scopeScore(record, query types.Scope) float64 {
	switch {
	case record.SameServer(query):
		return 1.0
	case record.SameCluster(query):
		return 0.5
	default:
		return 0.33
	}
}
