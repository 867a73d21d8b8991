package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/skoglund/chronicle/internal/llm"
	"github.com/skoglund/chronicle/internal/profile"
	"github.com/skoglund/chronicle/pkg/types"
)

// Source identifies which component produced a context segment.
type Source string

const (
	SourceSimilarity Source = "similarity"
	SourceThread     Source = "thread"
	SourceProfile    Source = "profile"
)

// Segment is one unit of assembled context. Segments are indivisible: the
// assembler includes or skips them whole, never truncates within one.
type Segment struct {
	Source Source `json:"source"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

// BudgetRatios split the token budget across the three sources. They
// should sum to 1; unused allocation is redistributed during assembly.
type BudgetRatios struct {
	Similarity float64 `yaml:"similarity"`
	Thread     float64 `yaml:"thread"`
	Profile    float64 `yaml:"profile"`
}

// DefaultBudgetRatios give similarity results the largest share.
var DefaultBudgetRatios = BudgetRatios{Similarity: 0.4, Thread: 0.3, Profile: 0.3}

// AssemblerConfig holds assembler tuning; zero fields get defaults.
type AssemblerConfig struct {
	// Ratios splits the token budget across sources.
	Ratios BudgetRatios

	// TopK is the similarity result count. Default: 5.
	TopK int

	// MinSimilarity is the similarity score floor. Default: 0.3.
	MinSimilarity float64

	// ThreadWindow bounds thread candidates by age. Default: 24 hours.
	ThreadWindow time.Duration

	// MaxThreadItems caps the thread length. Default: 10.
	MaxThreadItems int
}

// Assembler orchestrates the similarity store, thread builder, and profile
// tracker into a single token-bounded context payload. It holds no state
// of its own, so concurrent Assemble calls need no synchronization.
type Assembler struct {
	similarity *SimilarityStore
	threads    *ThreadBuilder
	profiles   *profile.Tracker
	counter    llm.TokenCounter
	cfg        AssemblerConfig
	logger     *log.Logger
}

// NewAssembler creates an assembler over the three context sources.
// counter bounds segment totals; nil selects the heuristic counter.
func NewAssembler(similarity *SimilarityStore, threads *ThreadBuilder, profiles *profile.Tracker, counter llm.TokenCounter, cfg AssemblerConfig) *Assembler {
	if cfg.Ratios == (BudgetRatios{}) {
		cfg.Ratios = DefaultBudgetRatios
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = 0.3
	}
	if cfg.ThreadWindow == 0 {
		cfg.ThreadWindow = 24 * time.Hour
	}
	if cfg.MaxThreadItems <= 0 {
		cfg.MaxThreadItems = 10
	}
	if counter == nil {
		counter = llm.NewHeuristicTokenCounter()
	}
	return &Assembler{
		similarity: similarity,
		threads:    threads,
		profiles:   profiles,
		counter:    counter,
		cfg:        cfg,
		logger:     log.New(log.Writer(), "[assembler] ", log.LstdFlags),
	}
}

// Assemble builds the context payload for a query: similarity matches for
// the query text, the recent conversation thread for the scope, and
// summaries for the candidate entities, together counted at or under
// tokenBudget. Capability failures shrink the result; only a fatal storage
// failure returns an error.
func (a *Assembler) Assemble(ctx context.Context, query string, scope types.Scope, entityKeys []string, tokenBudget int) ([]Segment, error) {
	if tokenBudget <= 0 {
		return nil, nil
	}

	simBudget := int(float64(tokenBudget) * a.cfg.Ratios.Similarity)
	threadBudget := int(float64(tokenBudget) * a.cfg.Ratios.Thread)
	profileBudget := tokenBudget - simBudget - threadBudget

	simSegments, seenHashes, err := a.similaritySegments(ctx, query, scope)
	if err != nil {
		return nil, err
	}
	threadSegments, err := a.threadSegments(ctx, scope, seenHashes)
	if err != nil {
		return nil, err
	}
	// Candidate generation is bounded by the whole budget; the per-source
	// allocation is enforced below so leftover room can be redistributed.
	profileSegments, err := a.profileSegments(ctx, entityKeys, tokenBudget)
	if err != nil {
		return nil, err
	}

	// First pass: each source fills its own allocation, skipping whole
	// segments that do not fit.
	var (
		result []Segment
		used   int
		rest   []Segment
	)
	take := func(segments []Segment, budget int) {
		for _, seg := range segments {
			if seg.Tokens <= budget && used+seg.Tokens <= tokenBudget {
				result = append(result, seg)
				used += seg.Tokens
				budget -= seg.Tokens
			} else {
				rest = append(rest, seg)
			}
		}
	}
	take(simSegments, simBudget)
	take(threadSegments, threadBudget)
	take(profileSegments, profileBudget)

	// Second pass: redistribute whatever budget the first pass left to the
	// skipped segments, in priority order. No source goes empty while
	// budget remains and its candidates fit.
	for _, seg := range rest {
		if used+seg.Tokens <= tokenBudget {
			result = append(result, seg)
			used += seg.Tokens
		}
	}

	return result, nil
}

// similaritySegments runs the similarity pass with keyword fallback and
// returns the segments plus the content hashes they cover.
func (a *Assembler) similaritySegments(ctx context.Context, query string, scope types.Scope) ([]Segment, map[string]struct{}, error) {
	seen := make(map[string]struct{})
	if query == "" {
		return nil, seen, nil
	}

	scored, err := a.similarity.Query(ctx, query, scope, a.cfg.TopK, a.cfg.MinSimilarity)
	if err != nil {
		return nil, nil, fmt.Errorf("similarity pass: %w", err)
	}

	var segments []Segment
	for _, sr := range scored {
		segments = append(segments, a.segment(ctx, SourceSimilarity, sr.Record.Text))
		seen[sr.Record.ContentHash] = struct{}{}
	}
	if len(segments) > 0 {
		return segments, seen, nil
	}

	// Empty similarity pass: fall back to keyword matching so degraded
	// records without embeddings stay reachable.
	records, err := a.similarity.KeywordFallback(ctx, query, scope, a.cfg.TopK)
	if err != nil {
		return nil, nil, fmt.Errorf("keyword fallback: %w", err)
	}
	for _, rec := range records {
		segments = append(segments, a.segment(ctx, SourceSimilarity, rec.Text))
		seen[rec.ContentHash] = struct{}{}
	}
	return segments, seen, nil
}

// threadSegments builds the thread contribution, dropping records already
// covered by the similarity pass. Similarity results take precedence
// because they were explicitly relevance-ranked.
func (a *Assembler) threadSegments(ctx context.Context, scope types.Scope, seenHashes map[string]struct{}) ([]Segment, error) {
	thread, err := a.threads.BuildThread(ctx, scope, a.cfg.ThreadWindow, a.cfg.MaxThreadItems)
	if err != nil {
		return nil, fmt.Errorf("thread pass: %w", err)
	}

	var segments []Segment
	for _, rec := range thread.Records {
		if _, dup := seenHashes[rec.ContentHash]; dup {
			continue
		}
		segments = append(segments, a.segment(ctx, SourceThread, rec.Text))
	}
	return segments, nil
}

// profileSegments builds the entity summary contribution.
func (a *Assembler) profileSegments(ctx context.Context, entityKeys []string, budget int) ([]Segment, error) {
	if len(entityKeys) == 0 || budget <= 0 {
		return nil, nil
	}

	summaries, err := a.profiles.ContextSummaries(ctx, entityKeys, budget)
	if err != nil {
		return nil, fmt.Errorf("profile pass: %w", err)
	}

	var segments []Segment
	for _, summary := range summaries {
		segments = append(segments, a.segment(ctx, SourceProfile, summary))
	}
	return segments, nil
}

func (a *Assembler) segment(ctx context.Context, source Source, text string) Segment {
	return Segment{Source: source, Text: text, Tokens: llm.CountTokens(ctx, a.counter, text)}
}
