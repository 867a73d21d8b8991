package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/skoglund/chronicle/internal/llm"
	"github.com/skoglund/chronicle/internal/profile"
	"github.com/skoglund/chronicle/internal/storage"
	"github.com/skoglund/chronicle/pkg/types"
)

// Config holds engine-level tuning; zero fields get defaults.
type Config struct {
	Assembler AssemblerConfig
	Thread    ThreadConfig
	Profile   profile.Config
}

// ContextEngine is the facade over the whole core: log ingestion feeding
// the similarity store and profile tracker, plus token-bounded context
// assembly on the query side.
type ContextEngine struct {
	Similarity *SimilarityStore
	Threads    *ThreadBuilder
	Profiles   *profile.Tracker

	assembler *Assembler
	logger    *log.Logger
}

// New wires the engine from its storage backends and capabilities.
// counter may be nil to use the heuristic token counter.
func New(records storage.RecordStore, profiles storage.ProfileStore, embedder llm.Embedder, counter llm.TokenCounter, cfg Config) *ContextEngine {
	similarity := NewSimilarityStore(records, embedder)
	threads := NewThreadBuilder(records, cfg.Thread)
	tracker := profile.NewTracker(profiles, counter, cfg.Profile)

	return &ContextEngine{
		Similarity: similarity,
		Threads:    threads,
		Profiles:   tracker,
		assembler:  NewAssembler(similarity, threads, tracker, counter, cfg.Assembler),
		logger:     log.New(log.Writer(), "[engine] ", log.LstdFlags),
	}
}

// IngestLogs feeds raw log lines into both memory paths: every line
// becomes a (deduplicated) memory record and the profile tracker extracts
// entity events from it. Only fatal storage failures return an error.
func (e *ContextEngine) IngestLogs(ctx context.Context, lines []string, scope types.Scope) error {
	return e.IngestLogsAt(ctx, lines, scope, time.Time{})
}

// IngestLogsAt is IngestLogs with an explicit observation time, so
// collaborators replaying historical logs keep their original timestamps
// on records and events. A zero at stamps arrival time.
func (e *ContextEngine) IngestLogsAt(ctx context.Context, lines []string, scope types.Scope, at time.Time) error {
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, _, err := e.Similarity.InsertAt(ctx, line, scope, at); err != nil {
			return fmt.Errorf("ingest line: %w", err)
		}
	}
	if err := e.Profiles.IngestAt(ctx, lines, scope, at); err != nil {
		return fmt.Errorf("ingest profiles: %w", err)
	}
	return nil
}

// BuildContext assembles the token-bounded context payload for a query.
func (e *ContextEngine) BuildContext(ctx context.Context, query string, scope types.Scope, entityKeys []string, tokenBudget int) ([]Segment, error) {
	return e.assembler.Assemble(ctx, query, scope, entityKeys, tokenBudget)
}

// Stats reports record store contents.
func (e *ContextEngine) Stats(ctx context.Context) (storage.RecordStats, error) {
	return e.Similarity.Stats(ctx)
}

// Prune applies retention to both memory records and raw player events.
// Profile aggregate state is never pruned.
func (e *ContextEngine) Prune(ctx context.Context, cutoff time.Time) (records, events int, err error) {
	records, err = e.Similarity.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	events, err = e.Profiles.PruneEvents(ctx, cutoff)
	if err != nil {
		return records, 0, err
	}
	return records, events, nil
}

// Diagnostics returns the profile tracker's ingest counters.
func (e *ContextEngine) Diagnostics() profile.Diagnostics {
	return e.Profiles.Diagnostics()
}
