package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoglund/chronicle/internal/llm"
	"github.com/skoglund/chronicle/internal/profile"
	"github.com/skoglund/chronicle/internal/storage/sqlite"
	"github.com/skoglund/chronicle/pkg/types"
)

func newTestEngine(t *testing.T, embedder *fakeEmbedder) *ContextEngine {
	t.Helper()
	db := openTestDB(t)
	return New(
		sqlite.NewRecordStore(db),
		sqlite.NewProfileStore(db),
		embedder,
		llm.NewHeuristicTokenCounter(),
		Config{},
	)
}

func totalTokens(segments []Segment) int {
	total := 0
	for _, seg := range segments {
		total += seg.Tokens
	}
	return total
}

func TestAssembleBudgetInvariant(t *testing.T) {
	embedder := newFakeEmbedder()
	eng := newTestEngine(t, embedder)
	ctx := context.Background()

	lines := []string{
		"Alice tamed a Rex level 150",
		"Bob was killed by Carol",
		"Dave placed a Foundation near the beach",
		"Erin said the volcano base is finished",
	}
	require.NoError(t, eng.IngestLogs(ctx, lines, scopeA))

	for _, budget := range []int{0, 1, 5, 20, 100, 10000} {
		segments, err := eng.BuildContext(ctx, "what happened on the island", scopeA, []string{"Alice", "Bob"}, budget)
		require.NoError(t, err)
		assert.LessOrEqual(t, totalTokens(segments), budget, "budget %d", budget)
	}
}

func TestAssembleNonEmptyWhenCandidateFits(t *testing.T) {
	embedder := newFakeEmbedder()
	eng := newTestEngine(t, embedder)
	ctx := context.Background()

	require.NoError(t, eng.IngestLogs(ctx, []string{"Alice tamed a Rex"}, scopeA))

	segments, err := eng.BuildContext(ctx, "Rex taming", scopeA, []string{"Alice"}, 200)
	require.NoError(t, err)
	assert.NotEmpty(t, segments, "budget and candidates exist, result must be non-empty")
}

func TestAssembleZeroBudget(t *testing.T) {
	eng := newTestEngine(t, newFakeEmbedder())
	ctx := context.Background()

	require.NoError(t, eng.IngestLogs(ctx, []string{"Alice tamed a Rex"}, scopeA))

	segments, err := eng.BuildContext(ctx, "anything", scopeA, []string{"Alice"}, 0)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestAssembleOverlapRemoval(t *testing.T) {
	embedder := newFakeEmbedder()
	eng := newTestEngine(t, embedder)
	ctx := context.Background()

	embedder.set("Alice tamed a Rex", []float64{1, 0, 0})
	embedder.set("taming query", []float64{1, 0, 0})
	require.NoError(t, eng.IngestLogs(ctx, []string{"Alice tamed a Rex"}, scopeA))

	segments, err := eng.BuildContext(ctx, "taming query", scopeA, nil, 1000)
	require.NoError(t, err)

	// The record matches both the similarity pass and the thread window;
	// it may appear once only, attributed to similarity.
	occurrences := 0
	for _, seg := range segments {
		if seg.Text == "Alice tamed a Rex" {
			occurrences++
			assert.Equal(t, SourceSimilarity, seg.Source)
		}
	}
	assert.Equal(t, 1, occurrences)
}

func TestAssembleRedistributesUnusedBudget(t *testing.T) {
	embedder := newFakeEmbedder()
	embedder.setDown(true) // no similarity contribution at all
	db := openTestDB(t)
	records := sqlite.NewRecordStore(db)
	tracker := profile.NewTracker(sqlite.NewProfileStore(db), nil, profile.Config{})
	similarity := NewSimilarityStore(records, embedder)
	threads := NewThreadBuilder(records, ThreadConfig{})
	assembler := NewAssembler(similarity, threads, tracker, nil, AssemblerConfig{})
	ctx := context.Background()

	// Thread-only candidates worth well over the 30% thread allocation of
	// a 100-token budget.
	now := time.Now().UTC()
	for i := 0; i < 6; i++ {
		_, _, err := records.Insert(ctx, &types.MemoryRecord{
			Text:      "thread event with a reasonably long description of what happened " + string(rune('a'+i)),
			Scope:     scopeA,
			CreatedAt: now.Add(-time.Duration(i+1) * time.Minute),
		})
		require.NoError(t, err)
	}

	segments, err := assembler.Assemble(ctx, "", scopeA, nil, 100)
	require.NoError(t, err)

	total := totalTokens(segments)
	assert.LessOrEqual(t, total, 100)
	assert.Greater(t, total, 30, "unused similarity and profile budget must flow to the thread source")
	for _, seg := range segments {
		assert.Equal(t, SourceThread, seg.Source)
	}
}

func TestAssembleWholeSegmentTruncation(t *testing.T) {
	embedder := newFakeEmbedder()
	eng := newTestEngine(t, embedder)
	ctx := context.Background()

	long := "this line is deliberately much longer than the others so that it cannot fit into a small assembly budget without partial truncation"
	require.NoError(t, eng.IngestLogs(ctx, []string{long, "short line"}, scopeA))

	segments, err := eng.BuildContext(ctx, "", scopeA, nil, 5)
	require.NoError(t, err)

	for _, seg := range segments {
		assert.LessOrEqual(t, seg.Tokens, 5, "segments are included whole or not at all")
		assert.NotContains(t, seg.Text, long[:40], "no partial rendition of the long line")
	}
}

func TestAssembleKeywordFallbackWhenEmbedderDown(t *testing.T) {
	embedder := newFakeEmbedder()
	eng := newTestEngine(t, embedder)
	ctx := context.Background()

	require.NoError(t, eng.IngestLogs(ctx, []string{"Alice tamed a Rex"}, scopeA))

	embedder.setDown(true)
	segments, err := eng.BuildContext(ctx, "tamed rex", scopeA, nil, 1000)
	require.NoError(t, err)

	found := false
	for _, seg := range segments {
		if seg.Source == SourceSimilarity && seg.Text == "Alice tamed a Rex" {
			found = true
		}
	}
	assert.True(t, found, "keyword fallback must reach the record when similarity is degraded")
}

func TestAssembleProfileSummaries(t *testing.T) {
	embedder := newFakeEmbedder()
	eng := newTestEngine(t, embedder)
	ctx := context.Background()

	lines := []string{
		"Alice tamed a Rex",
		"Alice tamed a Rex level 150",
		"Alice tamed a Raptor",
	}
	require.NoError(t, eng.IngestLogs(ctx, lines, scopeA))

	segments, err := eng.BuildContext(ctx, "", scopeA, []string{"Alice", "Stranger"}, 1000)
	require.NoError(t, err)

	var profileTexts []string
	for _, seg := range segments {
		if seg.Source == SourceProfile {
			profileTexts = append(profileTexts, seg.Text)
		}
	}
	require.Len(t, profileTexts, 2)
	assert.Contains(t, profileTexts[0], "Alice is a")
	assert.Equal(t, "Stranger (new player)", profileTexts[1])
}

func TestIngestLogsAtKeepsHistoricalTimestamps(t *testing.T) {
	eng := newTestEngine(t, newFakeEmbedder())
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)

	require.NoError(t, eng.IngestLogsAt(ctx, []string{"Alice tamed a Rex"}, scopeA, old))
	require.NoError(t, eng.IngestLogs(ctx, []string{"Bob placed a Foundation"}, scopeA))

	alice, err := eng.Profiles.Profile(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, old, alice.LastSeen, "events carry the supplied observation time")

	// A retention cutoff between the two batches removes only the
	// backdated record and its event.
	records, events, err := eng.Prune(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, records)
	assert.Equal(t, 1, events)
}

func TestEngineEndToEnd(t *testing.T) {
	embedder := newFakeEmbedder()
	eng := newTestEngine(t, embedder)
	ctx := context.Background()

	lines := []string{
		"Alice tamed a Rex",
		"Alice tamed a Rex",
		"Bob died to a Raptor",
	}
	require.NoError(t, eng.IngestLogs(ctx, lines, scopeA))

	alice, err := eng.Profiles.Profile(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, 2, alice.TamingCount)

	bob, err := eng.Profiles.Profile(ctx, "Bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bob.DeathCount)

	// The duplicate taming line deduplicates at the record level but
	// double-counts at the event level by default.
	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)

	d := eng.Diagnostics()
	assert.Equal(t, int64(3), d.MatchedLines)

	records, events, err := eng.Prune(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, records)
	assert.Equal(t, 3, events)
}
