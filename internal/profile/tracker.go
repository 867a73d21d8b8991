package profile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/skoglund/chronicle/internal/llm"
	"github.com/skoglund/chronicle/internal/storage"
	"github.com/skoglund/chronicle/pkg/types"
)

// Config holds Profile Tracker tuning; zero fields get defaults.
type Config struct {
	// CacheTTL is how long a cached profile stays valid. Expiry invalidates
	// the cache entry only, the backing row remains. Default: 1 hour.
	CacheTTL time.Duration

	// CacheSize bounds the profile cache. Default: 1024 entries.
	CacheSize int

	// DedupEvents controls event-level deduplication: when true, the same
	// (entity, line, scope) seen again within DedupWindow counts once.
	// Default false, so re-ingested identical lines are distinct events.
	DedupEvents bool

	// DedupWindow is the sliding window for DedupEvents. Default: 5 minutes.
	DedupWindow time.Duration

	// Rules overrides the classification rule table. Default: DefaultRules.
	Rules []Rule
}

// Diagnostics reports ingest counters since tracker creation.
type Diagnostics struct {
	MatchedLines   int64 `json:"matched_lines"`
	UnmatchedLines int64 `json:"unmatched_lines"`
	DedupedEvents  int64 `json:"deduped_events"`
}

// Tracker is the Profile Tracker: the single writer of PlayerProfile
// state. Writes for one entity are serialized through a per-key mutex so
// concurrent ingestion never loses counter or trait updates.
type Tracker struct {
	store   storage.ProfileStore
	counter llm.TokenCounter
	rules   []Rule
	cfg     Config
	cache   *expirable.LRU[string, *types.PlayerProfile]
	logger  *log.Logger

	mu        sync.Mutex
	entityMus map[string]*sync.Mutex
	lastSeen  map[string]time.Time

	matched   atomic.Int64
	unmatched atomic.Int64
	deduped   atomic.Int64

	now func() time.Time
}

// NewTracker creates a tracker over the given profile store. counter is
// used to bound ContextSummaries output; nil selects the heuristic counter.
func NewTracker(store storage.ProfileStore, counter llm.TokenCounter, cfg Config) *Tracker {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 1024
	}
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = 5 * time.Minute
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules
	}
	if counter == nil {
		counter = llm.NewHeuristicTokenCounter()
	}

	return &Tracker{
		store:     store,
		counter:   counter,
		rules:     cfg.Rules,
		cfg:       cfg,
		cache:     expirable.NewLRU[string, *types.PlayerProfile](cfg.CacheSize, nil, cfg.CacheTTL),
		logger:    log.New(log.Writer(), "[profile] ", log.LstdFlags),
		entityMus: make(map[string]*sync.Mutex),
		lastSeen:  make(map[string]time.Time),
		now:       time.Now,
	}
}

// Ingest parses log lines for the scope, classifies them into events, and
// updates the affected profiles. Unmatched lines are counted and skipped.
// Malformed or empty input is a no-op. The only error returned is a fatal
// storage failure.
func (t *Tracker) Ingest(ctx context.Context, lines []string, scope types.Scope) error {
	return t.IngestAt(ctx, lines, scope, time.Time{})
}

// IngestAt is Ingest with an explicit observation time, for collaborators
// replaying historical logs. A zero at stamps arrival time. The dedup
// window and event timestamps both use the supplied time.
func (t *Tracker) IngestAt(ctx context.Context, lines []string, scope types.Scope, at time.Time) error {
	now := at.UTC()
	if at.IsZero() {
		now = t.now().UTC()
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		entity, eventType, ok := classify(t.rules, line)
		if !ok {
			t.unmatched.Add(1)
			continue
		}
		t.matched.Add(1)

		if t.cfg.DedupEvents && t.isDuplicate(entity, line, scope, now) {
			t.deduped.Add(1)
			continue
		}

		event := &types.Event{
			EntityKey: entity,
			Type:      eventType,
			Detail:    extractDetail(line, eventType),
			Scope:     scope,
			Timestamp: now,
		}
		if err := t.applyToProfile(ctx, event, line); err != nil {
			return err
		}
	}
	return nil
}

// applyToProfile runs the per-entity critical section: load the profile,
// fold in the event, persist, refresh the cache. The loaded profile is
// cloned before mutation so every pointer in the cache, and every pointer
// handed to a reader, stays an immutable snapshot.
func (t *Tracker) applyToProfile(ctx context.Context, event *types.Event, line string) error {
	mu := t.entityMutex(event.EntityKey)
	mu.Lock()
	defer mu.Unlock()

	p, err := t.loadOrCreate(ctx, event.EntityKey, event.Timestamp)
	if err != nil {
		return err
	}

	p = p.Clone()
	applyEvent(p, event, line)

	if err := t.store.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("persist profile %s: %w", event.EntityKey, err)
	}
	if err := t.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("append event for %s: %w", event.EntityKey, err)
	}
	t.cache.Add(event.EntityKey, p)
	return nil
}

// loadOrCreate returns the cached or stored profile, or a fresh one when
// the entity has never been observed.
func (t *Tracker) loadOrCreate(ctx context.Context, entityKey string, now time.Time) (*types.PlayerProfile, error) {
	if p, ok := t.cache.Get(entityKey); ok {
		return p, nil
	}

	p, err := t.store.GetProfile(ctx, entityKey)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return types.NewPlayerProfile(entityKey, now), nil
	}
	return nil, fmt.Errorf("load profile %s: %w", entityKey, err)
}

// Profile returns a snapshot of the profile for the entity, serving from
// the TTL cache when fresh and re-fetching from the store after expiry.
// The returned copy is the caller's own; concurrent ingestion never
// mutates it. Returns storage.ErrNotFound for entities never observed.
func (t *Tracker) Profile(ctx context.Context, entityKey string) (*types.PlayerProfile, error) {
	if p, ok := t.cache.Get(entityKey); ok {
		return p.Clone(), nil
	}

	p, err := t.store.GetProfile(ctx, entityKey)
	if err != nil {
		return nil, err
	}
	t.cache.Add(entityKey, p)
	return p.Clone(), nil
}

// MostActive returns the busiest entities on the scope's server.
func (t *Tracker) MostActive(ctx context.Context, scope types.Scope, limit int) ([]storage.ActivePlayer, error) {
	return t.store.MostActive(ctx, scope, limit)
}

// Relationships returns the entity's aggregated kill interactions with
// other observed players, most frequent first.
func (t *Tracker) Relationships(ctx context.Context, entityKey string, limit int) ([]storage.Relationship, error) {
	return t.store.Relationships(ctx, entityKey, limit)
}

// PruneEvents removes raw event rows older than cutoff. Profile counters
// are aggregate state and are unaffected.
func (t *Tracker) PruneEvents(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := t.store.PruneEvents(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.logger.Printf("pruned %d player events older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Diagnostics returns ingest counters since tracker creation.
func (t *Tracker) Diagnostics() Diagnostics {
	return Diagnostics{
		MatchedLines:   t.matched.Load(),
		UnmatchedLines: t.unmatched.Load(),
		DedupedEvents:  t.deduped.Load(),
	}
}

// entityMutex returns the mutex serializing writes for one entity key.
func (t *Tracker) entityMutex(entityKey string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	mu, ok := t.entityMus[entityKey]
	if !ok {
		mu = &sync.Mutex{}
		t.entityMus[entityKey] = mu
	}
	return mu
}

// isDuplicate checks and records the (entity, line, scope) key in the
// sliding dedup window. Expired window entries are dropped lazily.
func (t *Tracker) isDuplicate(entity, line string, scope types.Scope, now time.Time) bool {
	key := entity + "\x1f" + scope.Key() + "\x1f" + line

	t.mu.Lock()
	defer t.mu.Unlock()

	for k, seen := range t.lastSeen {
		if now.Sub(seen) > t.cfg.DedupWindow {
			delete(t.lastSeen, k)
		}
	}

	if seen, ok := t.lastSeen[key]; ok && now.Sub(seen) <= t.cfg.DedupWindow {
		return true
	}
	t.lastSeen[key] = now
	return false
}
