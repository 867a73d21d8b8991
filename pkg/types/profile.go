package types

import "time"

// Trait names for the behavioral trait vector. Values are bounded to [0,1].
const (
	TraitTamer      = "tamer"
	TraitBuilder    = "builder"
	TraitAggressive = "aggressive"
	TraitSocial     = "social"
	TraitExplorer   = "explorer"
)

// TraitPriority is the declared tie-break order for personality labeling:
// when two traits share the maximum value, the one listed earlier wins.
var TraitPriority = []string{
	TraitTamer,
	TraitBuilder,
	TraitAggressive,
	TraitSocial,
	TraitExplorer,
}

// ProfileState is the derived lifecycle state of a profile. It is observed
// at query time from LastSeen and a TTL, never stored.
type ProfileState string

const (
	// StateUnknown means no event has ever been observed for the entity.
	StateUnknown ProfileState = "unknown"

	// StateTracked means the entity has recent activity.
	StateTracked ProfileState = "tracked"

	// StateStale means no event arrived within the TTL. Stale profiles
	// remain queryable with their last known state.
	StateStale ProfileState = "stale"
)

// PlayerProfile is the persistent behavioral profile for one entity.
// The Profile Tracker is the single writer per EntityKey.
type PlayerProfile struct {
	// EntityKey is the unique player name.
	EntityKey string `json:"entity_key"`

	// Traits maps trait names to bounded values in [0,1]. Early events move
	// a trait quickly; repeated events saturate below 1.0.
	Traits map[string]float64 `json:"traits"`

	// Monotonically non-decreasing per-category counters.
	TamingCount      int `json:"taming_count"`
	DeathCount       int `json:"death_count"`
	BuildingCount    int `json:"building_count"`
	PvPCount         int `json:"pvp_count"`
	SocialCount      int `json:"social_count"`
	ExplorationCount int `json:"exploration_count"`

	// FavoriteCreatures counts tamed creature names, used for summaries.
	FavoriteCreatures map[string]int `json:"favorite_creatures,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// NewPlayerProfile returns an empty profile for the given entity with all
// traits initialized to zero.
func NewPlayerProfile(entityKey string, now time.Time) *PlayerProfile {
	return &PlayerProfile{
		EntityKey: entityKey,
		Traits: map[string]float64{
			TraitTamer:      0,
			TraitBuilder:    0,
			TraitAggressive: 0,
			TraitSocial:     0,
			TraitExplorer:   0,
		},
		FavoriteCreatures: make(map[string]int),
		FirstSeen:         now,
		LastSeen:          now,
	}
}

// Clone returns a deep copy of the profile, including the trait and
// favorite-creature maps. Nil clones to nil.
func (p *PlayerProfile) Clone() *PlayerProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Traits = make(map[string]float64, len(p.Traits))
	for k, v := range p.Traits {
		cp.Traits[k] = v
	}
	if p.FavoriteCreatures != nil {
		cp.FavoriteCreatures = make(map[string]int, len(p.FavoriteCreatures))
		for k, v := range p.FavoriteCreatures {
			cp.FavoriteCreatures[k] = v
		}
	}
	return &cp
}

// CategoryCount returns the counter for the given event category.
func (p *PlayerProfile) CategoryCount(t EventType) int {
	switch t {
	case EventTaming:
		return p.TamingCount
	case EventDeath:
		return p.DeathCount
	case EventBuilding:
		return p.BuildingCount
	case EventPvP:
		return p.PvPCount
	case EventSocial:
		return p.SocialCount
	case EventExploration:
		return p.ExplorationCount
	}
	return 0
}

// State derives the lifecycle state from LastSeen: Tracked while the last
// event is within ttl of now, Stale afterwards.
func (p *PlayerProfile) State(ttl time.Duration, now time.Time) ProfileState {
	if p == nil || p.LastSeen.IsZero() {
		return StateUnknown
	}
	if now.Sub(p.LastSeen) > ttl {
		return StateStale
	}
	return StateTracked
}

// DominantTrait returns the highest-valued trait, using TraitPriority to
// break ties, and its value. Returns ("", 0) when all traits are zero.
func (p *PlayerProfile) DominantTrait() (string, float64) {
	best := ""
	bestVal := 0.0
	for _, name := range TraitPriority {
		if v := p.Traits[name]; v > bestVal {
			best = name
			bestVal = v
		}
	}
	return best, bestVal
}
