package types

import "time"

// EventType is the closed enumeration of behavioral event categories
// extracted from log lines. Classification maps every matched line to
// exactly one of these.
type EventType string

const (
	EventTaming      EventType = "taming"
	EventDeath       EventType = "death"
	EventBuilding    EventType = "building"
	EventPvP         EventType = "pvp"
	EventSocial      EventType = "social"
	EventExploration EventType = "exploration"
	EventOther       EventType = "other"
)

// Valid reports whether t is a member of the closed event enumeration.
func (t EventType) Valid() bool {
	switch t {
	case EventTaming, EventDeath, EventBuilding, EventPvP,
		EventSocial, EventExploration, EventOther:
		return true
	}
	return false
}

// Event is a single parsed behavioral event for an entity. Events are
// transient: they are consumed immediately to update a PlayerProfile and
// recorded only as prunable aggregate rows, never as first-class state.
type Event struct {
	// EntityKey is the player name the event belongs to.
	EntityKey string `json:"entity_key"`

	// Type is the classified event category.
	Type EventType `json:"event_type"`

	// Detail carries extracted specifics, e.g. the tamed creature name,
	// the killer, or the structure type. May be empty.
	Detail string `json:"detail,omitempty"`

	// Scope is the server/cluster the event was observed on.
	Scope Scope `json:"scope"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
