package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skoglund/chronicle/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantEntity string
		wantType   types.EventType
		wantOK     bool
	}{
		{"taming", "Alice tamed a Rex", "Alice", types.EventTaming, true},
		{"taming with level", "Alice tamed a Rex level 150", "Alice", types.EventTaming, true},
		{"death plain", "Bob died to a Raptor", "Bob", types.EventDeath, true},
		{"death with killer", "Bob was killed by Carol", "Bob", types.EventDeath, true},
		{"building", "Dave placed a Foundation", "Dave", types.EventBuilding, true},
		{"pvp before building", "Carol destroyed Dave's wall", "Carol", types.EventPvP, true},
		{"social chat", "Erin said hello everyone", "Erin", types.EventSocial, true},
		{"social join", "Frank joined the server", "Frank", types.EventSocial, true},
		{"exploration", "Grace discovered the Snow Cave", "Grace", types.EventExploration, true},
		{"generic player", "Player Heidi reached the boss arena", "Heidi", types.EventOther, true},
		{"unmatched", "Weather cycle changed to rain", "", "", false},
		{"empty", "", "", "", false},
		{"false positive name", "The died", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entity, eventType, ok := classify(DefaultRules, tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantEntity, entity)
				assert.Equal(t, tt.wantType, eventType)
			}
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// "was killed by" must classify the victim as a death, not fall
	// through to the pvp "killed" keyword.
	entity, eventType, ok := classify(DefaultRules, "Bob was killed by Carol")
	assert.True(t, ok)
	assert.Equal(t, "Bob", entity)
	assert.Equal(t, types.EventDeath, eventType)
}

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		line      string
		eventType types.EventType
		want      string
	}{
		{"Alice tamed a Rex level 150", types.EventTaming, "Rex (level 150)"},
		{"Alice tamed a Rex", types.EventTaming, "Rex"},
		{"Bob was killed by Carol", types.EventDeath, "Carol"},
		{"Bob died to a Raptor", types.EventDeath, ""},
		{"Dave placed a Foundation", types.EventBuilding, "Foundation"},
		{"Erin said hello", types.EventSocial, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractDetail(tt.line, tt.eventType), "line: %s", tt.line)
	}
}

func TestTamedCreatureAndLevel(t *testing.T) {
	assert.Equal(t, "Rex", tamedCreature("Alice tamed a Rex level 150"))
	assert.Equal(t, 150, tamedLevel("Alice tamed a Rex level 150"))
	assert.Equal(t, 0, tamedLevel("Alice tamed a Rex"))
}
