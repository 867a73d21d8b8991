package profile

import (
	"strings"

	"github.com/skoglund/chronicle/pkg/types"
)

// traitBases maps each event category to the trait dimensions it feeds and
// the base increment per dimension. The effective increment shrinks with
// the entity's existing count in that category, so early events move a
// trait quickly and high counts saturate below 1.0.
var traitBases = map[types.EventType]map[string]float64{
	types.EventTaming:      {types.TraitTamer: 0.1},
	types.EventBuilding:    {types.TraitBuilder: 0.1},
	types.EventPvP:         {types.TraitAggressive: 0.1},
	types.EventSocial:      {types.TraitSocial: 0.05},
	types.EventExploration: {types.TraitExplorer: 0.1},
}

// applyEvent folds one classified event into the profile: bumps the
// category counter, applies the diminishing-returns trait update, records
// taming favorites, and advances LastSeen. The caller holds the entity's
// critical section.
func applyEvent(p *types.PlayerProfile, event *types.Event, line string) {
	existing := p.CategoryCount(event.Type)

	for trait, base := range traitBases[event.Type] {
		inc := base / (1 + float64(existing))
		v := p.Traits[trait] + inc
		if v > 1.0 {
			v = 1.0
		}
		p.Traits[trait] = v
	}

	switch event.Type {
	case types.EventTaming:
		p.TamingCount++
		if creature := tamedCreature(line); creature != "" {
			if p.FavoriteCreatures == nil {
				p.FavoriteCreatures = make(map[string]int)
			}
			p.FavoriteCreatures[creature]++
		}
	case types.EventDeath:
		p.DeathCount++
		// A death at the hands of another player or tribe is a PvP
		// encounter for the victim as well.
		killer := strings.ToLower(event.Detail)
		if killer == "player" || killer == "tribe" {
			p.PvPCount++
			v := p.Traits[types.TraitAggressive] + 0.05/(1+float64(p.PvPCount-1))
			if v > 1.0 {
				v = 1.0
			}
			p.Traits[types.TraitAggressive] = v
		}
	case types.EventBuilding:
		p.BuildingCount++
	case types.EventPvP:
		p.PvPCount++
	case types.EventSocial:
		p.SocialCount++
	case types.EventExploration:
		p.ExplorationCount++
	}

	if event.Timestamp.After(p.LastSeen) {
		p.LastSeen = event.Timestamp
	}
}
