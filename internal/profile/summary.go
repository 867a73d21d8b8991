package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skoglund/chronicle/internal/llm"
	"github.com/skoglund/chronicle/internal/storage"
	"github.com/skoglund/chronicle/pkg/types"
)

// labelThreshold is the minimum dominant trait value required for a
// specific personality label; below it every player is a casual player.
const labelThreshold = 0.3

// personalityLabels maps the dominant trait to its human-readable label.
var personalityLabels = map[string]string{
	types.TraitTamer:      "dinosaur enthusiast",
	types.TraitBuilder:    "master architect",
	types.TraitAggressive: "PvP warrior",
	types.TraitSocial:     "community leader",
	types.TraitExplorer:   "adventurous survivor",
}

// maxSummaryEntities caps how many entities one summaries call describes.
const maxSummaryEntities = 5

// PersonalityLabel derives the human-readable personality label from the
// profile's dominant trait. Ties follow types.TraitPriority.
func PersonalityLabel(p *types.PlayerProfile) string {
	trait, value := p.DominantTrait()
	if trait == "" || value < labelThreshold {
		return "casual player"
	}
	if label, ok := personalityLabels[trait]; ok {
		return label
	}
	return "active survivor"
}

// Summarize renders one compact context line for the profile.
func Summarize(p *types.PlayerProfile) string {
	parts := []string{fmt.Sprintf("%s is a %s", p.EntityKey, PersonalityLabel(p))}

	if creature, n := topCreature(p); n > 2 {
		parts = append(parts, fmt.Sprintf("who loves taming %ss", creature))
	}

	var stats []string
	if p.TamingCount > 15 {
		stats = append(stats, fmt.Sprintf("%d tames", p.TamingCount))
	}
	if p.DeathCount > 20 {
		stats = append(stats, fmt.Sprintf("%d deaths", p.DeathCount))
	}
	if p.BuildingCount > 50 {
		stats = append(stats, fmt.Sprintf("%d structures built", p.BuildingCount))
	}
	if len(stats) > 0 {
		if len(stats) > 2 {
			stats = stats[:2]
		}
		parts = append(parts, "Notable: "+strings.Join(stats, ", "))
	}

	return strings.Join(parts, ". ")
}

// ContextSummaries returns ordered short summaries for the given entities,
// bounded by maxTokens. Unknown entities yield a "(new player)" line. A
// summary that would push the total over the budget is skipped whole.
// Only fatal storage failures return an error.
func (t *Tracker) ContextSummaries(ctx context.Context, entityKeys []string, maxTokens int) ([]string, error) {
	if len(entityKeys) == 0 || maxTokens <= 0 {
		return nil, nil
	}
	if len(entityKeys) > maxSummaryEntities {
		entityKeys = entityKeys[:maxSummaryEntities]
	}

	var (
		summaries []string
		used      int
	)
	for _, key := range entityKeys {
		p, err := t.Profile(ctx, key)
		var line string
		switch {
		case err == nil:
			line = Summarize(p)
		case errors.Is(err, storage.ErrNotFound):
			line = key + " (new player)"
		default:
			return nil, fmt.Errorf("summarize %s: %w", key, err)
		}

		cost := llm.CountTokens(ctx, t.counter, line)
		if used+cost > maxTokens {
			continue
		}
		summaries = append(summaries, line)
		used += cost
	}
	return summaries, nil
}

// topCreature returns the most-tamed creature and its count.
func topCreature(p *types.PlayerProfile) (string, int) {
	best, bestN := "", 0
	for creature, n := range p.FavoriteCreatures {
		if n > bestN || (n == bestN && creature < best) {
			best, bestN = creature, n
		}
	}
	return best, bestN
}
