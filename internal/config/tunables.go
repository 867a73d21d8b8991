package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skoglund/chronicle/internal/engine"
	"github.com/skoglund/chronicle/internal/profile"
	"github.com/skoglund/chronicle/pkg/types"
)

// Tunables are the scoring and classification knobs loadable from a YAML
// file. Zero fields keep the engine defaults, so a partial file overrides
// only what it names.
type Tunables struct {
	// Ratios splits the assembly token budget across sources.
	Ratios engine.BudgetRatios `yaml:"budget_ratios"`

	// ThreadWeights weight the thread sub-scores.
	ThreadWeights engine.ThreadWeights `yaml:"thread_weights"`

	// HalfLifeHours is the temporal decay half-life in hours.
	HalfLifeHours float64 `yaml:"half_life_hours"`

	// TopK is the similarity result count.
	TopK int `yaml:"top_k"`

	// MinSimilarity is the similarity score floor.
	MinSimilarity float64 `yaml:"min_similarity"`

	// ThreadWindowHours bounds thread candidates by age, in hours.
	ThreadWindowHours int `yaml:"thread_window_hours"`

	// Rules replaces the classification rule table when non-empty.
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec is one classification rule in the tunables file. The pattern's
// first capture group must be the entity name.
type RuleSpec struct {
	Pattern string `yaml:"pattern"`
	Type    string `yaml:"type"`
}

// LoadTunables reads and validates a YAML tunables file.
func LoadTunables(path string) (*Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tunables: %w", err)
	}

	var t Tunables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tunables: %w", err)
	}
	if _, err := t.rules(); err != nil {
		return nil, err
	}
	return &t, nil
}

// EngineConfig merges the tunables over the engine defaults.
func (t *Tunables) EngineConfig(base engine.Config) (engine.Config, error) {
	cfg := base

	if t.Ratios != (engine.BudgetRatios{}) {
		cfg.Assembler.Ratios = t.Ratios
	}
	if t.ThreadWeights != (engine.ThreadWeights{}) {
		cfg.Thread.Weights = t.ThreadWeights
	}
	if t.HalfLifeHours > 0 {
		cfg.Thread.HalfLife = time.Duration(t.HalfLifeHours * float64(time.Hour))
	}
	if t.TopK > 0 {
		cfg.Assembler.TopK = t.TopK
	}
	if t.MinSimilarity > 0 {
		cfg.Assembler.MinSimilarity = t.MinSimilarity
	}
	if t.ThreadWindowHours > 0 {
		cfg.Assembler.ThreadWindow = time.Duration(t.ThreadWindowHours) * time.Hour
	}

	rules, err := t.rules()
	if err != nil {
		return cfg, err
	}
	if rules != nil {
		cfg.Profile.Rules = rules
	}
	return cfg, nil
}

// rules compiles the rule specs, or returns nil when the file names none.
func (t *Tunables) rules() ([]profile.Rule, error) {
	if len(t.Rules) == 0 {
		return nil, nil
	}

	rules := make([]profile.Rule, 0, len(t.Rules))
	for i, spec := range t.Rules {
		eventType := types.EventType(spec.Type)
		if !eventType.Valid() {
			return nil, fmt.Errorf("rule %d: unknown event type %q", i, spec.Type)
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("rule %d: pattern must capture the entity name", i)
		}
		rules = append(rules, profile.Rule{Pattern: re, Type: eventType})
	}
	return rules, nil
}
