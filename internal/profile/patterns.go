// Package profile tracks per-player behavioral profiles: it parses raw log
// lines into events, updates trait vectors with diminishing returns, and
// produces compact entity summaries for context assembly.
package profile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/skoglund/chronicle/pkg/types"
)

// Rule pairs an entity-capturing pattern with the event category it maps
// to. Rules are evaluated in order and the first match wins, so more
// specific patterns must come before general ones ("was killed by" before
// "killed").
type Rule struct {
	Pattern *regexp.Regexp
	Type    types.EventType
}

// DefaultRules is the ordered classification table for game-server log
// lines. Each pattern's first capture group is the entity name.
var DefaultRules = []Rule{
	{regexp.MustCompile(`(?i)(\w+) tamed a (\w+)`), types.EventTaming},
	{regexp.MustCompile(`(?i)(\w+) (?:tamed|completed taming)`), types.EventTaming},
	{regexp.MustCompile(`(?i)(\w+) was killed by (\w+)`), types.EventDeath},
	{regexp.MustCompile(`(?i)(\w+) died`), types.EventDeath},
	{regexp.MustCompile(`(?i)(\w+) (?:destroyed|raided|attacked)`), types.EventPvP},
	{regexp.MustCompile(`(?i)(\w+) placed (?:a |an )?(\w+)`), types.EventBuilding},
	{regexp.MustCompile(`(?i)(\w+) (?:built|constructed)`), types.EventBuilding},
	{regexp.MustCompile(`(?i)(\w+) said`), types.EventSocial},
	{regexp.MustCompile(`(?i)(\w+) (?:joined|left|connected|disconnected)`), types.EventSocial},
	{regexp.MustCompile(`(?i)tribe \w+ (?:invited|promoted|demoted) (\w+)`), types.EventSocial},
	{regexp.MustCompile(`(?i)(\w+) (?:discovered|explored|unlocked|entered)`), types.EventExploration},
	{regexp.MustCompile(`(?i)player (\w+)`), types.EventOther},
}

// stopNames filters capture-group false positives: short words and common
// sentence tokens that pattern capture groups pick up from prose lines.
var stopNames = map[string]struct{}{
	"the": {}, "and": {}, "was": {}, "you": {}, "all": {}, "any": {},
	"has": {}, "had": {}, "who": {}, "tribe": {}, "player": {},
}

var (
	creaturePattern  = regexp.MustCompile(`(?i)tamed a (\w+)`)
	levelPattern     = regexp.MustCompile(`(?i)level (\d+)`)
	killerPattern    = regexp.MustCompile(`(?i)killed by (\w+)`)
	structurePattern = regexp.MustCompile(`(?i)placed (?:a |an )?(\w+)`)
)

// validEntityName rejects capture-group false positives.
func validEntityName(name string) bool {
	if len(name) <= 2 {
		return false
	}
	_, stop := stopNames[strings.ToLower(name)]
	return !stop
}

// classify runs the ordered rule table against one log line and returns
// the extracted entity name and event category. ok is false when no rule
// matches or the captured name is a known false positive.
func classify(rules []Rule, line string) (entity string, eventType types.EventType, ok bool) {
	for _, rule := range rules {
		m := rule.Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if !validEntityName(name) {
			continue
		}
		return name, rule.Type, true
	}
	return "", "", false
}

// extractDetail pulls category-specific specifics out of the line: the
// tamed creature and level, the killer, or the placed structure type.
func extractDetail(line string, eventType types.EventType) string {
	switch eventType {
	case types.EventTaming:
		if m := creaturePattern.FindStringSubmatch(line); m != nil {
			detail := m[1]
			if lm := levelPattern.FindStringSubmatch(line); lm != nil {
				detail += " (level " + lm[1] + ")"
			}
			return detail
		}
	case types.EventDeath:
		if m := killerPattern.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	case types.EventBuilding:
		if m := structurePattern.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

// tamedCreature returns the creature name for a taming event line, without
// the level suffix.
func tamedCreature(line string) string {
	if m := creaturePattern.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

// tamedLevel returns the creature level for a taming event line, or 0.
func tamedLevel(line string) int {
	if m := levelPattern.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
