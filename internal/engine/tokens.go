// Package engine implements the chronicle core: the similarity store over
// memory records, the temporal thread builder, and the context assembler
// that splits a token budget across both plus player profile summaries.
package engine

import "strings"

// stopWords are tokens carrying no salient content, excluded from overlap
// scoring and keyword fallback terms.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "were": {}, "will": {},
	"with": {},
}

// salientTokens lowercases text, splits on non-alphanumeric runs, and
// drops stop words and single characters.
func salientTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// tokenSet returns the salient tokens of text as a set.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range salientTokens(text) {
		set[tok] = struct{}{}
	}
	return set
}
