package engine

import (
	"fmt"
	"sort"
	"strings"
)

// MaskFormat selects how free-text entities are rewritten. Structured
// entities always get the full opaque token regardless of format.
type MaskFormat string

const (
	MaskToken         MaskFormat = "TOKEN"
	MaskPartialReveal MaskFormat = "PARTIAL_REVEAL"
)

// maskText rewrites text by replacing every entity span per policy. Entities
// must be the fused non-overlapping set; their offsets refer to text.
//
// Replacement proceeds in descending start order so that each splice, which
// changes the string length, only affects offsets strictly after the next
// entity to be processed. Per-type sequence counters therefore increment in
// descending-position order, not reading order — a documented behavior kept
// for output compatibility.
func maskText(text string, entities []Entity, format MaskFormat) string {
	if len(entities) == 0 {
		return text
	}

	ordered := make([]Entity, len(entities))
	copy(ordered, entities)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	counters := make(map[string]int)
	masked := text
	for _, e := range ordered {
		if e.Start < 0 || e.End > len(masked) || e.Start >= e.End {
			continue
		}
		counters[e.Type]++
		mask := maskFor(e, counters[e.Type], format)
		masked = masked[:e.Start] + mask + masked[e.End:]
	}
	return masked
}

// MaskTokens reports the replacement string each entity received during
// masking, index-aligned with entities. It replays the same descending-start
// counter walk as maskText so tokens match the masked output exactly.
func MaskTokens(entities []Entity, format MaskFormat) []string {
	ordered := make([]Entity, len(entities))
	copy(ordered, entities)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	byStart := make(map[int]string, len(ordered))
	counters := make(map[string]int)
	for _, e := range ordered {
		counters[e.Type]++
		byStart[e.Start] = maskFor(e, counters[e.Type], format)
	}

	tokens := make([]string, len(entities))
	for i, e := range entities {
		tokens[i] = byStart[e.Start]
	}
	return tokens
}

func maskFor(e Entity, seq int, format MaskFormat) string {
	switch {
	case IsStructured(e.Type):
		// Never partially reveal structured values.
		return maskToken(e.Type, seq)
	case IsFreeText(e.Type) && format == MaskPartialReveal:
		return partialReveal(e.Value)
	default:
		return maskToken(e.Type, seq)
	}
}

func maskToken(entityType string, seq int) string {
	return fmt.Sprintf("[%s_%03d]", strings.ToUpper(entityType), seq)
}

// partialReveal keeps the first character and stars the rest; single-rune
// values become a lone star.
func partialReveal(value string) string {
	runes := []rune(value)
	if len(runes) <= 1 {
		return "*"
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-1)
}
