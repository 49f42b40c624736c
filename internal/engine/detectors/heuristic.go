package detectors

import (
	"context"
	"strings"
	"unicode"

	"github.com/cloakstyle/cloak/internal/engine"
)

// typePotentialName marks heuristic name candidates. It is outside the
// canonical vocabulary on purpose: consumers see these are guesses, and the
// masker falls back to the full-token format for them.
const typePotentialName = "POTENTIAL_NAME"

// Words that start sentences or carry no identity, excluded from the
// capitalized-word heuristic.
var heuristicStopwords = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"And": true, "Or": true, "But": true, "In": true, "On": true, "At": true,
	"To": true, "For": true, "Of": true, "With": true, "By": true,
}

// heuristicBackend is the last resort in the model chain: it flags
// capitalized words as potential names with low, fixed confidence. It always
// constructs, so a chain ending with it degrades gracefully instead of going
// pattern-only when no ONNX model can load.
type heuristicBackend struct{}

func newHeuristicBackend() *heuristicBackend {
	return &heuristicBackend{}
}

func (b *heuristicBackend) Name() string {
	return "capitalization_heuristic"
}

func (b *heuristicBackend) Detect(ctx context.Context, text string) ([]engine.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entities []engine.Entity
	for _, w := range splitWords(text) {
		if !plausibleName(w.text) {
			continue
		}
		entities = append(entities, engine.Entity{
			Type:       typePotentialName,
			Value:      w.text,
			Start:      w.start,
			End:        w.start + len(w.text),
			Confidence: 0.30,
			Method:     "capitalization_heuristic",
			Status:     engine.StatusAutoMasked,
		})
	}
	return entities, nil
}

func (b *heuristicBackend) Close() error {
	return nil
}

func plausibleName(word string) bool {
	runes := []rune(word)
	if len(runes) <= 2 {
		return false
	}
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	if strings.HasSuffix(word, ".") || strings.HasSuffix(word, ",") {
		return false
	}
	for _, r := range runes {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return !heuristicStopwords[word]
}

type word struct {
	text  string
	start int
}

// splitWords returns whitespace-separated tokens with their byte offsets.
func splitWords(text string) []word {
	var words []word
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, word{text: text[start:i], start: start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, word{text: text[start:], start: start})
	}
	return words
}
