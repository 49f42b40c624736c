package detectors

import (
	"context"
	"testing"
)

func TestHeuristicBackend_FlagsCapitalizedWords(t *testing.T) {
	b := newHeuristicBackend()
	entities, err := b.Detect(context.Background(), "yesterday Marianne emailed the draft")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d: %v", len(entities), entities)
	}
	e := entities[0]
	if e.Value != "Marianne" {
		t.Errorf("value = %q, want Marianne", e.Value)
	}
	if e.Type != typePotentialName {
		t.Errorf("type = %q, want %s", e.Type, typePotentialName)
	}
	if e.Confidence != 0.30 {
		t.Errorf("confidence = %v, want fixed 0.30", e.Confidence)
	}
	if text := "yesterday Marianne emailed the draft"; text[e.Start:e.End] != e.Value {
		t.Errorf("offsets [%d,%d) wrong for %q", e.Start, e.End, e.Value)
	}
}

func TestHeuristicBackend_Exclusions(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"stopword", "and The end"},
		{"short word", "go Up now"},
		{"lowercase", "just words here"},
		{"digits inside", "order A1234 shipped"},
		{"trailing period", "met Bob. later"},
		{"trailing comma", "met Ann, later"},
	}
	b := newHeuristicBackend()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, err := b.Detect(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if len(entities) != 0 {
				t.Errorf("expected no entities for %q, got %v", tt.text, entities)
			}
		})
	}
}

func TestSplitWords_Offsets(t *testing.T) {
	words := splitWords("  one two\nthree ")
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %d", len(words))
	}
	text := "  one two\nthree "
	for _, w := range words {
		if text[w.start:w.start+len(w.text)] != w.text {
			t.Errorf("offset %d wrong for word %q", w.start, w.text)
		}
	}
}
