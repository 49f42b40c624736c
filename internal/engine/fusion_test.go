package engine

import (
	"testing"
)

func TestFuse_RuleBeatsModel(t *testing.T) {
	rule := []Entity{
		{Type: TypeEmail, Value: "a@b.com", Start: 10, End: 17, Confidence: 1.0, Method: MethodRuleBased},
	}
	model := []Entity{
		{Type: TypePerson, Value: "a@b.com", Start: 10, End: 17, Confidence: 0.85, Method: "piiranha_pii"},
	}

	fused := Fuse(rule, model)
	if len(fused) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(fused))
	}
	if fused[0].Type != TypeEmail {
		t.Errorf("expected rule-based EMAIL to win, got %s (%s)", fused[0].Type, fused[0].Method)
	}
}

func TestFuse_RuleBeatsModelRegardlessOfOrder(t *testing.T) {
	// Model entity starts earlier, so the rule entity is the later candidate
	// and must displace it.
	model := []Entity{
		{Type: TypePerson, Value: "John a@b", Start: 5, End: 13, Confidence: 0.85, Method: "piiranha_pii"},
	}
	rule := []Entity{
		{Type: TypeEmail, Value: "a@b.com", Start: 10, End: 17, Confidence: 1.0, Method: MethodRuleBased},
	}

	fused := Fuse(rule, model)
	if len(fused) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(fused))
	}
	if fused[0].Type != TypeEmail {
		t.Errorf("expected EMAIL to win, got %s", fused[0].Type)
	}
}

func TestFuse_BothRuleBasedHigherConfidenceWins(t *testing.T) {
	a := []Entity{
		{Type: TypeZipCode, Value: "90210", Start: 0, End: 5, Confidence: 0.9, Method: MethodRuleBased},
	}
	b := []Entity{
		{Type: TypeSSN, Value: "90210", Start: 0, End: 5, Confidence: 1.0, Method: MethodRuleBased},
	}

	fused := Fuse(a, b)
	if len(fused) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(fused))
	}
	if fused[0].Type != TypeSSN {
		t.Errorf("expected higher-confidence entity to win, got %s", fused[0].Type)
	}
}

func TestFuse_BothRuleBasedTieKeepsExisting(t *testing.T) {
	first := []Entity{
		{Type: TypeCreditCard, Value: "4111111111111111", Start: 0, End: 16, Confidence: 1.0, Method: MethodRuleBased},
	}
	second := []Entity{
		{Type: TypePhone, Value: "1111111111", Start: 6, End: 16, Confidence: 1.0, Method: MethodRuleBased},
	}

	fused := Fuse(first, second)
	if len(fused) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(fused))
	}
	if fused[0].Type != TypeCreditCard {
		t.Errorf("tie should keep the earlier-accepted entity, got %s", fused[0].Type)
	}
}

func TestFuse_ModelLosesToExistingModel(t *testing.T) {
	model := []Entity{
		{Type: TypePerson, Value: "John Smith", Start: 0, End: 10, Confidence: 0.85, Method: "piiranha_pii"},
		{Type: TypeUsername, Value: "Smith", Start: 5, End: 10, Confidence: 0.85, Method: "piiranha_pii"},
	}

	fused := Fuse(nil, model)
	if len(fused) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(fused))
	}
	if fused[0].Type != TypePerson {
		t.Errorf("expected first-accepted model entity to survive, got %s", fused[0].Type)
	}
}

func TestFuse_ChainedDisplacementStaysNonOverlapping(t *testing.T) {
	// A rule candidate displaces a long model span; a later model candidate
	// inside the displaced region must then lose to the rule entity, never
	// resurrect an overlap.
	model := []Entity{
		{Type: TypePerson, Value: "John Smith jr", Start: 0, End: 13, Confidence: 0.85, Method: "piiranha_pii"},
		{Type: TypeUsername, Value: "mith", Start: 6, End: 10, Confidence: 0.85, Method: "piiranha_pii"},
	}
	rule := []Entity{
		{Type: TypePhone, Value: "5551234567", Start: 3, End: 13, Confidence: 1.0, Method: MethodRuleBased},
	}

	fused := Fuse(rule, model)
	if len(fused) != 1 {
		t.Fatalf("expected 1 entity, got %d: %v", len(fused), fused)
	}
	if fused[0].Type != TypePhone {
		t.Errorf("expected rule entity to survive, got %s", fused[0].Type)
	}
	assertNoOverlaps(t, fused)
}

func TestFuse_NonOverlappingAllKept(t *testing.T) {
	rule := []Entity{
		{Type: TypeEmail, Start: 20, End: 30, Confidence: 1.0, Method: MethodRuleBased},
		{Type: TypeSSN, Start: 40, End: 51, Confidence: 1.0, Method: MethodRuleBased},
	}
	model := []Entity{
		{Type: TypePerson, Start: 0, End: 10, Confidence: 0.85, Method: "piiranha_pii"},
	}

	fused := Fuse(rule, model)
	if len(fused) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(fused))
	}
	for i := 1; i < len(fused); i++ {
		if fused[i-1].Start > fused[i].Start {
			t.Errorf("fused output not sorted ascending: %v", fused)
		}
	}
	assertNoOverlaps(t, fused)
}

func TestFuse_Empty(t *testing.T) {
	if got := Fuse(nil, nil); got != nil {
		t.Errorf("expected nil for no candidates, got %v", got)
	}
}

func assertNoOverlaps(t *testing.T, entities []Entity) {
	t.Helper()
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			if entities[i].Overlaps(entities[j]) {
				t.Fatalf("overlapping entities in fused output: %v and %v", entities[i], entities[j])
			}
		}
	}
}
