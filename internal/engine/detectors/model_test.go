package detectors

import (
	"context"
	"errors"
	"testing"

	"github.com/cloakstyle/cloak/internal/engine"
	"go.uber.org/zap"
)

type fakeBackend struct {
	name     string
	entities []engine.Entity
	err      error
	closed   bool
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Detect(_ context.Context, _ string) ([]engine.Entity, error) {
	return b.entities, b.err
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

func failingFactory(name string) BackendFactory {
	return BackendFactory{Name: name, New: func(_ *zap.Logger) (ModelBackend, error) {
		return nil, errors.New("model files missing")
	}}
}

func workingFactory(b *fakeBackend) BackendFactory {
	return BackendFactory{Name: b.name, New: func(_ *zap.Logger) (ModelBackend, error) {
		return b, nil
	}}
}

func TestNewModelDetector_FirstSuccessfulFactoryWins(t *testing.T) {
	second := &fakeBackend{name: "second"}
	third := &fakeBackend{name: "third"}

	d := NewModelDetector([]BackendFactory{
		failingFactory("first"),
		workingFactory(second),
		workingFactory(third),
	}, nil, zap.NewNop())

	if d.ActiveBackend() != "second" {
		t.Errorf("active backend = %q, want second", d.ActiveBackend())
	}
}

func TestNewModelDetector_AllFailPatternOnlyMode(t *testing.T) {
	d := NewModelDetector([]BackendFactory{
		failingFactory("a"),
		failingFactory("b"),
	}, nil, zap.NewNop())

	if d.ActiveBackend() != "" {
		t.Errorf("expected no active backend, got %q", d.ActiveBackend())
	}
	entities, err := d.Detect(context.Background(), "some text")
	if err != nil {
		t.Fatalf("pattern-only mode must not error: %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("pattern-only mode must contribute zero entities, got %v", entities)
	}
}

func TestModelDetector_NoiseFilter(t *testing.T) {
	backend := &fakeBackend{name: "noisy", entities: []engine.Entity{
		{Type: engine.TypePerson, Value: "Alice", Start: 0, End: 5, Confidence: 0.85, Method: "noisy"},
		{Type: engine.TypePerson, Value: " ", Start: 6, End: 7, Confidence: 0.85, Method: "noisy"},
		{Type: engine.TypePerson, Value: ",", Start: 8, End: 9, Confidence: 0.85, Method: "noisy"},
		{Type: engine.TypePerson, Value: "x", Start: 10, End: 11, Confidence: 0.85, Method: "noisy"},
		{Type: engine.TypeIDNum, Value: "123", Start: 12, End: 15, Confidence: 0.85, Method: "noisy"},
		{Type: engine.TypePerson, Value: "!!!", Start: 16, End: 19, Confidence: 0.85, Method: "noisy"},
	}}
	d := NewModelDetector([]BackendFactory{workingFactory(backend)}, nil, zap.NewNop())

	entities, err := d.Detect(context.Background(), "whatever")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(entities) != 1 || entities[0].Value != "Alice" {
		t.Errorf("noise filter kept the wrong entities: %v", entities)
	}
}

func TestModelDetector_Reclassification(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		label    string
		wantType string
		dropped  bool
	}{
		{"email-like value", "bob@work.io", engine.TypePerson, engine.TypeEmail, false},
		{"digit run", "123456", engine.TypePerson, engine.TypeIDNum, false},
		{"greeting dropped", "Hello", engine.TypePerson, "", true},
		{"field label dropped", "email", engine.TypePerson, "", true},
		{"label kept otherwise", "Alice", engine.TypePerson, engine.TypePerson, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{name: "b", entities: []engine.Entity{
				{Type: tt.label, Value: tt.value, Start: 0, End: len(tt.value), Confidence: 0.85, Method: "b"},
			}}
			d := NewModelDetector([]BackendFactory{workingFactory(backend)}, nil, zap.NewNop())

			entities, err := d.Detect(context.Background(), tt.value)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if tt.dropped {
				if len(entities) != 0 {
					t.Errorf("expected non-PII value to be dropped, got %v", entities)
				}
				return
			}
			if len(entities) != 1 {
				t.Fatalf("expected 1 entity, got %d", len(entities))
			}
			if entities[0].Type != tt.wantType {
				t.Errorf("type = %q, want %q", entities[0].Type, tt.wantType)
			}
		})
	}
}

func TestModelDetector_EntityAllowlist(t *testing.T) {
	backend := &fakeBackend{name: "b", entities: []engine.Entity{
		{Type: engine.TypePerson, Value: "Alice", Start: 0, End: 5, Confidence: 0.85, Method: "b"},
		{Type: engine.TypeAddress, Value: "Main Street", Start: 6, End: 17, Confidence: 0.85, Method: "b"},
	}}
	d := NewModelDetector([]BackendFactory{workingFactory(backend)}, []string{engine.TypePerson}, zap.NewNop())

	entities, err := d.Detect(context.Background(), "Alice Main Street")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(entities) != 1 || entities[0].Type != engine.TypePerson {
		t.Errorf("allowlist not applied: %v", entities)
	}
}

func TestModelDetector_BackendErrorSurfaces(t *testing.T) {
	backend := &fakeBackend{name: "flaky", err: errors.New("onnx runtime crash")}
	d := NewModelDetector([]BackendFactory{workingFactory(backend)}, nil, zap.NewNop())

	if _, err := d.Detect(context.Background(), "text"); err == nil {
		t.Error("backend errors must surface so the engine can degrade")
	}
}

func TestModelDetector_Close(t *testing.T) {
	backend := &fakeBackend{name: "b"}
	d := NewModelDetector([]BackendFactory{workingFactory(backend)}, nil, zap.NewNop())

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !backend.closed {
		t.Error("backend not closed")
	}
}

func TestStripBIOPrefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"B-PER", "PER"},
		{"I-PER", "PER"},
		{"LOC", "LOC"},
		{"O", "O"},
	}
	for _, tt := range tests {
		if got := stripBIOPrefix(tt.in); got != tt.want {
			t.Errorf("stripBIOPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
