package detectors

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/cloakstyle/cloak/internal/engine"
	"go.uber.org/zap"
)

// ModelBackend is one token-classification implementation in the fallback
// chain. Backends return entities with their own method tag, a fixed
// per-backend confidence, and labels already translated to the canonical
// entity-type vocabulary (unmapped labels dropped).
type ModelBackend interface {
	Name() string
	Detect(ctx context.Context, text string) ([]engine.Entity, error)
	Close() error
}

// BackendFactory constructs a candidate backend. Factories are tried in
// order, most capable first; the first to construct becomes the active
// backend.
type BackendFactory struct {
	Name string
	New  func(logger *zap.Logger) (ModelBackend, error)
}

// ModelDetector wraps the active backend from an ordered candidate chain and
// applies post-processing common to every backend: noise filtering,
// content-based reclassification, and the non-PII sentinel filter.
//
// If no candidate loads, the detector contributes zero entities — pattern-only
// operation is a valid degraded state, not an error.
type ModelDetector struct {
	backend ModelBackend
	enabled engine.TypeSet
	logger  *zap.Logger
}

// NewModelDetector tries each factory in order and adopts the first backend
// that constructs successfully. Construction failures are logged, not raised.
func NewModelDetector(factories []BackendFactory, enabledTypes []string, logger *zap.Logger) *ModelDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &ModelDetector{enabled: engine.NewTypeSet(enabledTypes), logger: logger}

	for _, f := range factories {
		backend, err := f.New(logger)
		if err != nil {
			logger.Warn("model backend unavailable, trying next",
				zap.String("backend", f.Name),
				zap.Error(err),
			)
			continue
		}
		d.backend = backend
		logger.Info("model backend active", zap.String("backend", backend.Name()))
		break
	}
	if d.backend == nil {
		logger.Warn("no model backend available, running pattern-only")
	}
	return d
}

// ActiveBackend returns the loaded backend's name, or "" in pattern-only mode.
func (d *ModelDetector) ActiveBackend() string {
	if d.backend == nil {
		return ""
	}
	return d.backend.Name()
}

func (d *ModelDetector) Name() string {
	if d.backend == nil {
		return "model_none"
	}
	return d.backend.Name()
}

func (d *ModelDetector) Detect(ctx context.Context, text string) ([]engine.Entity, error) {
	if d.backend == nil {
		return nil, nil
	}
	raw, err := d.backend.Detect(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("model backend %s: %w", d.backend.Name(), err)
	}

	entities := filterNoise(raw)
	for i := range entities {
		entities[i].Type = reclassify(entities[i].Type, entities[i].Value)
	}

	kept := entities[:0]
	for _, e := range entities {
		if isSentinelType(e.Type) {
			continue
		}
		if !d.enabled.Allows(e.Type) {
			continue
		}
		kept = append(kept, e)
	}
	return kept, nil
}

// Close releases the active backend, if any.
func (d *ModelDetector) Close() error {
	if d.backend == nil {
		return nil
	}
	return d.backend.Close()
}

// filterNoise drops backend tokenization artifacts: empty or single-rune
// values, pure punctuation or whitespace, and all-digit values shorter than
// four digits.
func filterNoise(entities []engine.Entity) []engine.Entity {
	kept := entities[:0]
	for _, e := range entities {
		v := strings.TrimSpace(e.Value)
		if len([]rune(v)) <= 1 {
			continue
		}
		if isPunctOrSpace(v) {
			continue
		}
		if isAllDigits(v) && len(v) < 4 {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// reclassify re-derives the entity type from the value where the content is a
// stronger signal than the backend's label: address-looking values become
// EMAIL, long digit runs become ID_NUM, and a small stoplist of values that
// are never PII (greetings, field-name labels, pronouns) is relabeled to
// sentinel types filtered out before fusion.
func reclassify(entityType, value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.Contains(v, "@") && strings.Contains(v, "."):
		return engine.TypeEmail
	case isAllDigits(v) && len(v) >= 4:
		return engine.TypeIDNum
	case v == "hello" || v == "hi" || v == "hey":
		return engine.TypeGreeting
	case v == "email" || v == "phone" || v == "address" || v == "name":
		return engine.TypeFieldLabel
	case v == "my" || v == "i" || v == "me":
		return engine.TypePronoun
	}
	return entityType
}

func isSentinelType(entityType string) bool {
	switch entityType {
	case engine.TypeGreeting, engine.TypeFieldLabel, engine.TypePronoun:
		return true
	}
	return false
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isPunctOrSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSpace(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}
