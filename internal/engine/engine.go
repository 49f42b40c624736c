package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the detection and masking options recognized by the engine.
type Config struct {
	// Entities restricts detection to the listed types. Empty means all
	// known types.
	Entities []string

	// MaskFormat governs free-text entity masking only; structured entities
	// always receive full tokens.
	MaskFormat MaskFormat

	// MinConfidence and QuestionableUpperBound delimit the triage band.
	MinConfidence          float64
	QuestionableUpperBound float64
}

// DefaultConfig returns the engine defaults: all entity types, full-token
// masking, triage band [0.35, 0.65].
func DefaultConfig() Config {
	return Config{
		MaskFormat:             MaskToken,
		MinConfidence:          0.35,
		QuestionableUpperBound: 0.65,
	}
}

// Validate fails fast on malformed configuration rather than letting the
// pipeline silently produce empty or wrong results.
func (c Config) Validate() error {
	for _, t := range c.Entities {
		if !KnownTypes[t] {
			return fmt.Errorf("config: unknown entity type %q", t)
		}
	}
	switch c.MaskFormat {
	case MaskToken, MaskPartialReveal:
	default:
		return fmt.Errorf("config: unknown mask format %q", c.MaskFormat)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("config: min_confidence %.2f outside [0,1]", c.MinConfidence)
	}
	if c.QuestionableUpperBound < 0 || c.QuestionableUpperBound > 1 {
		return fmt.Errorf("config: questionable upper bound %.2f outside [0,1]", c.QuestionableUpperBound)
	}
	if c.MinConfidence > c.QuestionableUpperBound {
		return fmt.Errorf("config: inverted questionable band [%.2f, %.2f]",
			c.MinConfidence, c.QuestionableUpperBound)
	}
	return nil
}

// Engine is the stateless detection pipeline: rule detection, model
// detection, fusion, triage, masking, residual validation. A single Engine is
// safe to call from multiple goroutines as long as the model detector backend
// is; the rule detector and all pure stages are.
type Engine struct {
	cfg    Config
	rules  Detector
	model  Detector // nil means pattern-only mode
	logger *zap.Logger
}

// New creates an Engine. model may be nil for pattern-only operation, which
// is a valid degraded state, not an error.
func New(cfg Config, rules, model Detector, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rules == nil {
		return nil, fmt.Errorf("engine: rule detector is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, rules: rules, model: model, logger: logger}, nil
}

// Detect runs the full pipeline over one unit of text.
//
// Model detector failures degrade to zero model entities and are logged.
// Failures in the rule detector, fusion or masking propagate: the
// deterministic stages are presumed always available, so their errors are
// defects, not expected conditions.
func (e *Engine) Detect(ctx context.Context, text string) (*Result, error) {
	start := time.Now()

	ruleEntities, err := e.rules.Detect(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("Detect: rule detection: %w", err)
	}

	var modelEntities []Entity
	if e.model != nil {
		modelEntities, err = e.model.Detect(ctx, text)
		if err != nil {
			e.logger.Warn("model detector failed, continuing rule-only",
				zap.String("detector", e.model.Name()),
				zap.Error(err),
			)
			modelEntities = nil
		}
	}

	entities := Fuse(ruleEntities, modelEntities)
	questionable := triage(entities, e.cfg.MinConfidence, e.cfg.QuestionableUpperBound)
	masked := maskText(text, entities, e.cfg.MaskFormat)

	residual, err := e.validateResidual(ctx, masked)
	if err != nil {
		return nil, fmt.Errorf("Detect: residual validation: %w", err)
	}
	if len(residual) > 0 {
		e.logger.Warn("residual PII found in masked output",
			zap.Int("count", len(residual)),
		)
	}

	return &Result{
		ScanID:         uuid.New(),
		Entities:       entities,
		MaskedContent:  masked,
		Questionable:   questionable,
		Residual:       residual,
		ProcessingTime: time.Since(start),
	}, nil
}

// validateResidual re-runs the rule detector against the masked output. The
// model detector is deliberately not re-applied: residual validation is a
// deterministic leakage check, not a second heuristic pass.
func (e *Engine) validateResidual(ctx context.Context, masked string) ([]Entity, error) {
	found, err := e.rules.Detect(ctx, masked)
	if err != nil {
		return nil, err
	}
	for i := range found {
		found[i].Method = MethodResidual
		found[i].Status = StatusResidual
	}
	return found, nil
}

// MaskFormat exposes the configured mask format for report metadata.
func (e *Engine) MaskFormat() MaskFormat {
	return e.cfg.MaskFormat
}

// ModelDetectorName returns the active model detector name, or "" when
// running pattern-only.
func (e *Engine) ModelDetectorName() string {
	if e.model == nil {
		return ""
	}
	return e.model.Name()
}
