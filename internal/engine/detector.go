package engine

import (
	"context"
)

// Detector produces PII entity candidates from a single unit of text.
// Implementations must be safe for concurrent use, or documented otherwise
// (model inference backends are typically one-instance-per-worker or locked).
type Detector interface {
	// Name returns the detector's identifier for logging and diagnostics.
	Name() string

	// Detect scans text and returns candidate entities with offsets into it.
	// Must respect ctx cancellation.
	Detect(ctx context.Context, text string) ([]Entity, error)
}
