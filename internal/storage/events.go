package storage

import (
	"sort"
	"time"

	"github.com/cloakstyle/cloak/internal/engine"
)

// EventWriter is the interface for writing scan audit events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ScanEvent)
	Close()
}

// ScanEvent is the audit record for one scanned unit (a file, or one cell of
// a tabular file). It carries entity type counts only; detected values and
// surrounding text are deliberately absent so the audit trail can never leak
// what the scan was built to remove.
type ScanEvent struct {
	ScanID            string
	File              string
	Unit              string // "" for whole-file scans, else e.g. "B12"
	Timestamp         time.Time
	EntityTypes       []string
	EntityCounts      []uint32
	QuestionableCount uint32
	ResidualCount     uint32
	MaskFormat        string
	DryRun            bool
	LatencyMs         float32
}

// NewScanEvent summarizes a detection result into an audit event.
func NewScanEvent(file, unit string, res *engine.Result, maskFormat string, dryRun bool) *ScanEvent {
	counts := make(map[string]uint32)
	for _, e := range res.Entities {
		counts[e.Type]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	ev := &ScanEvent{
		ScanID:            res.ScanID.String(),
		File:              file,
		Unit:              unit,
		Timestamp:         time.Now().UTC(),
		EntityTypes:       types,
		EntityCounts:      make([]uint32, len(types)),
		QuestionableCount: uint32(len(res.Questionable)),
		ResidualCount:     uint32(len(res.Residual)),
		MaskFormat:        maskFormat,
		DryRun:            dryRun,
		LatencyMs:         float32(res.ProcessingTime.Seconds() * 1000),
	}
	for i, t := range types {
		ev.EntityCounts[i] = counts[t]
	}
	return ev
}
