// Package report renders batch outcomes as JSON, CSV, and HTML. Reports
// carry counts, types, tokens, and confidences only — never detected values.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cloakstyle/cloak/internal/batch"
)

// HistogramBuckets is the number of equal-width confidence buckets; 1.0
// lands in the last bucket.
const HistogramBuckets = 10

// Summary is the report model shared by all output formats.
type Summary struct {
	GeneratedAt  time.Time      `json:"generated_at"`
	MaskFormat   string         `json:"mask_format"`
	DryRun       bool           `json:"dry_run"`
	Files        []FileSummary  `json:"files"`
	Findings     []FindingRow   `json:"findings"`
	Failures     []Failure      `json:"failures,omitempty"`
	EntityCounts map[string]int `json:"entity_counts"`
	Histogram    []int          `json:"confidence_histogram"`
	Questionable int            `json:"questionable_total"`
	Residuals    int            `json:"residual_total"`
}

// FileSummary is one successfully processed file.
type FileSummary struct {
	Path          string         `json:"path"`
	ScanID        string         `json:"scan_id"`
	Units         int            `json:"units"`
	EntityCounts  map[string]int `json:"entity_counts"`
	Questionable  int            `json:"questionable"`
	ResidualCount int            `json:"residual_count"`
	OutPath       string         `json:"out_path,omitempty"`
}

// FindingRow is one detected entity flattened for the findings table. It
// carries the mask token, never the detected value.
type FindingRow struct {
	File       string  `json:"file"`
	Unit       string  `json:"unit,omitempty"`
	Type       string  `json:"type"`
	MaskToken  string  `json:"mask_token"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Status     string  `json:"status"`
}

// Failure is one file that could not be processed.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Build folds batch items into a Summary.
func Build(items []batch.Item, maskFormat string, dryRun bool) *Summary {
	s := &Summary{
		GeneratedAt:  time.Now().UTC(),
		MaskFormat:   maskFormat,
		DryRun:       dryRun,
		EntityCounts: make(map[string]int),
		Histogram:    make([]int, HistogramBuckets),
	}

	for _, it := range items {
		if it.Err != nil {
			s.Failures = append(s.Failures, Failure{Path: it.Path, Error: it.Err.Error()})
			continue
		}
		fr := it.Result

		fs := FileSummary{
			Path:          fr.Path,
			ScanID:        fr.ScanID,
			Units:         fr.Units,
			EntityCounts:  make(map[string]int),
			Questionable:  len(fr.Questionable),
			ResidualCount: fr.ResidualCount,
			OutPath:       fr.OutPath,
		}
		for _, f := range fr.Findings {
			fs.EntityCounts[f.Type]++
			s.EntityCounts[f.Type]++
			s.Histogram[bucket(f.Confidence)]++
			s.Findings = append(s.Findings, FindingRow{
				File:       fr.Path,
				Unit:       f.Unit,
				Type:       f.Type,
				MaskToken:  f.MaskToken,
				Confidence: f.Confidence,
				Method:     f.Method,
				Status:     f.Status,
			})
		}
		s.Questionable += len(fr.Questionable)
		s.Residuals += fr.ResidualCount
		s.Files = append(s.Files, fs)
	}
	return s
}

func bucket(confidence float64) int {
	b := int(confidence * HistogramBuckets)
	if b >= HistogramBuckets {
		b = HistogramBuckets - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

// WriteAll renders the summary in each requested format (json, csv, html)
// into dir, one file per format named report.<ext>.
func WriteAll(s *Summary, dir string, formats []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("WriteAll: %w", err)
	}
	for _, f := range formats {
		path := filepath.Join(dir, "report."+f)
		var err error
		switch f {
		case "json":
			err = WriteJSON(s, path)
		case "csv":
			err = WriteCSV(s, path)
		case "html":
			err = WriteHTML(s, path)
		default:
			err = fmt.Errorf("unknown report format %q", f)
		}
		if err != nil {
			return fmt.Errorf("WriteAll: %w", err)
		}
	}
	return nil
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(s *Summary, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("WriteJSON: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("WriteJSON: %w", err)
	}
	return nil
}

// WriteCSV writes the findings table, one row per detected entity.
func WriteCSV(s *Summary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteCSV: %w", err)
	}
	w := csv.NewWriter(f)

	header := []string{"file", "unit", "type", "mask_token", "confidence", "method", "status"}
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("WriteCSV: %w", err)
	}
	for _, row := range s.Findings {
		record := []string{
			row.File,
			row.Unit,
			row.Type,
			row.MaskToken,
			strconv.FormatFloat(row.Confidence, 'f', 2, 64),
			row.Method,
			row.Status,
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("WriteCSV: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("WriteCSV: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("WriteCSV: %w", err)
	}
	return nil
}
