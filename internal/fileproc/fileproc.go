// Package fileproc walks input trees, runs detection over file contents, and
// writes masked copies. Plain-text formats are scanned whole; tabular formats
// are scanned cell by cell so offsets stay local to each cell.
package fileproc

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cloakstyle/cloak/internal/engine"
	"github.com/cloakstyle/cloak/internal/storage"
)

// Options controls collection and processing.
type Options struct {
	InputDir  string
	OutputDir string
	Recursive bool
	Include   []string // glob patterns matched against the base name
	Exclude   []string
	MaxFileMB int
	MaxRows   int
	DryRun    bool // detect and report, write nothing
}

// Finding is one detected entity, reduced to reportable fields. The detected
// value itself is dropped at this boundary.
type Finding struct {
	Unit       string // "" for whole-file scans
	Type       string
	MaskToken  string
	Confidence float64
	Method     string
	Status     string
}

// FileResult summarizes one processed file.
type FileResult struct {
	Path          string // relative to the input dir
	ScanID        string
	Findings      []Finding
	Questionable  []Finding
	ResidualCount int
	Units         int    // scanned units: 1 for text files, cell count for tables
	OutPath       string // empty in dry-run mode
}

// supported maps file extensions to their processing mode.
var supported = map[string]bool{
	".txt":  true,
	".md":   true,
	".log":  true,
	".csv":  true,
	".xlsx": true,
}

func tabular(ext string) bool { return ext == ".csv" || ext == ".xlsx" }

// Processor runs the detection engine over files.
type Processor struct {
	eng    *engine.Engine
	events storage.EventWriter
	opts   Options
	logger *zap.Logger
}

func New(eng *engine.Engine, events storage.EventWriter, opts Options, logger *zap.Logger) *Processor {
	return &Processor{eng: eng, events: events, opts: opts, logger: logger}
}

// Collect returns the relative paths of files to process, sorted by walk
// order. Unsupported extensions are skipped; include/exclude patterns apply
// to the base name only.
func (p *Processor) Collect() ([]string, error) {
	var paths []string
	root := p.opts.InputDir

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !p.opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !supported[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		ok, err := p.selected(d.Name())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Collect: %w", err)
	}
	return paths, nil
}

func (p *Processor) selected(name string) (bool, error) {
	for _, pat := range p.opts.Exclude {
		m, err := filepath.Match(pat, name)
		if err != nil {
			return false, fmt.Errorf("bad exclude pattern %q: %w", pat, err)
		}
		if m {
			return false, nil
		}
	}
	if len(p.opts.Include) == 0 {
		return true, nil
	}
	for _, pat := range p.opts.Include {
		m, err := filepath.Match(pat, name)
		if err != nil {
			return false, fmt.Errorf("bad include pattern %q: %w", pat, err)
		}
		if m {
			return true, nil
		}
	}
	return false, nil
}

// ProcessFile scans one file (path relative to the input dir), writes the
// masked copy under the output dir unless dry-run, and emits audit events.
func (p *Processor) ProcessFile(ctx context.Context, rel string) (*FileResult, error) {
	abs := filepath.Join(p.opts.InputDir, rel)

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("ProcessFile: %w", err)
	}
	if maxBytes := int64(p.opts.MaxFileMB) * 1 << 20; p.opts.MaxFileMB > 0 && info.Size() > maxBytes {
		return nil, fmt.Errorf("ProcessFile: %s is %d bytes, over the %d MB cap", rel, info.Size(), p.opts.MaxFileMB)
	}

	p.logger.Debug("processing file",
		zap.String("file", rel),
		zap.Int64("bytes", info.Size()),
	)

	ext := strings.ToLower(filepath.Ext(rel))
	switch ext {
	case ".csv":
		return p.processCSV(ctx, rel, abs)
	case ".xlsx":
		return p.processXLSX(ctx, rel, abs)
	default:
		return p.processText(ctx, rel, abs)
	}
}

func (p *Processor) processText(ctx context.Context, rel, abs string) (*FileResult, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("processText: %w", err)
	}

	res, err := p.eng.Detect(ctx, string(data))
	if err != nil {
		return nil, fmt.Errorf("processText: %s: %w", rel, err)
	}

	fr := &FileResult{Path: rel, ScanID: res.ScanID.String(), Units: 1}
	p.accumulate(fr, "", res)
	p.events.Write(storage.NewScanEvent(rel, "", res, string(p.eng.MaskFormat()), p.opts.DryRun))

	if !p.opts.DryRun {
		out, err := p.outPath(rel)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(out, []byte(res.MaskedContent), 0o644); err != nil {
			return nil, fmt.Errorf("processText: write %s: %w", out, err)
		}
		fr.OutPath = out
	}
	return fr, nil
}

// accumulate folds one unit's detection result into the file result. Cell
// events are only emitted for units that actually hit something; the caller
// emits the per-file or per-cell event itself.
func (p *Processor) accumulate(fr *FileResult, unit string, res *engine.Result) {
	tokens := engine.MaskTokens(res.Entities, p.eng.MaskFormat())
	tokenByStart := make(map[int]string, len(tokens))
	for i, e := range res.Entities {
		tokenByStart[e.Start] = tokens[i]
		fr.Findings = append(fr.Findings, Finding{
			Unit:       unit,
			Type:       e.Type,
			MaskToken:  tokens[i],
			Confidence: e.Confidence,
			Method:     e.Method,
			Status:     e.Status,
		})
	}
	for _, q := range res.Questionable {
		fr.Questionable = append(fr.Questionable, Finding{
			Unit:       unit,
			Type:       q.Type,
			MaskToken:  tokenByStart[q.Start],
			Confidence: q.Confidence,
			Method:     q.Method,
			Status:     q.Status,
		})
	}
	fr.ResidualCount += len(res.Residual)
}

func (p *Processor) outPath(rel string) (string, error) {
	out := filepath.Join(p.opts.OutputDir, rel)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("outPath: %w", err)
	}
	return out, nil
}
