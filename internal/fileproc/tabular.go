package fileproc

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/cloakstyle/cloak/internal/engine"
	"github.com/cloakstyle/cloak/internal/storage"
)

// processCSV scans a CSV file cell by cell. Each cell is an independent
// detection unit; row and field counts are preserved in the masked copy.
func (p *Processor) processCSV(ctx context.Context, rel, abs string) (*FileResult, error) {
	in, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("processCSV: %w", err)
	}
	defer in.Close()

	r := csv.NewReader(in)
	r.FieldsPerRecord = -1 // ragged rows are fine, we rewrite them as-is

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("processCSV: %s: %w", rel, err)
		}
		rows = append(rows, record)
		if p.opts.MaxRows > 0 && len(rows) > p.opts.MaxRows {
			return nil, fmt.Errorf("processCSV: %s exceeds the %d row cap", rel, p.opts.MaxRows)
		}
	}

	fr := &FileResult{Path: rel}
	for i, row := range rows {
		for j, cell := range row {
			if cell == "" {
				continue
			}
			unit := fmt.Sprintf("r%dc%d", i+1, j+1)
			res, err := p.scanUnit(ctx, fr, rel, unit, cell)
			if err != nil {
				return nil, fmt.Errorf("processCSV: %w", err)
			}
			rows[i][j] = res.MaskedContent
		}
	}

	if !p.opts.DryRun {
		out, err := p.outPath(rel)
		if err != nil {
			return nil, err
		}
		if err := writeCSV(out, rows); err != nil {
			return nil, fmt.Errorf("processCSV: %w", err)
		}
		fr.OutPath = out
	}
	return fr, nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// processXLSX scans every sheet of a workbook cell by cell and writes the
// masked workbook. Formatting outside cell values is carried over untouched.
func (p *Processor) processXLSX(ctx context.Context, rel, abs string) (*FileResult, error) {
	f, err := excelize.OpenFile(abs)
	if err != nil {
		return nil, fmt.Errorf("processXLSX: %w", err)
	}
	defer f.Close()

	fr := &FileResult{Path: rel}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("processXLSX: %s sheet %s: %w", rel, sheet, err)
		}
		if p.opts.MaxRows > 0 && len(rows) > p.opts.MaxRows {
			return nil, fmt.Errorf("processXLSX: %s sheet %s exceeds the %d row cap", rel, sheet, p.opts.MaxRows)
		}
		for i, row := range rows {
			for j, cell := range row {
				if cell == "" {
					continue
				}
				name, err := excelize.CoordinatesToCellName(j+1, i+1)
				if err != nil {
					return nil, fmt.Errorf("processXLSX: %w", err)
				}
				unit := sheet + "!" + name
				res, err := p.scanUnit(ctx, fr, rel, unit, cell)
				if err != nil {
					return nil, fmt.Errorf("processXLSX: %w", err)
				}
				if res.MaskedContent != cell {
					if err := f.SetCellValue(sheet, name, res.MaskedContent); err != nil {
						return nil, fmt.Errorf("processXLSX: set %s: %w", unit, err)
					}
				}
			}
		}
	}

	if !p.opts.DryRun {
		out, err := p.outPath(rel)
		if err != nil {
			return nil, err
		}
		if err := f.SaveAs(out); err != nil {
			return nil, fmt.Errorf("processXLSX: save %s: %w", out, err)
		}
		fr.OutPath = out
	}
	return fr, nil
}

// scanUnit detects over one cell, folds the result into fr, and emits an
// audit event when the cell produced any entity, questionable, or residual.
// Clean cells stay silent to keep the audit volume proportional to findings.
func (p *Processor) scanUnit(ctx context.Context, fr *FileResult, rel, unit, text string) (*engine.Result, error) {
	res, err := p.eng.Detect(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("scanUnit %s %s: %w", rel, unit, err)
	}
	fr.Units++
	if fr.ScanID == "" {
		fr.ScanID = res.ScanID.String()
	}
	p.accumulate(fr, unit, res)
	if len(res.Entities) > 0 || len(res.Questionable) > 0 || len(res.Residual) > 0 {
		p.events.Write(storage.NewScanEvent(rel, unit, res, string(p.eng.MaskFormat()), p.opts.DryRun))
	}
	return res, nil
}
