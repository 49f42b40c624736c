package report

import (
	"fmt"
	"html/template"
	"os"
	"sort"
)

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Scan Report</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #ccc; padding: 0.35rem 0.7rem; text-align: left; }
th { background: #f4f4f4; }
.warn { color: #b00; font-weight: bold; }
.bar { background: #4a90d9; display: inline-block; height: 0.8rem; }
</style>
</head>
<body>
<h1>Scan Report</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}} · mask format {{.MaskFormat}}{{if .DryRun}} · <strong>dry run</strong>{{end}}</p>

{{if gt .Residuals 0}}<p class="warn">{{.Residuals}} residual finding(s) remain in masked output.</p>{{end}}

<h2>Entities by type</h2>
<table>
<tr><th>Type</th><th>Count</th></tr>
{{range .TypeRows}}<tr><td>{{.Type}}</td><td>{{.Count}}</td></tr>
{{end}}
</table>

<h2>Confidence distribution</h2>
<table>
<tr><th>Bucket</th><th>Count</th><th></th></tr>
{{range .HistRows}}<tr><td>{{.Label}}</td><td>{{.Count}}</td><td><span class="bar" style="width:{{.Width}}px"></span></td></tr>
{{end}}
</table>

<h2>Files</h2>
<table>
<tr><th>File</th><th>Units</th><th>Entities</th><th>Questionable</th><th>Residuals</th></tr>
{{range .Files}}<tr><td>{{.Path}}</td><td>{{.Units}}</td><td>{{.Total}}</td><td>{{.Questionable}}</td><td>{{if gt .ResidualCount 0}}<span class="warn">{{.ResidualCount}}</span>{{else}}0{{end}}</td></tr>
{{end}}
</table>

{{if .Failures}}
<h2>Failures</h2>
<table>
<tr><th>File</th><th>Error</th></tr>
{{range .Failures}}<tr><td>{{.Path}}</td><td>{{.Error}}</td></tr>
{{end}}
</table>
{{end}}
</body>
</html>
`))

type typeRow struct {
	Type  string
	Count int
}

type histRow struct {
	Label string
	Count int
	Width int
}

type fileRow struct {
	Path          string
	Units         int
	Total         int
	Questionable  int
	ResidualCount int
}

type htmlModel struct {
	*Summary
	TypeRows []typeRow
	HistRows []histRow
	Files    []fileRow
}

// WriteHTML renders a self-contained single-page report.
func WriteHTML(s *Summary, path string) error {
	m := htmlModel{Summary: s}

	for t, c := range s.EntityCounts {
		m.TypeRows = append(m.TypeRows, typeRow{Type: t, Count: c})
	}
	sort.Slice(m.TypeRows, func(i, j int) bool { return m.TypeRows[i].Type < m.TypeRows[j].Type })

	max := 1
	for _, c := range s.Histogram {
		if c > max {
			max = c
		}
	}
	for i, c := range s.Histogram {
		m.HistRows = append(m.HistRows, histRow{
			Label: fmt.Sprintf("%.1f-%.1f", float64(i)/HistogramBuckets, float64(i+1)/HistogramBuckets),
			Count: c,
			Width: c * 200 / max,
		})
	}

	for _, fs := range s.Files {
		total := 0
		for _, c := range fs.EntityCounts {
			total += c
		}
		m.Files = append(m.Files, fileRow{
			Path:          fs.Path,
			Units:         fs.Units,
			Total:         total,
			Questionable:  fs.Questionable,
			ResidualCount: fs.ResidualCount,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteHTML: %w", err)
	}
	if err := htmlTemplate.Execute(f, m); err != nil {
		f.Close()
		return fmt.Errorf("WriteHTML: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("WriteHTML: %w", err)
	}
	return nil
}
