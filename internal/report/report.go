// Package report renders an assembled PipelineResult as JSON or HTML.
// Pure formatting: every number shown is taken from the already-validated
// result, never recomputed here.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"confsentry/internal/pipeline"
)

// WriteJSON renders the result as indented JSON.
func WriteJSON(w io.Writer, res *pipeline.PipelineResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// WriteHTML renders the result as a standalone HTML page.
func WriteHTML(w io.Writer, res *pipeline.PipelineResult) error {
	data := struct {
		*pipeline.PipelineResult
		ResultByID  map[string]pipeline.AssessmentResult
		GeneratedAt string
	}{
		PipelineResult: res,
		ResultByID:     make(map[string]pipeline.AssessmentResult, len(res.Results)),
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, r := range res.Results {
		data.ResultByID[r.CheckID] = r
	}
	if err := htmlTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}

// Save writes the result to dir in the requested format ("json", "html"
// or "both") and returns the paths written. Filenames derive from the
// asset hostname and the run id.
func Save(dir, format string, res *pipeline.PipelineResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create output dir: %w", err)
	}

	base := "assessment"
	if res.Asset != nil && res.Asset.Hostname != "" {
		base = sanitizeFilename(res.Asset.Hostname)
	}
	if len(res.RunID) >= 8 {
		base = base + "_" + res.RunID[:8]
	}

	var paths []string
	write := func(ext string, render func(io.Writer, *pipeline.PipelineResult) error) error {
		path := filepath.Join(dir, base+ext)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("report: create %s: %w", path, err)
		}
		defer f.Close()
		if err := render(f, res); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	if format == "json" || format == "both" {
		if err := write(".json", WriteJSON); err != nil {
			return paths, err
		}
	}
	if format == "html" || format == "both" {
		if err := write(".html", WriteHTML); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Compliance Assessment{{if .Asset}}: {{.Asset.Hostname}}{{end}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; width: 100%; margin-top: 1em; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; vertical-align: top; }
th { background: #f0f0f0; }
.status-pass { color: #1a7f37; font-weight: bold; }
.status-fail { color: #b42318; font-weight: bold; }
.status-manual_review { color: #9a6700; font-weight: bold; }
.status-not_configured { color: #57606a; font-weight: bold; }
.score { font-size: 1.4em; }
</style>
</head>
<body>
<h1>Compliance Assessment Report</h1>
{{if .Asset}}
<h2>Asset</h2>
<table>
<tr><th>Hostname</th><td>{{.Asset.Hostname}}</td></tr>
<tr><th>Vendor</th><td>{{.Asset.Vendor}}</td></tr>
<tr><th>Model</th><td>{{.Asset.Model}}</td></tr>
<tr><th>OS</th><td>{{.Asset.OSType}} {{.Asset.OSVersion}}</td></tr>
<tr><th>Role</th><td>{{.Asset.Role}}</td></tr>
<tr><th>Confidence</th><td>{{.Asset.Confidence}}</td></tr>
</table>
{{end}}
{{if .Summary}}
<h2>Summary</h2>
<p class="score">Compliance score: {{printf "%.1f" .Summary.ComplianceScore}}%</p>
<table>
<tr><th>Total</th><th>Passed</th><th>Failed</th><th>Manual review</th><th>Not configured</th><th>Critical findings</th><th>High findings</th></tr>
<tr><td>{{.Summary.TotalChecks}}</td><td>{{.Summary.Passed}}</td><td>{{.Summary.Failed}}</td><td>{{.Summary.ManualReview}}</td><td>{{.Summary.NotConfigured}}</td><td>{{.Summary.CriticalFindings}}</td><td>{{.Summary.HighFindings}}</td></tr>
</table>
{{end}}
{{if .Checks}}
<h2>Checks</h2>
<table>
<tr><th>ID</th><th>Title</th><th>Severity</th><th>Status</th><th>Finding</th><th>Recommendation</th></tr>
{{range .Checks}}
{{$r := index $.ResultByID .CheckID}}
<tr>
<td>{{.CheckID}}</td>
<td>{{.Title}}</td>
<td>{{.Severity}}</td>
<td class="status-{{$r.Status}}">{{$r.Status}}</td>
<td>{{$r.Finding}}</td>
<td>{{$r.Recommendation}}</td>
</tr>
{{end}}
</table>
{{end}}
<p><small>Run {{.RunID}}, generated {{.GeneratedAt}}</small></p>
</body>
</html>
`))
