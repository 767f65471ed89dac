// Package report writes summaries of rendered charts as HTML or JSON.
package report

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/user/chartjs-node-go/pkg/canvas"
)

//go:embed templates/report.html.tmpl
var templates embed.FS

// Rendered is one chart image produced by a render run.
type Rendered struct {
	Name      string    `json:"name"`
	Source    string    `json:"source,omitempty"`
	ChartType string    `json:"chartType"`
	Type      string    `json:"type"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Ratio     float64   `json:"ratio"`
	Output    string    `json:"output,omitempty"`
	Cached    bool      `json:"cached"`
	Data      []byte    `json:"-"`
	Rendered  time.Time `json:"rendered"`
}

// Adapter generates a report format.
type Adapter interface {
	PrepareData(charts []Rendered) error
	Write(outputFilePath string) error
}

// ForFormat returns the adapter for "html" or "json".
func ForFormat(format string) (Adapter, error) {
	switch strings.ToLower(format) {
	case "html":
		return &HTMLAdapter{}, nil
	case "json":
		return &JSONAdapter{}, nil
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

func sorted(charts []Rendered) []Rendered {
	out := append([]Rendered(nil), charts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for report file %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// JSONAdapter writes the chart metadata as JSON. Image bytes are included
// as data URLs.
type JSONAdapter struct {
	reportData []byte
}

type jsonChart struct {
	Rendered
	Bytes   int    `json:"bytes"`
	DataURL string `json:"dataUrl,omitempty"`
}

// PrepareData marshals charts.
func (a *JSONAdapter) PrepareData(charts []Rendered) error {
	out := struct {
		Generated time.Time   `json:"generated"`
		Charts    []jsonChart `json:"charts"`
	}{Generated: time.Now().UTC(), Charts: []jsonChart{}}
	for _, c := range sorted(charts) {
		jc := jsonChart{Rendered: c, Bytes: len(c.Data)}
		if len(c.Data) > 0 {
			jc.DataURL = canvas.DataURL(c.Type, c.Data)
		}
		out.Charts = append(out.Charts, jc)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	a.reportData = data
	return nil
}

// Write saves the JSON report.
func (a *JSONAdapter) Write(outputFilePath string) error {
	return writeFile(outputFilePath, a.reportData)
}

// HTMLAdapter writes a page embedding every chart.
type HTMLAdapter struct {
	Title     string
	reportBuf bytes.Buffer
}

var funcMap = template.FuncMap{
	"DataURL": func(r Rendered) template.URL {
		return template.URL(canvas.DataURL(r.Type, r.Data))
	},
	"Displayable": func(mime string) bool {
		return strings.HasPrefix(mime, "image/") && mime != canvas.MimeTIFF
	},
	"FormatDateTime": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05 MST")
	},
	"HumanBytes": humanBytes,
}

func humanBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := int64(n) / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// PrepareData renders the HTML page.
func (a *HTMLAdapter) PrepareData(charts []Rendered) error {
	tmpl, err := template.New("report.html.tmpl").Funcs(funcMap).ParseFS(templates, "templates/report.html.tmpl")
	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}
	title := a.Title
	if title == "" {
		title = "Chart report"
	}
	data := struct {
		Title     string
		Generated time.Time
		Charts    []Rendered
	}{title, time.Now(), sorted(charts)}

	a.reportBuf.Reset()
	if err := tmpl.Execute(&a.reportBuf, data); err != nil {
		return fmt.Errorf("failed to execute HTML template: %w", err)
	}
	return nil
}

// Write saves the HTML report.
func (a *HTMLAdapter) Write(outputFilePath string) error {
	return writeFile(outputFilePath, a.reportBuf.Bytes())
}
