// Package report renders scanned posts into an HTML page and a Markdown
// rendition that can be kept or opened in the browser.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	pkgbrowser "github.com/pkg/browser"

	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/scanner"
	"github.com/ibeckermayer/fauxpost/internal/types"
)

// ErrNothingScored is returned when no row carries a verdict
var ErrNothingScored = errors.New("no scored posts to report")

const excerptLen = 280

// Builder creates reports from scanner rows
type Builder struct {
	maxRows  int
	template *template.Template
	md       *converter.Converter
	now      func() time.Time
}

// New creates a new report builder. maxRows <= 0 lists every scored row.
func New(maxRows int) (*Builder, error) {
	tmpl, err := template.New("report").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{
		maxRows:  maxRows,
		template: tmpl,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		now: time.Now,
	}, nil
}

// Report is a rendered report
type Report struct {
	Title     string
	HTMLBody  string
	Markdown  string
	Stats     Stats
	CreatedAt time.Time
}

// Stats counts rows by outcome
type Stats struct {
	Rows      int
	Scored    int
	Fake      int
	Real      int
	Unknown   int
	FromCache int
	NoText    int
	Errors    int
}

// reportData is the template data structure
type reportData struct {
	Title  string
	Date   string
	Source string
	Rows   []rowData
	Stats  Stats
}

type rowData struct {
	Chip      string
	Class     string
	Signals   []string
	Excerpt   string
	PostKey   string
	FromCache bool
	Model     string
}

// Build creates a report from rows. source names where the rows came from,
// a file path or the feed URL.
func (b *Builder) Build(rows []scanner.RowView, source string) (*Report, error) {
	var stats Stats
	var scored []scanner.RowView
	for _, r := range rows {
		stats.Rows++
		switch r.State {
		case scanner.StateNoText:
			stats.NoText++
		case scanner.StateError:
			stats.Errors++
		case scanner.StateScored:
			if r.Result == nil {
				continue
			}
			stats.Scored++
			if r.FromCache {
				stats.FromCache++
			}
			switch r.Result.Label {
			case types.LabelFake:
				stats.Fake++
			case types.LabelReal:
				stats.Real++
			default:
				stats.Unknown++
			}
			scored = append(scored, r)
		}
	}
	if len(scored) == 0 {
		return nil, ErrNothingScored
	}

	// fake first, then most suspicious first
	sort.SliceStable(scored, func(i, j int) bool {
		fi := scored[i].Result.Label == types.LabelFake
		fj := scored[j].Result.Label == types.LabelFake
		if fi != fj {
			return fi
		}
		return scored[i].Result.ProbFake > scored[j].Result.ProbFake
	})
	if b.maxRows > 0 && len(scored) > b.maxRows {
		scored = scored[:b.maxRows]
	}

	now := b.now()
	data := reportData{
		Title:  "Fake post report",
		Date:   now.Format("Monday, January 2 15:04"),
		Source: source,
		Rows:   make([]rowData, len(scored)),
		Stats:  stats,
	}
	for i, r := range scored {
		data.Rows[i] = rowData{
			Chip:      scanner.ChipText(*r.Result),
			Class:     string(r.Result.Label),
			Signals:   r.Result.TopSignals,
			Excerpt:   truncate(r.Text, excerptLen),
			PostKey:   r.PostKey,
			FromCache: r.FromCache,
			Model:     r.Result.ModelVersion,
		}
	}

	var page, content bytes.Buffer
	if err := b.template.Execute(&page, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	if err := b.template.ExecuteTemplate(&content, "content", data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	md, err := b.md.ConvertString(content.String())
	if err != nil {
		return nil, fmt.Errorf("failed to convert report to markdown: %w", err)
	}

	return &Report{
		Title:     data.Title,
		HTMLBody:  page.String(),
		Markdown:  md,
		Stats:     stats,
		CreatedAt: now,
	}, nil
}

// Dir returns the directory reports are saved to
func Dir() (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "reports"), nil
}

// Save writes the report as .html and .md into dir and returns the HTML path
func (r *Report) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	name := "report-" + r.CreatedAt.Format("2006-01-02T15-04-05")
	htmlPath := filepath.Join(dir, name+".html")
	if err := os.WriteFile(htmlPath, []byte(r.HTMLBody), 0600); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(r.Markdown), 0600); err != nil {
		return "", err
	}
	return htmlPath, nil
}

// Open shows a saved report in the default browser
func Open(path string) error {
	return pkgbrowser.OpenFile(path)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

const defaultTemplate = `{{define "content"}}
<h1>{{.Title}}</h1>
<p>{{.Date}}{{if .Source}} · {{.Source}}{{end}}</p>
<p>{{.Stats.Scored}} of {{.Stats.Rows}} posts scored: {{.Stats.Fake}} fake, {{.Stats.Real}} real, {{.Stats.Unknown}} unknown. {{.Stats.FromCache}} from cache, {{.Stats.NoText}} without text, {{.Stats.Errors}} failed.</p>
<table>
<thead><tr><th>Verdict</th><th>Signals</th><th>Post</th></tr></thead>
<tbody>
{{range .Rows}}<tr class="{{.Class}}"><td>{{.Chip}}{{if .FromCache}} (cached){{end}}</td><td>{{range $i, $s := .Signals}}{{if $i}}, {{end}}{{$s}}{{end}}</td><td>{{.Excerpt}}</td></tr>
{{end}}</tbody>
</table>
{{end}}<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; background: #f3f2ef; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #0a66c2; margin-bottom: 5px; }
        table { border-collapse: collapse; width: 100%; }
        td, th { border-bottom: 1px solid #eee; padding: 10px 6px; text-align: left; vertical-align: top; }
        tr.fake td:first-child { color: #b42318; font-weight: 600; }
        tr.real td:first-child { color: #067647; font-weight: 600; }
        tr.unknown td:first-child { color: #b54708; font-weight: 600; }
        .footer { margin-top: 20px; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        {{template "content" .}}
        <div class="footer">Generated by fauxpost</div>
    </div>
</body>
</html>
`
