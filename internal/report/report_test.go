package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ibeckermayer/fauxpost/internal/scanner"
	"github.com/ibeckermayer/fauxpost/internal/types"
)

func scoredRow(label string, p float64, text string) scanner.RowView {
	res := types.NewClassificationResult(label, p, "m1", []string{"humblebrag", "engagement bait"})
	return scanner.RowView{State: scanner.StateScored, Result: &res, Text: text, Chip: scanner.ChipText(res)}
}

func TestBuild(t *testing.T) {
	b, err := New(0)
	if err != nil {
		t.Fatal(err)
	}
	b.now = func() time.Time { return time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC) }

	rows := []scanner.RowView{
		scoredRow("real", 0.2, "Sharing our quarterly engineering notes."),
		scoredRow("fake", 0.7, "My toddler taught me B2B sales."),
		scoredRow("fake", 0.95, "I turned down Google <script>alert(1)</script> for this."),
		{State: scanner.StateNoText},
		{State: scanner.StateError, Err: "boom"},
		{State: scanner.StateIdle},
	}
	rows[0].FromCache = true

	r, err := b.Build(rows, "feed.html")
	if err != nil {
		t.Fatal(err)
	}

	want := Stats{Rows: 6, Scored: 3, Fake: 2, Real: 1, FromCache: 1, NoText: 1, Errors: 1}
	if r.Stats != want {
		t.Fatalf("Stats = %+v, want %+v", r.Stats, want)
	}

	if strings.Contains(r.HTMLBody, "<script>alert") {
		t.Fatal("post text must be escaped")
	}
	i95 := strings.Index(r.HTMLBody, "Fake • 95%")
	i70 := strings.Index(r.HTMLBody, "Fake • 70%")
	i80 := strings.Index(r.HTMLBody, "Real • 80%")
	if i95 < 0 || i70 < 0 || i80 < 0 || !(i95 < i70 && i70 < i80) {
		t.Fatalf("rows out of order: %d %d %d", i95, i70, i80)
	}

	for _, s := range []string{"Fake • 95%", "humblebrag, engagement bait", "quarterly engineering notes"} {
		if !strings.Contains(r.Markdown, s) {
			t.Errorf("markdown missing %q:\n%s", s, r.Markdown)
		}
	}
	if strings.Contains(r.Markdown, "<table") {
		t.Errorf("markdown still has html table:\n%s", r.Markdown)
	}
}

func TestBuild_MaxRowsAndNothingScored(t *testing.T) {
	b, _ := New(1)
	r, err := b.Build([]scanner.RowView{
		scoredRow("real", 0.1, "row-alpha"),
		scoredRow("fake", 0.8, "row-beta"),
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(r.HTMLBody, "row-alpha") || !strings.Contains(r.HTMLBody, "row-beta") {
		t.Fatal("maxRows should keep the most suspicious row only")
	}
	if strings.Contains(r.Markdown, "row-alpha") || !strings.Contains(r.Markdown, "row-beta") {
		t.Fatalf("markdown should list only the kept row:\n%s", r.Markdown)
	}
	if r.Stats.Scored != 2 {
		t.Fatalf("Stats.Scored = %d, truncation must not change the counts", r.Stats.Scored)
	}

	if _, err := b.Build([]scanner.RowView{{State: scanner.StateNoText}}, ""); err != ErrNothingScored {
		t.Fatalf("err = %v, want ErrNothingScored", err)
	}
}

func TestSave(t *testing.T) {
	b, _ := New(0)
	r, err := b.Build([]scanner.RowView{scoredRow("fake", 0.9, "text")}, "")
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path, err := r.Save(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".html" {
		t.Fatalf("path = %s", path)
	}
	md := strings.TrimSuffix(path, ".html") + ".md"
	if _, err := os.Stat(md); err != nil {
		t.Fatalf("markdown not written: %v", err)
	}
}
