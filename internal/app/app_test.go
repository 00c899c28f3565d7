package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ibeckermayer/fauxpost/internal/broker"
	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/scanner"
)

const feedPage = `<html><body>
<div class="feed-shared-update-v2" data-urn="urn:li:activity:10">
	<div class="feed-shared-update-v2__commentary">I quit my job today to follow my passion for spreadsheets.</div>
</div>
<div class="feed-shared-update-v2" data-urn="urn:li:activity:11">
	<div class="feed-shared-update-v2__commentary">Ok.</div>
</div>
</body></html>`

type classifierServer struct {
	*httptest.Server
	predicts  atomic.Int32
	feedbacks atomic.Int32
	down      atomic.Bool
}

func newApp(t *testing.T) (*App, *classifierServer) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))

	cs := &classifierServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cs.down.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/predict":
			cs.predicts.Add(1)
			io.WriteString(w, `{"label":"fake","prob_fake":0.9,"model_version":"m7","top_signals":["humblebrag"]}`)
		case "/feedback":
			cs.feedbacks.Add(1)
			io.WriteString(w, `{"status":"stored"}`)
		case "/health":
			io.WriteString(w, `{"status":"ok"}`)
		}
	}))
	t.Cleanup(cs.Close)

	settings := config.Default()
	settings.Storage.DBPath = filepath.Join(dir, "fauxpost.db")
	settingsPath := filepath.Join(dir, "config.toml")
	if err := settings.SaveFile(settingsPath); err != nil {
		t.Fatal(err)
	}

	a, err := New(settings, settingsPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })

	base := cs.URL
	if _, err := a.SetConfig(context.Background(), config.Patch{EndpointBaseURL: &base}); err != nil {
		t.Fatal(err)
	}
	return a, cs
}

func TestScanDocumentAndReport(t *testing.T) {
	a, cs := newApp(t)
	ctx := context.Background()

	views, err := a.ScanDocument(ctx, strings.NewReader(feedPage))
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d rows", len(views))
	}
	if views[0].State != scanner.StateScored || views[0].Chip != "Fake • 90%" {
		t.Fatalf("first row = %+v", views[0])
	}
	if views[1].State != scanner.StateNoText {
		t.Fatalf("short post = %+v", views[1])
	}

	// the same page again is answered from the sqlite cache
	again, err := a.ScanDocument(ctx, strings.NewReader(feedPage))
	if err != nil {
		t.Fatal(err)
	}
	if !again[0].FromCache || cs.predicts.Load() != 1 {
		t.Fatalf("second scan: fromCache=%v predicts=%d", again[0].FromCache, cs.predicts.Load())
	}

	path, err := a.Report(views, "feed.html", false)
	if err != nil {
		t.Fatal(err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "spreadsheets") {
		t.Fatalf("report missing post text")
	}
}

func TestConfigPersistsToSettingsFile(t *testing.T) {
	a, _ := newApp(t)
	ctx := context.Background()

	th := 0.8
	if _, err := a.SetConfig(ctx, config.Patch{Threshold: &th}); err != nil {
		t.Fatal(err)
	}
	got, err := a.GetConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Threshold != 0.8 || !strings.HasPrefix(got.EndpointBaseURL, "http://127.0.0.1") {
		t.Fatalf("config = %+v", got)
	}

	bad := 3.0
	if _, err := a.SetConfig(ctx, config.Patch{Threshold: &bad}); err == nil {
		t.Fatal("expected invalid threshold to be rejected")
	}
}

func TestFeedbackQueuedThenFlushed(t *testing.T) {
	a, cs := newApp(t)
	ctx := context.Background()

	cs.down.Store(true)
	req, _ := broker.NewRequest(broker.TypeFeedback, map[string]any{"text": "post", "user_label": "real"})
	resp, err := a.Broker().Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK || !strings.Contains(string(resp.Data), "queued_local") {
		t.Fatalf("resp = %+v", resp)
	}

	cs.down.Store(false)
	rep, err := a.FlushFeedback(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Delivered != 1 || cs.feedbacks.Load() != 1 {
		t.Fatalf("flush = %+v, feedbacks = %d", rep, cs.feedbacks.Load())
	}

	status, err := a.Health(ctx)
	if err != nil || !strings.Contains(status, "ok") {
		t.Fatalf("health = %q, %v", status, err)
	}
}
