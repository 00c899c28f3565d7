package bridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ibeckermayer/fauxpost/internal/broker"
	"github.com/ibeckermayer/fauxpost/internal/classifier"
	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/store"
)

func newBridge(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	clf := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"label":"real","prob_fake":0.1}`)
	}))
	t.Cleanup(clf.Close)

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	base := clf.URL
	b := broker.New(config.NewMemoryStore(config.Patch{EndpointBaseURL: &base}), db.NewCache(time.Hour), classifier.New(), db)

	cfg := config.Default().Bridge
	srv := httptest.NewServer(NewServer(b, cfg).Handler())
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, srv.Client())
}

func TestClient_RoundTrip(t *testing.T) {
	_, c := newBridge(t)
	ctx := context.Background()

	resp, err := c.Send(ctx, broker.Request{Type: broker.TypeGetConfig})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.Cfg == nil || resp.Cfg.Threshold != 0.5 {
		t.Fatalf("resp = %+v", resp)
	}

	req, _ := broker.NewRequest(broker.TypePredict, broker.PredictPayload{Text: "hello there", Hash: "h"})
	resp, err = c.Send(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.Result == nil || resp.Result.Label != "real" {
		t.Fatalf("resp = %+v", resp)
	}
	resp, _ = c.Send(ctx, req)
	if !resp.FromCache {
		t.Fatalf("expected cache hit: %+v", resp)
	}

	if err := c.Healthz(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestServer_MalformedEnvelopeIs200(t *testing.T) {
	srv, _ := newBridge(t)

	resp, err := http.Post(srv.URL+MessagesPath, "application/json", strings.NewReader(`{{{`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"ok":false`) || !strings.Contains(string(body), "protocol mismatch") {
		t.Fatalf("body = %s", body)
	}
}

func TestServer_CORSForExtensionOrigin(t *testing.T) {
	srv, _ := newBridge(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+MessagesPath, nil)
	req.Header.Set("Origin", "chrome-extension://abcdefghijklmnop")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "chrome-extension://abcdefghijklmnop" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}
}
