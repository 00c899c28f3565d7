package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ibeckermayer/fauxpost/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func sampleResult() types.ClassificationResult {
	return types.NewClassificationResult("fake", 0.92, "m1", []string{"urgency"})
}

func TestSQLiteCache_HitMissExpiry(t *testing.T) {
	db := openTestDB(t)
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := db.NewCache(24 * time.Hour).WithClock(clk.Now)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "abc"); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, "abc", sampleResult()); err != nil {
		t.Fatal(err)
	}

	clk.Advance(23 * time.Hour)
	entry, ok, err := c.Get(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("expected hit: ok=%v err=%v", ok, err)
	}
	got := entry.Result
	if entry.Fingerprint != "abc" {
		t.Fatalf("fingerprint = %q", entry.Fingerprint)
	}
	if got.Label != types.LabelFake || got.ProbFake != 0.92 || got.ModelVersion != "m1" {
		t.Fatalf("unexpected result %+v", got)
	}

	// exactly TTL old is expired
	clk.Advance(time.Hour)
	if _, ok, _ := c.Get(ctx, "abc"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if n, _ := c.Len(ctx); n != 1 {
		t.Fatalf("expired entry must stay stored, %d rows", n)
	}
}

func TestSQLiteCache_PutOverwrites(t *testing.T) {
	db := openTestDB(t)
	c := db.NewCache(time.Hour)
	ctx := context.Background()

	if err := c.Put(ctx, "k", sampleResult()); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, "k", types.NewClassificationResult("real", 0.1, "", nil)); err != nil {
		t.Fatal(err)
	}
	entry, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got := entry.Result; got.Label != types.LabelReal || got.ModelVersion != types.UnknownModelVersion {
		t.Fatalf("got %+v", got)
	}
	if n, _ := c.Len(ctx); n != 1 {
		t.Fatalf("expected one row, got %d", n)
	}
}

func TestSQLiteCache_Purge(t *testing.T) {
	db := openTestDB(t)
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := db.NewCache(time.Hour).WithClock(clk.Now)
	ctx := context.Background()

	_ = c.Put(ctx, "old", sampleResult())
	clk.Advance(2 * time.Hour)
	_ = c.Put(ctx, "new", sampleResult())

	n, err := c.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d rows, want 1", n)
	}
	if _, ok, _ := c.Get(ctx, "new"); !ok {
		t.Fatal("fresh entry purged")
	}
}

func TestSQLiteCache_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "fauxpost.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := db.NewCache(time.Hour).Put(ctx, "fp", sampleResult()); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, ok, err := db.NewCache(time.Hour).Get(ctx, "fp"); err != nil || !ok {
		t.Fatalf("entry lost after reopen: ok=%v err=%v", ok, err)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	c := NewMemoryCache(24*time.Hour, clk.Now)
	ctx := context.Background()

	_ = c.Put(ctx, "fp", sampleResult())
	if _, ok, _ := c.Get(ctx, "fp"); !ok {
		t.Fatal("expected hit")
	}
	clk.Advance(25 * time.Hour)
	if _, ok, _ := c.Get(ctx, "fp"); ok {
		t.Fatal("expected miss after ttl")
	}
	if c.Len() != 1 {
		t.Fatal("expired entry must stay stored")
	}
}

func TestOutbox_EnqueueRetryAck(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p := types.NewFeedbackPayload("some post", sampleResult(), types.LabelReal)
	p.Context = &types.FeedbackContext{TS: 1234}

	id, err := db.Enqueue(ctx, p, errors.New("connection refused"))
	if err != nil {
		t.Fatal(err)
	}

	pending, err := db.Pending(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("pending = %+v", pending)
	}
	q := pending[0]
	if q.Payload.UserLabel != types.LabelReal || q.Payload.OurLabel != types.LabelFake {
		t.Fatalf("payload labels lost: %+v", q.Payload)
	}
	if q.Payload.Context == nil || q.Payload.Context.TS != 1234 {
		t.Fatalf("context lost: %+v", q.Payload.Context)
	}
	if q.LastError != "connection refused" {
		t.Fatalf("last error = %q", q.LastError)
	}

	if err := db.Retry(ctx, id, errors.New("timeout")); err != nil {
		t.Fatal(err)
	}
	pending, _ = db.Pending(ctx, 10)
	if pending[0].Attempts != 1 || pending[0].LastError != "timeout" {
		t.Fatalf("retry not recorded: %+v", pending[0])
	}

	if err := db.Ack(ctx, id); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.OutboxLen(ctx); n != 0 {
		t.Fatalf("outbox not drained, %d left", n)
	}
}

func TestSaveExchangeTo(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveExchangeTo(dir, Exchange{
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Provider:  "remote",
		Request:   `{"text":"hi"}`,
		Response:  `{"label":"real"}`,
		Status:    200,
	})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("written outside dir: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var back Exchange
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Provider != "remote" || back.Status != 200 {
		t.Fatalf("got %+v", back)
	}
}
