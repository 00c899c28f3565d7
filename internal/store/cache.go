package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ibeckermayer/fauxpost/internal/types"
)

// CacheEntry is a stored classification keyed by post fingerprint
type CacheEntry struct {
	Fingerprint string                     `json:"fingerprint"`
	StoredAtMs  int64                      `json:"storedAt"`
	Result      types.ClassificationResult `json:"result"`
}

// Valid reports whether the entry is still within ttl at now
func (e CacheEntry) Valid(now time.Time, ttl time.Duration) bool {
	return now.UnixMilli()-e.StoredAtMs < ttl.Milliseconds()
}

// Cache maps fingerprints to results. Expiry is lazy: an expired entry reads as
// absent but stays stored until Put replaces it.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (CacheEntry, bool, error)
	Put(ctx context.Context, fingerprint string, result types.ClassificationResult) error
}

// SQLiteCache is the durable Cache backed by the scan_cache table
type SQLiteCache struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

// NewCache returns the durable cache. ttl <= 0 falls back to 24h.
func (s *DB) NewCache(ttl time.Duration) *SQLiteCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SQLiteCache{db: s, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source
func (c *SQLiteCache) WithClock(now func() time.Time) *SQLiteCache {
	c.now = now
	return c
}

func (c *SQLiteCache) Get(ctx context.Context, fingerprint string) (CacheEntry, bool, error) {
	var raw string
	entry := CacheEntry{Fingerprint: fingerprint}
	err := c.db.db.QueryRowContext(ctx,
		`SELECT stored_at_ms, result FROM scan_cache WHERE fingerprint = ?`, fingerprint,
	).Scan(&entry.StoredAtMs, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("failed to read cache: %w", err)
	}
	if !entry.Valid(c.now(), c.ttl) {
		return CacheEntry{}, false, nil
	}

	if err := json.Unmarshal([]byte(raw), &entry.Result); err != nil {
		// unreadable rows are a miss and get overwritten by the next Put
		return CacheEntry{}, false, nil
	}
	return entry, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, fingerprint string, result types.ClassificationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = c.db.db.ExecContext(ctx, `
		INSERT INTO scan_cache (fingerprint, stored_at_ms, result) VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET stored_at_ms = excluded.stored_at_ms, result = excluded.result`,
		fingerprint, c.now().UnixMilli(), string(data))
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Len returns the number of stored rows, expired or not
func (c *SQLiteCache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_cache`).Scan(&n)
	return n, err
}

// Purge deletes every expired row and returns how many were removed. Lookups
// never do this; it is an explicit maintenance operation.
func (c *SQLiteCache) Purge(ctx context.Context) (int64, error) {
	cutoff := c.now().UnixMilli() - c.ttl.Milliseconds()
	res, err := c.db.db.ExecContext(ctx, `DELETE FROM scan_cache WHERE stored_at_ms <= ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MemoryCache is an in-process Cache
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{entries: make(map[string]CacheEntry), ttl: ttl, now: now}
}

func (c *MemoryCache) Get(ctx context.Context, fingerprint string) (CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok || !e.Valid(c.now(), c.ttl) {
		return CacheEntry{}, false, nil
	}
	return e, true, nil
}

func (c *MemoryCache) Put(ctx context.Context, fingerprint string, result types.ClassificationResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = CacheEntry{Fingerprint: fingerprint, StoredAtMs: c.now().UnixMilli(), Result: result}
	return nil
}

// Len returns the number of entries, expired or not
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
