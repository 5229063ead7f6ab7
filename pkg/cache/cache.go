// Package cache implements the response cache the orchestrator consults
// before Understanding and writes to after a confident success (spec
// §4.1): keyed by SHA-256 of the normalized query plus the knowledge-base
// fingerprint.
//
// No example repo in the pack exercises modernc.org/sqlite directly, but
// it is already part of this module's dependency stack (a pure-Go SQLite
// driver, avoiding cgo); SQLiteCache uses it the idiomatic database/sql
// way — a driver import for its side effect plus the standard sql.DB
// handle — to give the response cache real persistence across restarts.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/docuqa-dev/docuqa/pkg/docuqa"
)

// Cache is the response-cache collaborator. Get reports whether key was
// present; Put is atomic per key.
type Cache interface {
	Get(ctx context.Context, key string) (docuqa.Response, bool, error)
	Put(ctx context.Context, key string, resp docuqa.Response) error
}

// Key derives the cache key from the normalized query and the knowledge
// base's fingerprint, per spec §4.1.
func Key(normalizedQuery, kbFingerprint string) string {
	sum := sha256.Sum256([]byte(normalizedQuery + "\x00" + kbFingerprint))
	return hex.EncodeToString(sum[:])
}

// Normalize lowercases and collapses whitespace, the canonical form the
// cache key is derived from.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// InMemoryCache is a process-local Cache backed by a plain map, the
// default for tests and standalone runs.
type InMemoryCache struct {
	mu    sync.RWMutex
	store map[string]docuqa.Response
}

// NewInMemory builds an empty InMemoryCache.
func NewInMemory() *InMemoryCache {
	return &InMemoryCache{store: make(map[string]docuqa.Response)}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (docuqa.Response, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp, ok := c.store[key]
	return resp, ok, nil
}

func (c *InMemoryCache) Put(ctx context.Context, key string, resp docuqa.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = resp
	return nil
}

// SQLiteCache persists responses to a single-table SQLite database,
// giving the cache durability across process restarts.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) a SQLite-backed cache at path.
// Use ":memory:" for an ephemeral database useful in tests.
func NewSQLite(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS response_cache (
		key TEXT PRIMARY KEY,
		response TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (docuqa.Response, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, `SELECT response FROM response_cache WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return docuqa.Response{}, false, nil
	}
	if err != nil {
		return docuqa.Response{}, false, fmt.Errorf("read cache: %w", err)
	}

	var resp docuqa.Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return docuqa.Response{}, false, fmt.Errorf("decode cached response: %w", err)
	}
	return resp, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, key string, resp docuqa.Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response for cache: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO response_cache (key, response) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET response = excluded.response`,
		key, string(raw))
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
