// Package journal persists the most recent session summary locally.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stillpoint/stillpoint/internal/coach"
)

// Cache is a single-slot durable store for the latest session summary. A
// later Save silently replaces an earlier one; there is no expiry and no
// versioning. It is a rehydration aid after an interrupted run, not a
// system of record.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the cache database at dbPath.
func OpenCache(dbPath string) (*Cache, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "stillpoint.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	cache := &Cache{db: db}
	if err := cache.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return cache, nil
}

func (c *Cache) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := c.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS summary_cache (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			payload TEXT NOT NULL,
			saved_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create summary_cache table: %w", err)
	}

	return nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Save overwrites the single slot with summary.
func (c *Cache) Save(summary coach.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	_, err = c.db.Exec(
		`INSERT INTO summary_cache(slot, payload, saved_at) VALUES(1, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// Load returns the most recently saved summary, or ok=false if the slot has
// never been written.
func (c *Cache) Load() (coach.Summary, bool, error) {
	row := c.db.QueryRow(`SELECT payload FROM summary_cache WHERE slot = 1`)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return coach.Summary{}, false, nil
		}
		return coach.Summary{}, false, fmt.Errorf("load summary: %w", err)
	}

	var summary coach.Summary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return coach.Summary{}, false, fmt.Errorf("decode cached summary: %w", err)
	}
	return summary, true, nil
}
