// Package catalog is a SQLite-backed item store that answers selection
// service lookups by display-name substring.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/runger/singleselect/internal/item"
)

// DefaultLimit caps the number of items returned by Search.
const DefaultLimit = 100

// Catalog stores items in SQLite. It implements lookup.Searcher.
type Catalog struct {
	db        *sql.DB
	acc       item.Accessor
	limit     int
	filter    *Filter
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLimit sets the maximum number of search results.
func WithLimit(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithFilter drops search results the filter rejects.
func WithFilter(f *Filter) Option {
	return func(c *Catalog) { c.filter = f }
}

// WithAccessor sets how names are read from stored items.
func WithAccessor(acc item.Accessor) Option {
	return func(c *Catalog) { c.acc = acc }
}

// Open opens (creating if needed) the catalog database at path.
func Open(path string, opts ...Option) (*Catalog, error) {
	if path == "" {
		return nil, errors.New("catalog: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("catalog: create directory: %w", err)
	}

	// modernc.org/sqlite uses _pragma=name(value) syntax
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}

	c := &Catalog{
		db:    db,
		acc:   item.DefaultAccessor(),
		limit: DefaultLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if err := c.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	return c, nil
}

// Close closes the database. It is safe to call Close multiple times.
func (c *Catalog) Close() error {
	c.closeOnce.Do(func() {
		_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		c.closeErr = c.db.Close()
	})
	return c.closeErr
}

// Add stores items in one transaction and returns how many were written.
// The display name is indexed using the catalog's accessor.
func (c *Catalog) Add(ctx context.Context, items ...item.Item) (int, error) {
	return c.write(ctx, false, items)
}

// Replace swaps the stored items for items. On error the previous contents
// are kept.
func (c *Catalog) Replace(ctx context.Context, items ...item.Item) (int, error) {
	return c.write(ctx, true, items)
}

func (c *Catalog) write(ctx context.Context, replace bool, items []item.Item) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: add: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
			return 0, fmt.Errorf("catalog: clear: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (name, payload, kind, added_at_unix_ms) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("catalog: add: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	n := 0
	for _, it := range items {
		if !it.IsDefined() {
			continue
		}
		payload, err := json.Marshal(it)
		if err != nil {
			return 0, fmt.Errorf("catalog: add: encode item: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.acc.Name(it), string(payload), storedKind(it), now); err != nil {
			return 0, fmt.Errorf("catalog: add: %w", err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: add: commit: %w", err)
	}
	return n, nil
}

// Search returns items whose display name contains text, case-insensitively
// for ASCII, in insertion order. An empty text matches everything.
// Top-level dates come back as Date items; dates nested inside records are
// returned as RFC 3339 strings.
func (c *Catalog) Search(ctx context.Context, text string) ([]item.Item, error) {
	query := `SELECT payload, kind FROM items WHERE name LIKE ? ESCAPE '\' ORDER BY id`
	args := []any{"%" + escapeLike(text) + "%"}
	if c.filter == nil {
		query += ` LIMIT ?`
		args = append(args, c.limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	out := make([]item.Item, 0)
	for rows.Next() && len(out) < c.limit {
		var payload, kind string
		if err := rows.Scan(&payload, &kind); err != nil {
			return nil, fmt.Errorf("catalog: search: %w", err)
		}
		it, err := decodeItem(payload, kind)
		if err != nil {
			return nil, fmt.Errorf("catalog: search: decode item: %w", err)
		}
		if c.filter != nil && !c.filter.Match(c.acc, it) {
			continue
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	return out, nil
}

// Count returns the number of stored items.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

const kindDate = "date"

// storedKind tags top-level dates, whose JSON payload is a plain string.
func storedKind(it item.Item) string {
	if it.Kind() == item.KindDate {
		return kindDate
	}
	return ""
}

func decodeItem(payload, kind string) (item.Item, error) {
	var it item.Item
	if err := json.Unmarshal([]byte(payload), &it); err != nil {
		return item.Item{}, err
	}
	if kind == kindDate {
		t, err := time.Parse(time.RFC3339Nano, it.String())
		if err != nil {
			return item.Item{}, err
		}
		return item.Date(t), nil
	}
	return it, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (c *Catalog) migrate(ctx context.Context) error {
	currentVersion := 0
	row := c.db.QueryRowContext(ctx, `SELECT version FROM schema_meta ORDER BY version DESC LIMIT 1`)
	if err := row.Scan(&currentVersion); err != nil {
		if !errors.Is(err, sql.ErrNoRows) && !strings.Contains(err.Error(), "no such table") {
			return fmt.Errorf("read schema version: %w", err)
		}
		currentVersion = 0
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{version: 1, sql: migrationV1},
		{version: 2, sql: migrationV2},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := c.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.version, err)
		}
		_, err := c.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO schema_meta (version, applied_at_unix_ms) VALUES (?, ?)
		`, m.version, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
  version INTEGER PRIMARY KEY,
  applied_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  payload TEXT NOT NULL,
  added_at_unix_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_name ON items(name);
`

// Top-level dates round-trip as Date items rather than strings.
const migrationV2 = `
ALTER TABLE items ADD COLUMN kind TEXT NOT NULL DEFAULT '';
`
