package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheEntry is a stored model or search response.
type CacheEntry struct {
	Key     string
	Name    string
	Value   string
	Hint    string
	AddedAt time.Time
}

// GetCache returns the value stored under key.
func (s *SQLiteStore) GetCache(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM cache_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query cache: %w", err)
	}
	return value, true, nil
}

// PutCache stores or overwrites an entry.
func (s *SQLiteStore) PutCache(e CacheEntry) error {
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO cache_entries (key, name, value, hint, added_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET name = excluded.name, value = excluded.value,
			hint = excluded.hint, added_at = excluded.added_at
	`, e.Key, e.Name, e.Value, e.Hint, e.AddedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put cache: %w", err)
	}
	return nil
}

// CountCache returns the number of entries stored under name, or all entries
// when name is empty.
func (s *SQLiteStore) CountCache(name string) (int, error) {
	var n int
	var err error
	if name == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE name = ?`, name).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count cache: %w", err)
	}
	return n, nil
}

// PruneCache drops entries added before cutoff and reports how many went.
func (s *SQLiteStore) PruneCache(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE added_at < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
