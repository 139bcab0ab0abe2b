package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CacheSet stores value (JSON-encoded) under key with the given TTL,
// replacing any previous entry.
func (s *Store) CacheSet(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO kv_cache (key, value, created_at, ttl_ms) VALUES (?, ?, ?, ?)`,
		key, string(data), s.now().UnixMilli(), ttl.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("writing cache key %q: %w", key, err)
	}
	return nil
}

// CacheGet loads the entry under key into dest. A missing or expired entry
// yields (false, nil); an expired entry is deleted on the spot (lazy
// eviction), so storage does not accumulate keys nobody writes again.
func (s *Store) CacheGet(key string, dest any) (bool, error) {
	var (
		value     string
		createdAt int64
		ttlMs     int64
	)
	err := s.db.QueryRow(
		`SELECT value, created_at, ttl_ms FROM kv_cache WHERE key = ?`, key,
	).Scan(&value, &createdAt, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cache key %q: %w", key, err)
	}

	if s.now().UnixMilli()-createdAt > ttlMs {
		if _, err := s.db.Exec(`DELETE FROM kv_cache WHERE key = ?`, key); err != nil {
			return false, fmt.Errorf("evicting expired cache key %q: %w", key, err)
		}
		return false, nil
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return false, fmt.Errorf("decoding cache value for %q: %w", key, err)
	}
	return true, nil
}

// CacheRemove deletes one entry; removing a missing key is not an error.
func (s *Store) CacheRemove(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_cache WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("removing cache key %q: %w", key, err)
	}
	return nil
}

// CacheClear empties the ephemeral tier.
func (s *Store) CacheClear() error {
	_, err := s.db.Exec(`DELETE FROM kv_cache`)
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// CacheSweep removes every expired entry and returns how many were
// deleted.
func (s *Store) CacheSweep() (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM kv_cache WHERE created_at + ttl_ms < ?`, s.now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweeping cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// RunCacheSweeper sweeps expired entries on a fixed interval until ctx is
// cancelled, bounding storage growth when no one reads a stale key.
func (s *Store) RunCacheSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CacheSweep()
			if err != nil {
				slog.Error("cache sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("cache sweep evicted entries", "count", n)
			}
		}
	}
}
