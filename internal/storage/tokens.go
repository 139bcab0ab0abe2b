package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveToken persists an access token keyed by name. Satisfies
// bitable.TokenStore.
func (s *Store) SaveToken(name, token string, obtainedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO auth_tokens (name, token, obtained_at) VALUES (?, ?, ?)`,
		name, token, obtainedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving token %q: %w", name, err)
	}
	return nil
}

// LoadToken returns the persisted token and when it was obtained; ok is
// false when no token is stored under name.
func (s *Store) LoadToken(name string) (string, time.Time, bool, error) {
	var (
		token string
		ms    int64
	)
	err := s.db.QueryRow(
		`SELECT token, obtained_at FROM auth_tokens WHERE name = ?`, name,
	).Scan(&token, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("loading token %q: %w", name, err)
	}
	return token, time.UnixMilli(ms), true, nil
}

// DeleteToken removes the persisted token; deleting a missing token is not
// an error.
func (s *Store) DeleteToken(name string) error {
	_, err := s.db.Exec(`DELETE FROM auth_tokens WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting token %q: %w", name, err)
	}
	return nil
}
