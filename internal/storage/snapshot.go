package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ostanin/pdeck/internal/prompt"
)

// snapshotVersion tags the stored snapshot format.
const snapshotVersion = "1"

// SaveSnapshot replaces the permanent snapshot wholesale with records, in
// order. The old snapshot and the new one never mix: the swap happens in
// one transaction.
func (s *Store) SaveSnapshot(records []prompt.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM snapshot_prompts`); err != nil {
		return fmt.Errorf("clearing old snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO snapshot_prompts (position, id, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", r.ID, err)
		}
		if _, err := stmt.Exec(i, r.ID, string(data)); err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO snapshot_meta (id, last_updated, version) VALUES (1, ?, ?)`,
		s.now().UnixMilli(), snapshotVersion,
	); err != nil {
		return fmt.Errorf("updating snapshot meta: %w", err)
	}

	return tx.Commit()
}

// LoadSnapshot returns the stored records in their original order and the
// time of the last snapshot write. An absent snapshot yields an empty
// slice and zero time, not an error.
func (s *Store) LoadSnapshot() ([]prompt.Record, time.Time, error) {
	rows, err := s.db.Query(`SELECT data FROM snapshot_prompts ORDER BY position`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("querying snapshot: %w", err)
	}
	defer rows.Close()

	var records []prompt.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, time.Time{}, err
		}
		var r prompt.Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, time.Time{}, fmt.Errorf("decoding snapshot record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}

	lastUpdated, err := s.snapshotLastUpdated()
	if err != nil {
		return nil, time.Time{}, err
	}
	return records, lastUpdated, nil
}

// ClearSnapshot deletes the permanent snapshot and its metadata.
func (s *Store) ClearSnapshot() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning clear transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM snapshot_prompts`); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM snapshot_meta`); err != nil {
		return fmt.Errorf("clearing snapshot meta: %w", err)
	}
	return tx.Commit()
}

// HasSnapshot reports whether a non-empty snapshot exists.
func (s *Store) HasSnapshot() (bool, error) {
	count, _, err := s.SnapshotInfo()
	return count > 0, err
}

// SnapshotInfo returns the record count and last update time without
// loading the records.
func (s *Store) SnapshotInfo() (int, time.Time, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshot_prompts`).Scan(&count); err != nil {
		return 0, time.Time{}, fmt.Errorf("counting snapshot records: %w", err)
	}
	lastUpdated, err := s.snapshotLastUpdated()
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, lastUpdated, nil
}

func (s *Store) snapshotLastUpdated() (time.Time, error) {
	var ms int64
	err := s.db.QueryRow(`SELECT last_updated FROM snapshot_meta WHERE id = 1`).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading snapshot meta: %w", err)
	}
	return time.UnixMilli(ms), nil
}
