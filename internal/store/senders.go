package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/focusguard/internal/apperr"
	"github.com/starford/focusguard/internal/policy"
)

// SenderRow represents a row in the senders table.
type SenderRow struct {
	SenderID    string
	Category    policy.Category
	MsgCount    int
	LastUpdated time.Time
}

// GetSender returns the record for a sender key, or apperr.ErrNotFound.
func (db *DB) GetSender(key string) (*SenderRow, error) {
	row := db.conn.QueryRow(
		`SELECT sender_id, category, msg_count, last_updated FROM senders WHERE sender_id = ?`, key)
	var s SenderRow
	var cat string
	if err := row.Scan(&s.SenderID, &cat, &s.MsgCount, &s.LastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: get sender: %w", err)
	}
	s.Category = parseStoredCategory(cat)
	return &s, nil
}

// RecordMessage increments a sender's message count, creating the record
// with the unknown category on first contact. The increment is a single
// read-modify-write statement so a concurrent SetCategory never loses its
// categorization to a stale overwrite. Returns the post-increment record.
func (db *DB) RecordMessage(key string, now time.Time) (*SenderRow, error) {
	row := db.conn.QueryRow(`
		INSERT INTO senders (sender_id, category, msg_count, last_updated)
		VALUES (?, 'unknown', 1, ?)
		ON CONFLICT(sender_id) DO UPDATE SET
			msg_count    = msg_count + 1,
			last_updated = excluded.last_updated
		RETURNING sender_id, category, msg_count, last_updated
	`, key, now.UTC())
	var s SenderRow
	var cat string
	if err := row.Scan(&s.SenderID, &cat, &s.MsgCount, &s.LastUpdated); err != nil {
		return nil, fmt.Errorf("store: record message: %w", err)
	}
	s.Category = parseStoredCategory(cat)
	return &s, nil
}

// SetCategory assigns a category to a sender, creating the record if it does
// not exist yet. The message count is never touched here.
func (db *DB) SetCategory(key string, cat policy.Category, now time.Time) error {
	if !cat.Valid() {
		return fmt.Errorf("store: set category: %w: %q", apperr.ErrInvalid, cat)
	}
	_, err := db.conn.Exec(`
		INSERT INTO senders (sender_id, category, msg_count, last_updated)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(sender_id) DO UPDATE SET
			category     = excluded.category,
			last_updated = excluded.last_updated
	`, key, string(cat), now.UTC())
	if err != nil {
		return fmt.Errorf("store: set category: %w", err)
	}
	return nil
}

// ListSenders returns all sender records ordered by last update, newest
// first.
func (db *DB) ListSenders() ([]SenderRow, error) {
	rows, err := db.conn.Query(
		`SELECT sender_id, category, msg_count, last_updated FROM senders ORDER BY last_updated DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list senders: %w", err)
	}
	defer rows.Close()
	return scanSenders(rows)
}

// SendersByCategory returns all sender records with the given category.
func (db *DB) SendersByCategory(cat policy.Category) ([]SenderRow, error) {
	rows, err := db.conn.Query(
		`SELECT sender_id, category, msg_count, last_updated FROM senders WHERE category = ? ORDER BY last_updated DESC`,
		string(cat))
	if err != nil {
		return nil, fmt.Errorf("store: senders by category: %w", err)
	}
	defer rows.Close()
	return scanSenders(rows)
}

// KeysByCategory returns the set of sender keys with the given category.
// Used to rebuild the in-memory VIP snapshot.
func (db *DB) KeysByCategory(cat policy.Category) (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT sender_id FROM senders WHERE category = ?`, string(cat))
	if err != nil {
		return nil, fmt.Errorf("store: keys by category: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out[k] = struct{}{}
	}
	return out, rows.Err()
}

func scanSenders(rows *sql.Rows) ([]SenderRow, error) {
	var out []SenderRow
	for rows.Next() {
		var s SenderRow
		var cat string
		if err := rows.Scan(&s.SenderID, &cat, &s.MsgCount, &s.LastUpdated); err != nil {
			return nil, err
		}
		s.Category = parseStoredCategory(cat)
		out = append(out, s)
	}
	return out, rows.Err()
}

// parseStoredCategory tolerates rows written by older builds: anything
// unrecognised degrades to unknown rather than failing the read.
func parseStoredCategory(s string) policy.Category {
	cat, err := policy.ParseCategory(s)
	if err != nil {
		return policy.CategoryUnknown
	}
	return cat
}
