package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Preference keys for the focus session and reminder settings.
const (
	PrefFocusActive       = "focus_mode_active"
	PrefFocusStartMs      = "focus_start_time"
	PrefDailyFocusTotalMs = "daily_focus_total"
	PrefLastResetDay      = "last_reset_day"
	PrefMilestonesEnabled = "milestones_enabled"
)

// GetPref returns the raw value for a key, or fallback when unset.
func (db *DB) GetPref(key, fallback string) (string, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get pref %s: %w", key, err)
	}
	return v, nil
}

// SetPref stores a raw value for a key, replacing any previous value.
func (db *DB) SetPref(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: set pref %s: %w", key, err)
	}
	return nil
}

// GetPrefBool returns a boolean preference, or fallback when unset or
// malformed.
func (db *DB) GetPrefBool(key string, fallback bool) (bool, error) {
	raw, err := db.GetPref(key, strconv.FormatBool(fallback))
	if err != nil {
		return fallback, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, nil
	}
	return v, nil
}

// SetPrefBool stores a boolean preference.
func (db *DB) SetPrefBool(key string, value bool) error {
	return db.SetPref(key, strconv.FormatBool(value))
}

// GetPrefInt64 returns an integer preference, or fallback when unset or
// malformed.
func (db *DB) GetPrefInt64(key string, fallback int64) (int64, error) {
	raw, err := db.GetPref(key, strconv.FormatInt(fallback, 10))
	if err != nil {
		return fallback, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback, nil
	}
	return v, nil
}

// SetPrefInt64 stores an integer preference.
func (db *DB) SetPrefInt64(key string, value int64) error {
	return db.SetPref(key, strconv.FormatInt(value, 10))
}
