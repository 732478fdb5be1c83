// Package store provides SQLite-backed persistence for the sender directory,
// the notification log, and the small preferences block.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is bumped on any structural change. Evolution is
// destructive: a version mismatch drops and recreates all tables. Sender
// categorizations are lost on upgrade, which is the accepted trade-off for
// not carrying migration machinery.
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS senders (
	sender_id    TEXT PRIMARY KEY,
	category     TEXT NOT NULL DEFAULT 'unknown',
	msg_count    INTEGER NOT NULL DEFAULT 0,
	last_updated DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_senders_category ON senders(category);

CREATE TABLE IF NOT EXISTS notifications (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	package_name TEXT NOT NULL,
	sender_name  TEXT NOT NULL,
	received_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_sender
	ON notifications(package_name, sender_name, received_at);

CREATE TABLE IF NOT EXISTS prefs (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// DB wraps a sql.DB with triage-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := applySchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

func applySchema(conn *sql.DB) error {
	var current int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("store: read user_version: %w", err)
	}
	if current != 0 && current != schemaVersion {
		// Destructive reset on structural change.
		for _, table := range []string{"senders", "notifications", "prefs"} {
			if _, err := conn.Exec(`DROP TABLE IF EXISTS ` + table); err != nil {
				return fmt.Errorf("store: drop %s: %w", table, err)
			}
		}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	if _, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("store: set user_version: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SenderKey builds the composite sender identity from a source app id and a
// display name. A missing display name collapses to the sentinel "Unknown".
func SenderKey(packageName, senderName string) string {
	if senderName == "" {
		senderName = "Unknown"
	}
	return packageName + ":" + senderName
}

// SplitSenderKey is the inverse of SenderKey. The display name may itself
// contain colons, so only the first separator is significant.
func SplitSenderKey(key string) (packageName, senderName string) {
	packageName, senderName, ok := strings.Cut(key, ":")
	if !ok {
		return key, "Unknown"
	}
	return packageName, senderName
}
