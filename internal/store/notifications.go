package store

import (
	"fmt"
	"time"
)

// NotificationRow represents a row in the notifications table. There is no
// content column: only sender identity and arrival time are ever stored.
type NotificationRow struct {
	ID          int64     `json:"id"`
	PackageName string    `json:"package_name"`
	SenderName  string    `json:"sender_name"`
	ReceivedAt  time.Time `json:"received_at"`
}

// SenderKey returns the composite identity of the row's sender.
func (n NotificationRow) SenderKey() string {
	return SenderKey(n.PackageName, n.SenderName)
}

// AppendNotification inserts a new log entry and returns it with the
// assigned id.
func (db *DB) AppendNotification(packageName, senderName string, receivedAt time.Time) (*NotificationRow, error) {
	res, err := db.conn.Exec(
		`INSERT INTO notifications (package_name, sender_name, received_at) VALUES (?, ?, ?)`,
		packageName, senderName, receivedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: append notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: append notification id: %w", err)
	}
	return &NotificationRow{
		ID:          id,
		PackageName: packageName,
		SenderName:  senderName,
		ReceivedAt:  receivedAt.UTC(),
	}, nil
}

// CountSince returns how many log entries exist for a sender strictly after
// the given instant. Serves both the dedup check and the escalation window.
func (db *DB) CountSince(packageName, senderName string, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM notifications
		WHERE package_name = ? AND sender_name = ? AND received_at > ?
	`, packageName, senderName, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count since: %w", err)
	}
	return n, nil
}

// ListNotificationsDesc returns log entries newest first. A non-positive
// limit returns everything.
func (db *DB) ListNotificationsDesc(limit int) ([]NotificationRow, error) {
	q := `SELECT id, package_name, sender_name, received_at FROM notifications ORDER BY received_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	defer rows.Close()

	var out []NotificationRow
	for rows.Next() {
		var n NotificationRow
		if err := rows.Scan(&n.ID, &n.PackageName, &n.SenderName, &n.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ClearNotifications removes all log entries. The sender directory is
// deliberately untouched: categorizations survive a log clear.
func (db *DB) ClearNotifications() error {
	if _, err := db.conn.Exec(`DELETE FROM notifications`); err != nil {
		return fmt.Errorf("store: clear notifications: %w", err)
	}
	return nil
}
