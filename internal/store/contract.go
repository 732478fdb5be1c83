package store

import (
	"time"

	"github.com/starford/focusguard/internal/policy"
)

// Directory is the sender-directory contract. Consumers should depend on
// this interface rather than the concrete *DB type to facilitate testing
// with mocks.
type Directory interface {
	GetSender(key string) (*SenderRow, error)
	RecordMessage(key string, now time.Time) (*SenderRow, error)
	SetCategory(key string, cat policy.Category, now time.Time) error
	ListSenders() ([]SenderRow, error)
	SendersByCategory(cat policy.Category) ([]SenderRow, error)
	KeysByCategory(cat policy.Category) (map[string]struct{}, error)
}

// Log is the notification-log contract.
type Log interface {
	AppendNotification(packageName, senderName string, receivedAt time.Time) (*NotificationRow, error)
	CountSince(packageName, senderName string, since time.Time) (int, error)
	ListNotificationsDesc(limit int) ([]NotificationRow, error)
	ClearNotifications() error
}

// Prefs is the key-value preferences contract.
type Prefs interface {
	GetPref(key, fallback string) (string, error)
	SetPref(key, value string) error
	GetPrefBool(key string, fallback bool) (bool, error)
	SetPrefBool(key string, value bool) error
	GetPrefInt64(key string, fallback int64) (int64, error)
	SetPrefInt64(key string, value int64) error
}

// Verify *DB satisfies the contracts at compile time.
var (
	_ Directory = (*DB)(nil)
	_ Log       = (*DB)(nil)
	_ Prefs     = (*DB)(nil)
)
