package api

import (
	"time"

	"github.com/starford/focusguard/internal/store"
)

// IngestEventRequest is the request body for posting a raw notification
// event. Note there is no content/body field; only sender identity crosses
// this boundary.
type IngestEventRequest struct {
	PackageName  string `json:"package_name"`
	Title        string `json:"title"`
	Clearable    bool   `json:"clearable"`
	GroupSummary bool   `json:"group_summary"`
}

// IngestEventResponse reports the synchronous engine decision so the caller
// can apply (idempotent) cancellation on its side.
type IngestEventResponse struct {
	Decision string `json:"decision"`
}

// CategorizeRequest is the request body for assigning a sender category.
type CategorizeRequest struct {
	Category string `json:"category"`
}

// SenderItem is a sender-directory record in API responses.
type SenderItem struct {
	SenderID    string    `json:"sender_id"`
	Category    string    `json:"category"`
	MsgCount    int       `json:"msg_count"`
	LastUpdated time.Time `json:"last_updated"`
}

func senderItem(s store.SenderRow) SenderItem {
	return SenderItem{
		SenderID:    s.SenderID,
		Category:    string(s.Category),
		MsgCount:    s.MsgCount,
		LastUpdated: s.LastUpdated,
	}
}

// SenderListResponse wraps the sender directory listing.
type SenderListResponse struct {
	Senders []SenderItem `json:"senders"`
}

// NotificationListResponse wraps a list of log entries.
type NotificationListResponse struct {
	Notifications []store.NotificationRow `json:"notifications"`
}

// ViewResponse wraps one live partition.
type ViewResponse struct {
	Category      string                  `json:"category"`
	Notifications []store.NotificationRow `json:"notifications"`
}

// FocusRequest is the request body for toggling focus mode.
type FocusRequest struct {
	Active bool `json:"active"`
}

// FocusResponse reports focus state and accounting in milliseconds.
type FocusResponse struct {
	Active           bool   `json:"active"`
	CurrentSessionMs int64  `json:"current_session_ms"`
	DailyTotalMs     int64  `json:"daily_total_ms"`
	Summary          string `json:"summary"`
}

// MilestonesRequest is the request body for the reminder toggle.
type MilestonesRequest struct {
	Enabled bool `json:"enabled"`
}

// BannerResponse carries the next classification-prompt candidate; Sender
// is null when nothing is eligible.
type BannerResponse struct {
	Sender *SenderItem `json:"sender"`
}

// DismissBannerRequest is the request body for dismissing the prompt.
type DismissBannerRequest struct {
	SenderID string `json:"sender_id"`
}
