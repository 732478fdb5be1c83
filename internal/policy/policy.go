// Package policy holds the pure classification and alert-threshold logic.
// Nothing here touches storage or the clock; callers pass in the current
// record state and get decisions back.
package policy

import (
	"fmt"
	"strings"
	"time"
)

// Category is the triage class assigned to a sender.
type Category string

const (
	CategoryUnknown Category = "unknown"
	CategorySpam    Category = "spam"
	CategoryPrimary Category = "primary"
	CategoryVIP     Category = "vip"
)

// Timing and threshold knobs. DedupWindow bounds duplicate log entries,
// Cooldown bounds how often the engine re-persists a sender, and
// EscalationWindow is the trailing interval for the primary burst check.
const (
	DedupWindow      = 5 * time.Second
	Cooldown         = 2 * time.Second
	EscalationWindow = 60 * time.Second

	// UnknownRepeatCount is the exact message count at which the one-shot
	// repeated-messages alert fires for an uncategorized sender.
	UnknownRepeatCount = 4

	// EscalationCount is the number of events within EscalationWindow that
	// triggers the increased-activity alert for a primary sender.
	EscalationCount = 3

	// BannerMinCount is the minimum message count before an uncategorized
	// sender is offered to the user for manual classification.
	BannerMinCount = 3
)

// Categories lists all valid categories in display order.
func Categories() []Category {
	return []Category{CategoryUnknown, CategoryPrimary, CategoryVIP, CategorySpam}
}

// ParseCategory normalises a user-supplied category string.
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryUnknown:
		return CategoryUnknown, nil
	case CategorySpam:
		return CategorySpam, nil
	case CategoryPrimary:
		return CategoryPrimary, nil
	case CategoryVIP:
		return CategoryVIP, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryUnknown, CategorySpam, CategoryPrimary, CategoryVIP:
		return true
	}
	return false
}

// Suppress reports whether a notification from a sender with category c
// should be suppressed while focus mode is active. VIP senders always pass
// through; everything else is silenced.
func Suppress(c Category) bool {
	return c != CategoryVIP
}

// UnknownRepeatAlert reports whether the one-shot repeated-messages alert
// should fire. It triggers only on the exact transition to
// UnknownRepeatCount so a sender never produces this alert twice.
func UnknownRepeatAlert(c Category, msgCount int) bool {
	return c == CategoryUnknown && msgCount == UnknownRepeatCount
}

// EscalationAlert reports whether the increased-activity alert should fire
// for a primary sender, given the number of events observed within the
// trailing EscalationWindow (including the current one). It may fire more
// than once during a sustained burst.
func EscalationAlert(c Category, recentCount int) bool {
	return c == CategoryPrimary && recentCount >= EscalationCount
}

// BannerEligible reports whether a sender qualifies for the manual
// classification prompt.
func BannerEligible(c Category, msgCount int) bool {
	return c == CategoryUnknown && msgCount >= BannerMinCount
}
