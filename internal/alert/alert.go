// Package alert defines the host boundary for user-visible alerts.
package alert

import "log/slog"

// Notifier is implemented by whatever can surface an alert to the user.
// Implementations must tolerate being unable to display anything (missing
// permission): failures are swallowed, the feature degrades to no-alert.
type Notifier interface {
	// RepeatedMessages is the one-shot notice that an uncategorized sender
	// keeps messaging.
	RepeatedMessages(senderName, appLabel string)
	// IncreasedActivity signals a burst from a primary sender.
	IncreasedActivity(senderName, appLabel string)
	// FocusMilestone reminds the user how long the current session has run.
	FocusMilestone(hours int)
}

// LogNotifier writes alerts to the structured log. It is both the fallback
// when no host notifier is wired and the degraded path when one is.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n *LogNotifier) RepeatedMessages(senderName, appLabel string) {
	n.logger().Info("alert: repeated messages",
		slog.String("sender", senderName),
		slog.String("app", appLabel))
}

func (n *LogNotifier) IncreasedActivity(senderName, appLabel string) {
	n.logger().Info("alert: increased activity",
		slog.String("sender", senderName),
		slog.String("app", appLabel))
}

func (n *LogNotifier) FocusMilestone(hours int) {
	n.logger().Info("alert: focus milestone",
		slog.Int("hours", hours))
}

var _ Notifier = (*LogNotifier)(nil)

// Labels resolves a source app id to a human-readable label, falling back
// to the id itself when no mapping is known.
type Labels map[string]string

// Resolve returns the label for an app id, or the id unchanged.
func (l Labels) Resolve(appID string) string {
	if name, ok := l[appID]; ok && name != "" {
		return name
	}
	return appID
}
