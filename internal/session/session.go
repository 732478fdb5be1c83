// Package session tracks focus-mode state and focus-time accounting.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/focusguard/internal/feed"
	"github.com/starford/focusguard/internal/store"
)

// Metrics is a point-in-time read of focus accounting.
type Metrics struct {
	Active         bool          `json:"active"`
	CurrentSession time.Duration `json:"current_session_ms"`
	DailyTotal     time.Duration `json:"daily_total_ms"`
}

// Session owns the focus-mode flag and the daily focus-time counters.
// The flag is mirrored into an atomic so the interception hot path reads it
// without touching storage; durable state lives in the prefs table.
type Session struct {
	prefs  store.Prefs
	broker *feed.Broker
	now    func() time.Time

	mu     sync.Mutex
	active atomic.Bool
}

// New loads the persisted focus flag and returns a ready Session. broker
// may be nil (tests); nowFn may be nil to use time.Now.
func New(prefs store.Prefs, broker *feed.Broker, nowFn func() time.Time) (*Session, error) {
	if nowFn == nil {
		nowFn = time.Now
	}
	s := &Session{prefs: prefs, broker: broker, now: nowFn}
	active, err := prefs.GetPrefBool(store.PrefFocusActive, false)
	if err != nil {
		return nil, fmt.Errorf("session: load focus flag: %w", err)
	}
	s.active.Store(active)
	return s, nil
}

// IsActive reports whether focus mode is on. Lock-free; safe from any
// goroutine including the notification callback.
func (s *Session) IsActive() bool {
	return s.active.Load()
}

// SetActive toggles focus mode. Turning on records the session start.
// Turning off folds the elapsed session into the daily total, resetting the
// total first if the calendar day changed since it was last written.
func (s *Session) SetActive(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.Load() == active {
		// Idempotent: repeated toggles to the same state are no-ops.
		return nil
	}

	now := s.now()

	if active {
		if err := s.prefs.SetPrefBool(store.PrefFocusActive, true); err != nil {
			return err
		}
		if err := s.prefs.SetPrefInt64(store.PrefFocusStartMs, now.UnixMilli()); err != nil {
			return err
		}
	} else {
		startMs, err := s.prefs.GetPrefInt64(store.PrefFocusStartMs, 0)
		if err != nil {
			return err
		}
		if startMs > 0 {
			elapsed := now.UnixMilli() - startMs
			if elapsed < 0 {
				elapsed = 0
			}
			today := dayString(now)
			lastReset, err := s.prefs.GetPref(store.PrefLastResetDay, "")
			if err != nil {
				return err
			}
			var total int64
			if lastReset == today {
				total, err = s.prefs.GetPrefInt64(store.PrefDailyFocusTotalMs, 0)
				if err != nil {
					return err
				}
			}
			total += elapsed

			if err := s.prefs.SetPref(store.PrefLastResetDay, today); err != nil {
				return err
			}
			if err := s.prefs.SetPrefInt64(store.PrefDailyFocusTotalMs, total); err != nil {
				return err
			}
		}
		if err := s.prefs.SetPrefInt64(store.PrefFocusStartMs, 0); err != nil {
			return err
		}
		if err := s.prefs.SetPrefBool(store.PrefFocusActive, false); err != nil {
			return err
		}
	}

	s.active.Store(active)
	if s.broker != nil {
		s.broker.Publish(feed.Event{
			Kind: feed.KindFocusChanged,
			Data: map[string]bool{"active": active},
		})
	}
	return nil
}

// CurrentMetrics computes focus accounting without mutating anything: the
// running session's elapsed time is derived from the stored start instant,
// and a stale daily total (previous calendar day) reads as zero.
func (s *Session) CurrentMetrics() (Metrics, error) {
	now := s.now()
	active := s.active.Load()

	var current time.Duration
	if active {
		startMs, err := s.prefs.GetPrefInt64(store.PrefFocusStartMs, 0)
		if err != nil {
			return Metrics{}, err
		}
		if startMs > 0 {
			current = time.Duration(now.UnixMilli()-startMs) * time.Millisecond
			if current < 0 {
				current = 0
			}
		}
	}

	var stored int64
	lastReset, err := s.prefs.GetPref(store.PrefLastResetDay, "")
	if err != nil {
		return Metrics{}, err
	}
	if lastReset == dayString(now) {
		stored, err = s.prefs.GetPrefInt64(store.PrefDailyFocusTotalMs, 0)
		if err != nil {
			return Metrics{}, err
		}
	}

	return Metrics{
		Active:         active,
		CurrentSession: current,
		DailyTotal:     time.Duration(stored)*time.Millisecond + current,
	}, nil
}

// MilestonesEnabled reports whether periodic focus reminders are on.
// Defaults to true when never set.
func (s *Session) MilestonesEnabled() (bool, error) {
	return s.prefs.GetPrefBool(store.PrefMilestonesEnabled, true)
}

// SetMilestonesEnabled persists the reminder toggle.
func (s *Session) SetMilestonesEnabled(enabled bool) error {
	return s.prefs.SetPrefBool(store.PrefMilestonesEnabled, enabled)
}

// FormatDaily renders a daily total the way the session summary shows it,
// e.g. "2h 15m" or "45m".
func FormatDaily(d time.Duration) string {
	hours := int(d / time.Hour)
	minutes := int(d%time.Hour) / int(time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func dayString(t time.Time) string {
	return t.Format("2006-01-02")
}
