// Package triage coordinates the stores, session, engine, and projection
// behind the user-facing commands.
package triage

import (
	"context"
	"sync"
	"time"

	"github.com/starford/focusguard/internal/engine"
	"github.com/starford/focusguard/internal/feed"
	"github.com/starford/focusguard/internal/milestone"
	"github.com/starford/focusguard/internal/policy"
	"github.com/starford/focusguard/internal/session"
	"github.com/starford/focusguard/internal/store"
	"github.com/starford/focusguard/internal/views"
)

// Service exposes the triage operations consumed by the HTTP API and the
// MCP server.
type Service struct {
	dir        store.Directory
	log        store.Log
	sess       *session.Session
	eng        *engine.Engine
	proj       *views.Projection
	broker     *feed.Broker
	milestones *milestone.Scheduler
	now        func() time.Time

	// dismissed holds banner dismissals for the current process lifetime
	// only; they are deliberately not persisted.
	mu        sync.Mutex
	dismissed map[string]struct{}
}

// NewService wires the triage service. broker and milestones may be nil in
// tests.
func NewService(dir store.Directory, log store.Log, sess *session.Session, eng *engine.Engine, proj *views.Projection, broker *feed.Broker, milestones *milestone.Scheduler) *Service {
	return &Service{
		dir:        dir,
		log:        log,
		sess:       sess,
		eng:        eng,
		proj:       proj,
		broker:     broker,
		milestones: milestones,
		now:        time.Now,
		dismissed:  make(map[string]struct{}),
	}
}

// HandleEvent feeds a raw notification event into the interception engine.
func (s *Service) HandleEvent(_ context.Context, ev engine.RawEvent) engine.Decision {
	return s.eng.HandleEvent(ev)
}

// CategorizeSender assigns a category. Idempotent: repeating the same
// assignment leaves a single record unchanged apart from its timestamp.
func (s *Service) CategorizeSender(_ context.Context, key string, cat policy.Category) error {
	if err := s.dir.SetCategory(key, cat, s.now()); err != nil {
		return err
	}
	s.publish(feed.Event{Kind: feed.KindSenderUpdated, Data: map[string]any{
		"sender_id": key,
		"category":  cat,
	}})
	return nil
}

// Senders returns all directory records, most recently updated first.
func (s *Service) Senders(_ context.Context) ([]store.SenderRow, error) {
	return s.dir.ListSenders()
}

// Sender returns one directory record.
func (s *Service) Sender(_ context.Context, key string) (*store.SenderRow, error) {
	return s.dir.GetSender(key)
}

// View returns the live partition for one category, newest first.
func (s *Service) View(_ context.Context, cat policy.Category) []store.NotificationRow {
	return s.proj.ByCategory(cat)
}

// ViewsSnapshot returns all four partitions.
func (s *Service) ViewsSnapshot(_ context.Context) map[policy.Category][]store.NotificationRow {
	return s.proj.Snapshot()
}

// Notifications returns raw log entries, newest first.
func (s *Service) Notifications(_ context.Context, limit int) ([]store.NotificationRow, error) {
	return s.log.ListNotificationsDesc(limit)
}

// ClearAllNotifications wipes the log. Sender categorizations and message
// counts survive, so the directory keeps its history across clears.
func (s *Service) ClearAllNotifications(_ context.Context) error {
	if err := s.log.ClearNotifications(); err != nil {
		return err
	}
	s.publish(feed.Event{Kind: feed.KindNotificationsCleared})
	return nil
}

// SetFocusActive toggles focus mode.
func (s *Service) SetFocusActive(_ context.Context, active bool) error {
	return s.sess.SetActive(active)
}

// FocusMetrics reads the current focus accounting along with the rendered
// daily summary.
func (s *Service) FocusMetrics(_ context.Context) (session.Metrics, string, error) {
	m, err := s.sess.CurrentMetrics()
	if err != nil {
		return session.Metrics{}, "", err
	}
	return m, "Focused for " + session.FormatDaily(m.DailyTotal) + " today", nil
}

// FocusActive reports the focus flag.
func (s *Service) FocusActive(_ context.Context) bool {
	return s.sess.IsActive()
}

// SetMilestonesEnabled toggles the periodic reminder.
func (s *Service) SetMilestonesEnabled(_ context.Context, enabled bool) error {
	if s.milestones != nil {
		return s.milestones.SetEnabled(enabled)
	}
	return s.sess.SetMilestonesEnabled(enabled)
}

// DismissBanner hides a sender from the classification prompt for the rest
// of this process's lifetime.
func (s *Service) DismissBanner(_ context.Context, key string) {
	s.mu.Lock()
	s.dismissed[key] = struct{}{}
	s.mu.Unlock()
}

// NextBannerCandidate returns the next uncategorized sender eligible for
// the classification prompt, skipping locally dismissed ones, or
// apperr.ErrNotFound via the underlying lookup when none qualify.
func (s *Service) NextBannerCandidate(_ context.Context) (*store.SenderRow, error) {
	candidates, err := s.dir.SendersByCategory(policy.CategoryUnknown)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range candidates {
		c := &candidates[i]
		if !policy.BannerEligible(c.Category, c.MsgCount) {
			continue
		}
		if _, skip := s.dismissed[c.SenderID]; skip {
			continue
		}
		return c, nil
	}
	return nil, nil
}

func (s *Service) publish(ev feed.Event) {
	if s.broker != nil {
		s.broker.Publish(ev)
	}
}
