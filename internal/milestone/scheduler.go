// Package milestone runs the periodic focus-session reminder.
package milestone

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/starford/focusguard/internal/alert"
	"github.com/starford/focusguard/internal/feed"
	"github.com/starford/focusguard/internal/session"
)

const jobName = "focus_milestone"

// Scheduler arms a recurring reminder while focus mode is active and
// milestones are enabled. Each firing re-checks both conditions, so a
// stale job degrades to a no-op and disarms itself.
type Scheduler struct {
	sess     *session.Session
	notifier alert.Notifier
	broker   *feed.Broker
	logger   *slog.Logger
	interval time.Duration

	scheduler gocron.Scheduler

	mu  sync.Mutex
	job gocron.Job

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Scheduler with the given reminder interval.
func New(sess *session.Session, notifier alert.Notifier, broker *feed.Broker, logger *slog.Logger, interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		interval = 2 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("milestone: new scheduler: %w", err)
	}
	return &Scheduler{
		sess:      sess,
		notifier:  notifier,
		broker:    broker,
		logger:    logger,
		interval:  interval,
		scheduler: sched,
	}, nil
}

// Start launches the underlying scheduler and follows focus transitions on
// the change feed, arming on focus-on and disarming on focus-off. If a
// session is already running (process restart) the job is armed
// immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.scheduler.Start()

	if s.sess.IsActive() {
		s.armIfEnabled()
	}

	if s.broker == nil {
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)
	events := s.broker.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				s.broker.Unsubscribe(events)
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Kind != feed.KindFocusChanged {
					continue
				}
				if s.sess.IsActive() {
					s.armIfEnabled()
				} else {
					s.disarm()
				}
			}
		}
	}()
	return nil
}

// Stop disarms and shuts the scheduler down, waiting for the feed follower.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Warn("milestone: scheduler shutdown", slog.String("error", err.Error()))
	}
}

// SetEnabled persists the milestone toggle. Disabling cancels any pending
// reminder; enabling re-arms if a session is running.
func (s *Scheduler) SetEnabled(enabled bool) error {
	if err := s.sess.SetMilestonesEnabled(enabled); err != nil {
		return err
	}
	if !enabled {
		s.disarm()
	} else if s.sess.IsActive() {
		s.armIfEnabled()
	}
	return nil
}

func (s *Scheduler) armIfEnabled() {
	enabled, err := s.sess.MilestonesEnabled()
	if err != nil {
		s.logger.Warn("milestone: read enabled flag", slog.String("error", err.Error()))
		return
	}
	if !enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job != nil {
		return
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.tick),
		gocron.WithName(jobName),
	)
	if err != nil {
		s.logger.Warn("milestone: arm failed", slog.String("error", err.Error()))
		return
	}
	s.job = job
	s.logger.Debug("milestone: armed", slog.Duration("interval", s.interval))
}

func (s *Scheduler) disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return
	}
	if err := s.scheduler.RemoveJob(s.job.ID()); err != nil {
		s.logger.Warn("milestone: disarm failed", slog.String("error", err.Error()))
	}
	s.job = nil
	s.logger.Debug("milestone: disarmed")
}

// tick fires on each interval. The reminder is only shown once the running
// session has lasted at least an hour; shorter sessions stay quiet.
func (s *Scheduler) tick() {
	if !s.sess.IsActive() {
		s.disarm()
		return
	}
	enabled, err := s.sess.MilestonesEnabled()
	if err != nil || !enabled {
		s.disarm()
		return
	}

	m, err := s.sess.CurrentMetrics()
	if err != nil {
		s.logger.Warn("milestone: metrics read failed", slog.String("error", err.Error()))
		return
	}
	hours := int(m.CurrentSession / time.Hour)
	if hours >= 1 {
		s.notifier.FocusMilestone(hours)
	}
}
