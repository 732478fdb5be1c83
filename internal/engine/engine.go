// Package engine implements the real-time notification interception path:
// the synchronous allow/suppress decision plus asynchronous persistence and
// alert evaluation.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/starford/focusguard/internal/alert"
	"github.com/starford/focusguard/internal/feed"
	"github.com/starford/focusguard/internal/policy"
	"github.com/starford/focusguard/internal/store"
)

// RawEvent is a single posted notification as delivered by the host.
// Cancel suppresses its display; it must be idempotent and may be nil in
// contexts where suppression is handled by the caller.
type RawEvent struct {
	PackageName  string
	Title        string
	Clearable    bool
	GroupSummary bool
	Cancel       func()
}

// Decision is the synchronous outcome of handling one event.
type Decision string

const (
	// DecisionIgnored means focus mode was off; nothing happened.
	DecisionIgnored Decision = "ignored"
	// DecisionAllowedVIP means the sender was in the VIP snapshot.
	DecisionAllowedVIP Decision = "allowed_vip"
	// DecisionAllowedOngoing means the notification was not clearable.
	DecisionAllowedOngoing Decision = "allowed_ongoing"
	// DecisionSuppressed means the notification was cancelled.
	DecisionSuppressed Decision = "suppressed"
)

// FocusReader is the engine's view of the session state: a single fast
// boolean read on the hot path.
type FocusReader interface {
	IsActive() bool
}

// Engine consumes raw notification events. HandleEvent is safe to call
// concurrently from arbitrary goroutines and never blocks on storage.
type Engine struct {
	dir      store.Directory
	log      store.Log
	focus    FocusReader
	notifier alert.Notifier
	labels   alert.Labels
	broker   *feed.Broker
	logger   *slog.Logger
	now      func() time.Time

	// vips is an immutable snapshot replaced wholesale by the feed
	// subscription; HandleEvent only ever loads it.
	vips atomic.Pointer[map[string]struct{}]

	// cooldown tracks recently handled sender keys; entries expire after
	// policy.Cooldown and are janitor-pruned, bounding memory.
	cooldown *gocache.Cache

	tasks   chan func()
	workers int
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started atomic.Bool
	stopped atomic.Bool
}

// Config sizes the background worker pool.
type Config struct {
	Workers   int
	QueueSize int
}

// New builds an Engine. Call Start before delivering events.
func New(dir store.Directory, log store.Log, focus FocusReader, notifier alert.Notifier, labels alert.Labels, broker *feed.Broker, logger *slog.Logger, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		dir:      dir,
		log:      log,
		focus:    focus,
		notifier: notifier,
		labels:   labels,
		broker:   broker,
		logger:   logger,
		now:      time.Now,
		cooldown: gocache.New(policy.Cooldown, time.Minute),
		tasks:    make(chan func(), cfg.QueueSize),
		workers:  cfg.Workers,
	}
	empty := make(map[string]struct{})
	e.vips.Store(&empty)
	return e
}

// Start loads the VIP snapshot, launches the worker pool, and begins
// following the change feed to keep the snapshot fresh.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}

	e.refreshVIPs()

	ctx, e.cancel = context.WithCancel(ctx)

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}

	if e.broker != nil {
		events := e.broker.Subscribe()
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					e.broker.Unsubscribe(events)
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					if ev.Kind == feed.KindSenderUpdated {
						e.refreshVIPs()
					}
				}
			}
		}()
	}
	return nil
}

// Stop cancels the worker pool and waits for in-flight background work.
// Queued-but-unstarted tasks are abandoned; the suppression decisions they
// belong to have already taken effect.
func (e *Engine) Stop() {
	if !e.stopped.CompareAndSwap(false, true) {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// refreshVIPs rebuilds the immutable VIP key snapshot from the directory.
// Single-writer: only Start and the feed subscription goroutine call this.
func (e *Engine) refreshVIPs() {
	keys, err := e.dir.KeysByCategory(policy.CategoryVIP)
	if err != nil {
		e.logger.Warn("engine: vip snapshot refresh failed", slog.String("error", err.Error()))
		return
	}
	e.vips.Store(&keys)
}

// IsVIP reports whether a sender key is in the current VIP snapshot.
func (e *Engine) IsVIP(key string) bool {
	_, ok := (*e.vips.Load())[key]
	return ok
}

// HandleEvent is the host notification callback. It decides synchronously
// from in-memory state, cancels the notification when suppressing, and
// offloads all storage work to the background pool. It never panics past
// its boundary and never blocks.
func (e *Engine) HandleEvent(ev RawEvent) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine: panic in event handler", slog.Any("panic", r))
			decision = DecisionIgnored
		}
	}()

	// Dominant fast path: feature idle.
	if !e.focus.IsActive() {
		return DecisionIgnored
	}

	key := store.SenderKey(ev.PackageName, ev.Title)

	// VIP bypass: O(1) against the snapshot, no storage touched.
	if e.IsVIP(key) {
		return DecisionAllowedVIP
	}

	// Ongoing/non-clearable notifications (media, calls) are never touched.
	if !ev.Clearable {
		return DecisionAllowedOngoing
	}

	// Suppress before persisting: a crash past this point loses a record,
	// never re-shows a cancelled notification.
	if ev.Cancel != nil {
		ev.Cancel()
	}

	// Add is atomic check-and-set: it fails when the key is already
	// present, i.e. the sender is inside the cooldown window.
	dedupSkip := e.cooldown.Add(key, struct{}{}, gocache.DefaultExpiration) != nil

	now := e.now()
	skipRecord := dedupSkip || ev.GroupSummary
	e.enqueue(func() {
		e.persist(ev.PackageName, ev.Title, key, now, skipRecord)
	})

	return DecisionSuppressed
}

// enqueue hands work to the pool without ever blocking the caller. A full
// queue drops the task; the next event from the sender re-establishes
// state.
func (e *Engine) enqueue(task func()) {
	select {
	case e.tasks <- task:
	default:
		e.logger.Warn("engine: task queue full, dropping persistence work")
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-e.tasks:
			func() {
				defer func() {
					if r := recover(); r != nil {
						e.logger.Error("engine: panic in background task", slog.Any("panic", r))
					}
				}()
				task()
			}()
		}
	}
}

// persist is the asynchronous half of event handling: count the message,
// optionally append a log record, then evaluate alert thresholds. Storage
// failures are logged and dropped.
func (e *Engine) persist(packageName, title, key string, now time.Time, skipRecord bool) {
	senderName := title
	if senderName == "" {
		senderName = "Unknown"
	}

	rec, err := e.dir.RecordMessage(key, now)
	if err != nil {
		e.logger.Warn("engine: record message failed",
			slog.String("sender", key),
			slog.String("error", err.Error()))
		return
	}
	e.publish(feed.Event{Kind: feed.KindSenderUpdated, Data: map[string]any{
		"sender_id": rec.SenderID,
		"category":  rec.Category,
		"msg_count": rec.MsgCount,
	}})

	if !skipRecord {
		// Second dedup line against the durable log; the in-memory
		// cooldown does not survive restarts.
		recent, err := e.log.CountSince(packageName, senderName, now.Add(-policy.DedupWindow))
		if err != nil {
			e.logger.Warn("engine: dedup count failed",
				slog.String("sender", key),
				slog.String("error", err.Error()))
		} else if recent == 0 {
			row, err := e.log.AppendNotification(packageName, senderName, now)
			if err != nil {
				e.logger.Warn("engine: append notification failed",
					slog.String("sender", key),
					slog.String("error", err.Error()))
			} else {
				e.publish(feed.Event{Kind: feed.KindNotificationLogged, Data: row})
			}
		}
	}

	e.evaluateAlerts(packageName, senderName, rec, now)
}

// evaluateAlerts applies the policy thresholds after each counted event.
// Alerts fire on raw frequency, so a dedup-skipped event still gets here.
func (e *Engine) evaluateAlerts(packageName, senderName string, rec *store.SenderRow, now time.Time) {
	appLabel := e.labels.Resolve(packageName)

	if policy.UnknownRepeatAlert(rec.Category, rec.MsgCount) {
		e.notifier.RepeatedMessages(senderName, appLabel)
	}

	if rec.Category == policy.CategoryPrimary {
		recent, err := e.log.CountSince(packageName, senderName, now.Add(-policy.EscalationWindow))
		if err != nil {
			e.logger.Warn("engine: escalation count failed",
				slog.String("sender", rec.SenderID),
				slog.String("error", err.Error()))
			return
		}
		if policy.EscalationAlert(rec.Category, recent) {
			e.notifier.IncreasedActivity(senderName, appLabel)
		}
	}
}

func (e *Engine) publish(ev feed.Event) {
	if e.broker != nil {
		e.broker.Publish(ev)
	}
}
