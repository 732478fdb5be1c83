// Package views derives the four live notification partitions (unknown,
// primary, vip, spam) from the notification log joined with the sender
// directory.
package views

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/focusguard/internal/feed"
	"github.com/starford/focusguard/internal/policy"
	"github.com/starford/focusguard/internal/store"
)

// Projection maintains the partitions reactively: it follows the change
// feed and recomputes on every directory or log mutation, so reads never
// hit storage. Records are partitioned by the sender's current category,
// not the category at write time; recategorizing a sender moves all its
// historical records at once.
type Projection struct {
	dir    store.Directory
	log    store.Log
	broker *feed.Broker
	logger *slog.Logger

	mu    sync.RWMutex
	parts map[policy.Category][]store.NotificationRow

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Projection. Call Start to populate it and begin following
// the feed.
func New(dir store.Directory, log store.Log, broker *feed.Broker, logger *slog.Logger) *Projection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projection{
		dir:    dir,
		log:    log,
		broker: broker,
		logger: logger,
		parts:  emptyParts(),
	}
}

func emptyParts() map[policy.Category][]store.NotificationRow {
	parts := make(map[policy.Category][]store.NotificationRow, 4)
	for _, c := range policy.Categories() {
		parts[c] = nil
	}
	return parts
}

// Start performs the initial join and launches the feed follower.
func (p *Projection) Start(ctx context.Context) error {
	if err := p.rebuild(); err != nil {
		return err
	}
	if p.broker == nil {
		return nil
	}

	ctx, p.cancel = context.WithCancel(ctx)
	events := p.broker.Subscribe()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				p.broker.Unsubscribe(events)
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				p.apply(ev)
			}
		}
	}()
	return nil
}

// Stop halts the feed follower. The last computed partitions stay readable.
func (p *Projection) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Projection) apply(ev feed.Event) {
	switch ev.Kind {
	case feed.KindNotificationLogged:
		if row, ok := ev.Data.(*store.NotificationRow); ok && row != nil {
			p.appendRow(*row)
			return
		}
		// Data arrived in a foreign shape (e.g. republished over the
		// wire); fall back to a full rebuild.
		p.rebuildLogged()

	case feed.KindSenderUpdated, feed.KindNotificationsCleared:
		// A category may have changed or the log was wiped; re-join.
		p.rebuildLogged()
	}
}

func (p *Projection) rebuildLogged() {
	if err := p.rebuild(); err != nil {
		p.logger.Warn("views: rebuild failed", slog.String("error", err.Error()))
	}
}

// rebuild re-joins the full log against current sender categories.
func (p *Projection) rebuild() error {
	rows, err := p.log.ListNotificationsDesc(0)
	if err != nil {
		return err
	}
	senders, err := p.dir.ListSenders()
	if err != nil {
		return err
	}

	byKey := make(map[string]policy.Category, len(senders))
	for _, s := range senders {
		byKey[s.SenderID] = s.Category
	}

	parts := emptyParts()
	for _, row := range rows {
		cat, ok := byKey[row.SenderKey()]
		if !ok {
			cat = policy.CategoryUnknown
		}
		parts[cat] = append(parts[cat], row)
	}

	p.mu.Lock()
	p.parts = parts
	p.mu.Unlock()
	return nil
}

// appendRow places a freshly logged record at the head of its sender's
// current partition (partitions are ordered newest first).
func (p *Projection) appendRow(row store.NotificationRow) {
	cat := policy.CategoryUnknown
	if rec, err := p.dir.GetSender(row.SenderKey()); err == nil {
		cat = rec.Category
	}

	p.mu.Lock()
	p.parts[cat] = append([]store.NotificationRow{row}, p.parts[cat]...)
	p.mu.Unlock()
}

// ByCategory returns a copy of one partition, newest first.
func (p *Projection) ByCategory(cat policy.Category) []store.NotificationRow {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]store.NotificationRow, len(p.parts[cat]))
	copy(out, p.parts[cat])
	return out
}

// Snapshot returns copies of all four partitions keyed by category.
func (p *Projection) Snapshot() map[policy.Category][]store.NotificationRow {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[policy.Category][]store.NotificationRow, len(p.parts))
	for cat, rows := range p.parts {
		cp := make([]store.NotificationRow, len(rows))
		copy(cp, rows)
		out[cat] = cp
	}
	return out
}
