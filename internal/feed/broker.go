// Package feed implements the change-feed broker: directory and log
// mutations are published here and fanned out to in-process consumers (the
// VIP snapshot, the view projection) and to SSE clients.
package feed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event kinds published on the feed.
const (
	KindSenderUpdated        = "sender.updated"
	KindNotificationLogged   = "notification.logged"
	KindNotificationsCleared = "notifications.cleared"
	KindFocusChanged         = "focus.changed"
	KindViewsUpdated         = "views.updated"
)

// Event is a single change notification.
type Event struct {
	Kind string `json:"kind"`
	Data any    `json:"data,omitempty"`
}

// Broker manages feed subscribers and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable
// state (subscriber sets + views throttle timestamp). Public methods
// communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	viewsMin time.Duration

	subscribeCh      chan chan Event
	unsubscribeCh    chan chan Event
	sseSubscribeCh   chan chan []byte
	sseUnsubscribeCh chan chan []byte
	publishCh        chan Event
	countReqCh       chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker with the given views.updated throttle interval.
func NewBroker(viewsThrottle time.Duration) *Broker {
	if viewsThrottle <= 0 {
		viewsThrottle = time.Second
	}

	b := &Broker{
		viewsMin:         viewsThrottle,
		subscribeCh:      make(chan chan Event),
		unsubscribeCh:    make(chan chan Event),
		sseSubscribeCh:   make(chan chan []byte),
		sseUnsubscribeCh: make(chan chan []byte),
		publishCh:        make(chan Event, 256),
		countReqCh:       make(chan chan int),
		stopCh:           make(chan struct{}),
		stopped:          make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	subscribers := make(map[chan Event]struct{})
	sseClients := make(map[chan []byte]struct{})
	var lastViews time.Time

	deliver := func(event Event) {
		for ch := range subscribers {
			select {
			case ch <- event:
			default:
				// Subscriber buffer full; skip to avoid blocking the loop.
			}
		}

		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Kind, payload))
		for ch := range sseClients {
			select {
			case ch <- raw:
			default:
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range subscribers {
				close(ch)
			}
			for ch := range sseClients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			subscribers[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := subscribers[ch]; ok {
				delete(subscribers, ch)
				close(ch)
			}

		case ch := <-b.sseSubscribeCh:
			sseClients[ch] = struct{}{}

		case ch := <-b.sseUnsubscribeCh:
			if _, ok := sseClients[ch]; ok {
				delete(sseClients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			deliver(event)

			// Data-bearing events imply the derived views moved; emit a
			// throttled hint so UI clients can refetch without flooding.
			switch event.Kind {
			case KindSenderUpdated, KindNotificationLogged, KindNotificationsCleared:
				now := time.Now()
				if now.Sub(lastViews) >= b.viewsMin {
					lastViews = now
					deliver(Event{Kind: KindViewsUpdated, Data: map[string]string{}})
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(subscribers) + len(sseClients)
		}
	}
}

// ClientCount returns the number of attached subscribers (in-process plus
// SSE).
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Close gracefully stops the broker loop and closes all subscriber channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Publish sends an event to all subscribers. Safe to call after Close.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Subscribe registers an in-process consumer and returns its event channel.
// The channel is closed on Unsubscribe or broker shutdown.
func (b *Broker) Subscribe() chan Event {
	ch := make(chan Event, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes an in-process consumer and closes its channel.
func (b *Broker) Unsubscribe(ch chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

func (b *Broker) sseSubscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.sseSubscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

func (b *Broker) sseUnsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.sseUnsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/feed).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.sseSubscribe()
	defer b.sseUnsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
