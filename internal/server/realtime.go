package server

import (
	"context"
	"sync"
	"time"
)

// Realtime event types pushed to page subscribers.
const (
	RealtimeEventSidenoteInserted = "sidenote-insert"
	RealtimeEventSidenoteUpdated  = "sidenote-update"
	RealtimeEventSidenoteDeleted  = "sidenote-delete"
	realtimeEventHeartbeat        = "heartbeat"
)

// RealtimeMessage notifies page subscribers of one sidenote mutation.
type RealtimeMessage struct {
	PageURL    string
	EventType  string
	SidenoteID string
	Timestamp  time.Time
}

// RealtimeDispatcher fans sidenote mutations out to every subscriber of the
// affected page. Delivery is best-effort: a subscriber with a full buffer
// misses the message rather than blocking the publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

// NewRealtimeDispatcher constructs a RealtimeDispatcher.
func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a subscriber for one page's mutations. The returned
// cleanup is also invoked when the context ends.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, pageURL string) (<-chan RealtimeMessage, func()) {
	if pageURL == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(pageURL, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(pageURL, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers a message to every subscriber of the message's page.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.PageURL == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.PageURL]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(pageURL string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[pageURL]; !ok {
		d.subscribers[pageURL] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[pageURL][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(pageURL string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[pageURL]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, pageURL)
		}
	}
	d.mu.Unlock()
}
