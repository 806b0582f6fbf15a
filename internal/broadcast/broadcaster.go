package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-hazard-watch/internal/models"
)

type EventKind string

const (
	IncidentCreated  EventKind = "incident.created"
	IncidentResolved EventKind = "incident.resolved"
	AlertRecorded    EventKind = "alert.recorded"
)

type Event struct {
	Kind     EventKind           `json:"kind"`
	Incident *models.Incident    `json:"incident,omitempty"`
	Alert    *models.AlertRecord `json:"alert,omitempty"`
	At       time.Time           `json:"at"`
}

// Filter selects which events a subscriber receives; nil means all.
type Filter func(Event) bool

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Broadcaster fans events out to live subscribers. A subscriber whose buffer
// is full misses the event rather than stalling the publisher.
type Broadcaster struct {
	subscribers map[uint64]subscriber
	nextID      atomic.Uint64
	dropped     atomic.Uint64
	bufferSize  int
	closed      bool
	mu          sync.RWMutex
}

func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize < 1 {
		bufferSize = 64
	}
	return &Broadcaster{
		subscribers: make(map[uint64]subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a listener. After Close the returned channel is
// already closed.
func (b *Broadcaster) Subscribe(filter Filter) (uint64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Broadcaster) IncidentCreated(inc *models.Incident) {
	b.Publish(Event{Kind: IncidentCreated, Incident: inc})
}

func (b *Broadcaster) IncidentResolved(inc *models.Incident) {
	b.Publish(Event{Kind: IncidentResolved, Incident: inc})
}

func (b *Broadcaster) AlertRecorded(rec *models.AlertRecord) {
	b.Publish(Event{Kind: AlertRecorded, Alert: rec})
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends every subscription so streaming handlers return.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// OnlyKinds builds a filter admitting the given kinds.
func OnlyKinds(kinds ...EventKind) Filter {
	set := make(map[EventKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(e Event) bool { return set[e.Kind] }
}
