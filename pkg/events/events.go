package events

import (
	"sync"
	"time"

	"github.com/cuemby/workflowd/pkg/metrics"
	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventExecutorStart     EventType = "executor.start"
	EventExecutorIsRunning EventType = "executor.is_running"
	EventAdminNotice       EventType = "admin.notice"
	EventEngineStatus      EventType = "manager.engine_status"
)

// Event is a message published by the manager
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// filter is the set of types a subscriber wants; nil accepts every type
type filter map[EventType]bool

func (f filter) accepts(t EventType) bool {
	return f == nil || f[t]
}

// Broker fans events out to subscribers. Publish never waits on a slow
// subscriber; events that do not fit its buffer are dropped and counted.
type Broker struct {
	subscribers map[Subscriber]filter
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]filter),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	var f filter
	if len(types) > 0 {
		f = make(filter, len(types))
		for _, t := range types {
			f[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 50)
	b.subscribers[sub] = f
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues an event for distribution, filling in its id and timestamp
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, f := range b.subscribers {
		if !f.accepts(event.Type) {
			continue
		}
		select {
		case sub <- event:
		default:
			metrics.EventsDroppedTotal.WithLabelValues(string(event.Type)).Inc()
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
