package realtime

import (
	"sync"
	"time"

	"floortrack/internal/model"
	"floortrack/pkg/logger"

	"github.com/google/uuid"
)

// Subscription is one dashboard client's bounded event feed. Events
// arrive in publication order; when the consumer falls behind, the
// oldest buffered events are dropped and a system_status notice with
// reason "queue_overflow" is injected so the client knows to re-request
// a snapshot.
type Subscription struct {
	id     string
	types  map[string]struct{} // nil = all event types
	ch     chan model.RealtimeEvent
	cancel func()
	once   sync.Once

	dropped int
}

// ID returns the subscription identifier
func (s *Subscription) ID() string { return s.id }

// Events returns the subscriber's receive channel. Closed on Cancel.
func (s *Subscription) Events() <-chan model.RealtimeEvent { return s.ch }

// Cancel detaches the subscription and closes its channel. Idempotent;
// safe to call concurrently with delivery.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

func (s *Subscription) wants(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Publisher multicasts realtime events to all attached subscriptions.
// Delivery order matches publication order for every subscriber; a slow
// subscriber never blocks Publish or the other subscribers.
type Publisher struct {
	mu          sync.Mutex
	subscribers map[string]*Subscription
	queueSize   int
	closed      bool
}

// NewPublisher creates a publisher with the given per-subscriber queue size
func NewPublisher(queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Publisher{
		subscribers: make(map[string]*Subscription),
		queueSize:   queueSize,
	}
}

// Subscribe attaches a new subscriber. eventTypes narrows delivery to
// the named types; empty means all.
func (p *Publisher) Subscribe(eventTypes ...string) *Subscription {
	sub := &Subscription{
		id: uuid.NewString(),
		ch: make(chan model.RealtimeEvent, p.queueSize),
	}
	if len(eventTypes) > 0 {
		sub.types = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.types[t] = struct{}{}
		}
	}
	sub.cancel = func() { p.detach(sub.id) }

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(sub.ch)
		return sub
	}
	p.subscribers[sub.id] = sub
	return sub
}

// SubscriberCount returns the number of attached subscriptions
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

// Publish delivers an event to every matching subscriber. Never blocks:
// a full subscriber queue sheds its oldest events to make room.
func (p *Publisher) Publish(event model.RealtimeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, sub := range p.subscribers {
		if !sub.wants(event.EventType) {
			continue
		}
		p.deliverLocked(sub, event)
	}
}

// PublishPayload wraps a payload in an event and publishes it. Invalid
// severity or payload pairings are logged and skipped.
func (p *Publisher) PublishPayload(severity string, payload model.EventPayload) {
	event, err := model.NewEvent(severity, payload)
	if err != nil {
		logger.Errorf("drop invalid realtime event: %v", err)
		return
	}
	p.Publish(event)
}

// Close cancels every subscription and rejects further publishes
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, sub := range p.subscribers {
		delete(p.subscribers, id)
		close(sub.ch)
	}
}

// deliverLocked enqueues one event. When the subscriber's queue is
// full, the oldest buffered events are shed to make room for an
// overflow notice followed by the event, keeping delivery order intact.
// Caller holds p.mu, which is the only sender on sub.ch, so
// send-after-close cannot happen.
func (p *Publisher) deliverLocked(sub *Subscription, event model.RealtimeEvent) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	// Shed the two oldest entries: one slot for the notice, one for
	// the event itself.
	for i := 0; i < 2; i++ {
		select {
		case <-sub.ch:
			sub.dropped++
		default:
		}
	}

	notice := model.RealtimeEvent{
		EventType: model.EventSystemStatus,
		Timestamp: time.Now(),
		Severity:  model.SeverityWarning,
		Data: model.SystemStatusPayload{
			Reason:  "queue_overflow",
			Message: "subscriber queue overflowed; re-request a snapshot to resync",
			Dropped: sub.dropped,
		},
	}
	select {
	case sub.ch <- notice:
		sub.dropped = 0
	default:
	}

	select {
	case sub.ch <- event:
	default:
		sub.dropped++
		logger.Warnf("subscriber %s queue full, event %s dropped", sub.id, event.EventType)
	}
}

func (p *Publisher) detach(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subscribers[id]
	if !ok {
		return
	}
	delete(p.subscribers, id)
	close(sub.ch)
}
