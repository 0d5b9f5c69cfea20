// Package notify delivers hire outcome events to live subscribers.
package notify

import (
	"sync"

	"github.com/google/uuid"

	"gigflow/internal/common/logger"
	"gigflow/internal/common/metrics"
	"gigflow/internal/models"
)

const defaultBuffer = 16

// Registry maps an identity to its live subscriptions. It is the only
// process-wide mutable state of the notification path and holds nothing
// once a subscriber disconnects.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	logger logger.Logger
}

func NewRegistry(buffer int, log logger.Logger) *Registry {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Registry{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: log,
	}
}

// Subscription is one live connection of an identity.
type Subscription struct {
	ID       string
	Identity string

	events   chan *models.HireEvent
	registry *Registry
	once     sync.Once
}

// Events is closed when the subscription is closed.
func (s *Subscription) Events() <-chan *models.HireEvent {
	return s.events
}

// Close removes the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.registry.remove(s) })
}

// Subscribe registers a new live subscription for identity.
func (r *Registry) Subscribe(identity string) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		Identity: identity,
		events:   make(chan *models.HireEvent, r.buffer),
		registry: r,
	}

	r.mu.Lock()
	set, ok := r.subs[identity]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[identity] = set
	}
	set[sub] = struct{}{}
	r.mu.Unlock()

	metrics.LiveSubscriptions.Inc()
	r.logger.Debug("Subscriber connected", map[string]interface{}{
		"identity":       identity,
		"subscriptionId": sub.ID,
	})
	return sub
}

func (r *Registry) remove(sub *Subscription) {
	r.mu.Lock()
	if set, ok := r.subs[sub.Identity]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.subs, sub.Identity)
		}
	}
	// Closed under the write lock so Deliver never sends on a closed channel.
	close(sub.events)
	r.mu.Unlock()

	metrics.LiveSubscriptions.Dec()
	r.logger.Debug("Subscriber disconnected", map[string]interface{}{
		"identity":       sub.Identity,
		"subscriptionId": sub.ID,
	})
}

// Deliver pushes event to every live subscription of its recipient without
// blocking and returns how many copies were queued. A full buffer drops
// that copy. An identity with no subscriptions drops the event.
func (r *Registry) Deliver(event *models.HireEvent) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for sub := range r.subs[event.RecipientID] {
		select {
		case sub.events <- event:
			delivered++
		default:
			r.logger.Warn("Subscriber buffer full, dropping event", map[string]interface{}{
				"identity":       sub.Identity,
				"subscriptionId": sub.ID,
				"eventId":        event.ID,
			})
		}
	}
	return delivered
}

// Count returns the number of live subscriptions of identity.
func (r *Registry) Count(identity string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[identity])
}
