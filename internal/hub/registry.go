package hub

import (
	"log/slog"
	"sync"
)

// Registry tracks the currently-connected notification subscribers.
// Membership changes race with broadcasts from the consumer loop, so
// the set is guarded by a mutex and broadcasts iterate a snapshot.
type Registry struct {
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
}

// NewRegistry creates an empty subscriber registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:      logger,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Register adds a subscriber to the fan-out set
func (r *Registry) Register(sub *Subscriber) {
	r.mu.Lock()
	r.subscribers[sub] = struct{}{}
	count := len(r.subscribers)
	r.mu.Unlock()

	r.logger.Info("Subscriber registered",
		slog.Int("subscribers", count),
	)
}

// Unregister removes a subscriber and closes its outbound queue.
// Unknown subscribers are ignored, so the reconciler and the
// connection's own teardown may both call it.
func (r *Registry) Unregister(sub *Subscriber) {
	r.mu.Lock()
	_, ok := r.subscribers[sub]
	if ok {
		delete(r.subscribers, sub)
	}
	count := len(r.subscribers)
	r.mu.Unlock()

	if ok {
		sub.Close()
		r.logger.Info("Subscriber unregistered",
			slog.Int("subscribers", count),
		)
	}
}

// Broadcast delivers msg to every live subscriber independently.
// A failed delivery unregisters that subscriber and never stops
// delivery to the rest. There is no per-subscriber acknowledgment
// or retry.
func (r *Registry) Broadcast(msg []byte) {
	r.mu.Lock()
	snapshot := make([]*Subscriber, 0, len(r.subscribers))
	for sub := range r.subscribers {
		snapshot = append(snapshot, sub)
	}
	r.mu.Unlock()

	for _, sub := range snapshot {
		if err := sub.Send(msg); err != nil {
			r.logger.Warn("Dropping dead subscriber",
				slog.Any("error", err),
			)
			r.Unregister(sub)
		}
	}
}

// Len returns the number of registered subscribers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}
