package protocol

import (
	"log/slog"
	"sync"
)

// subscriptionRegistry maps topic names to their ordered handler lists.
//
// Handlers for a topic are invoked in registration order. Unsubscribing a
// topic clears its entire handler list; there is no per-handler removal.
type subscriptionRegistry struct {
	log *slog.Logger

	mu     sync.RWMutex
	topics map[string][]Handler
}

func newSubscriptionRegistry(log *slog.Logger) *subscriptionRegistry {
	return &subscriptionRegistry{
		log:    log,
		topics: make(map[string][]Handler, 10),
	}
}

// subscribe appends handler to the topic's list, creating it if absent.
func (s *subscriptionRegistry) subscribe(topic string, handler Handler) {
	s.mu.Lock()
	s.topics[topic] = append(s.topics[topic], handler)
	s.mu.Unlock()
}

// unsubscribe clears the entire handler list for topic.
func (s *subscriptionRegistry) unsubscribe(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// handlers returns a snapshot of the topic's handler list so dispatch
// never holds the lock while invoking callbacks.
func (s *subscriptionRegistry) handlers(topic string) []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	registered := s.topics[topic]
	if len(registered) == 0 {
		return nil
	}

	snapshot := make([]Handler, len(registered))
	copy(snapshot, registered)

	return snapshot
}

// dispatch invokes each of the topic's handlers, in registration order,
// on the given message. A panicking handler is contained and logged; the
// remaining handlers still run, for this message and future ones.
func (s *subscriptionRegistry) dispatch(msg *PushMessage) {
	for _, handler := range s.handlers(msg.Topic) {
		s.invoke(handler, msg)
	}
}

func (s *subscriptionRegistry) invoke(handler Handler, msg *PushMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Warn("Subscriber handler panicked", "topic", msg.Topic, "panic", rec)
		}
	}()

	handler(msg)
}
