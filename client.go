package shortbus

import "context"

// Client is the synchronous-looking API over the broker connection.
//
// Lifecycle: clients are single-use. After Close() or Shutdown(), create
// a new client with NewClient().
//
// Example usage:
//
//	bus := shortbus.NewClient()
//	defer bus.Close()
//
//	err := bus.Start(ctx,
//	    shortbus.WithLogger(slog.Default()),
//	    shortbus.WithTimeout(2*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := bus.Ping(ctx); err != nil {
//	    log.Fatal(err)
//	}
type Client interface {
	// Start establishes the broker connection.
	// Must be called before any other methods.
	// Returns BrokerNotFoundError if the broker binary cannot be located,
	// or ConnectionError if the process fails to start.
	Start(ctx context.Context, opts ...Option) error

	// Publish sends a payload to a topic and blocks until the broker
	// acknowledges, the configured timeout elapses, or ctx is cancelled.
	// A nil metadata map is sent as an empty object.
	// The returned Response carries the broker's full result record.
	Publish(ctx context.Context, topic string, payload any, metadata map[string]any) (*Response, error)

	// Subscribe registers handler for a topic, then sends the subscribe
	// command and blocks for the broker's acknowledgment. The handler is
	// routable before the command is written, so no push can slip through
	// while the subscription is in flight. Handlers for a topic run in
	// registration order and must not block.
	Subscribe(ctx context.Context, topic string, handler Handler) (*Response, error)

	// Unsubscribe removes every handler registered for the topic (there
	// is no per-handler removal), then sends the unsubscribe command and
	// blocks for the broker's acknowledgment. Handlers are gone
	// immediately, whether or not the broker acknowledges.
	Unsubscribe(ctx context.Context, topic string) (*Response, error)

	// Ping checks broker liveness.
	Ping(ctx context.Context) (*Response, error)

	// Shutdown sends a shutdown command without waiting for a response
	// and closes the write side of the connection. The client accepts no
	// further operations afterwards.
	Shutdown(ctx context.Context) error

	// Close terminates the connection and cleans up resources.
	// After Close(), the client cannot be reused. Safe to call multiple times.
	Close() error
}

// NewClient creates a new broker client.
//
// Call Start() with options to connect:
//
//	bus := shortbus.NewClient()
//	err := bus.Start(ctx,
//	    shortbus.WithBrokerPath("/usr/local/bin/shortbus"),
//	)
func NewClient() Client {
	return newClientImpl()
}
