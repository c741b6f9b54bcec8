package shortbus

import (
	"context"

	"github.com/shortbus-io/shortbus-go/internal/client"
)

// clientWrapper wraps the internal client to adapt it to the public interface.
type clientWrapper struct {
	impl *client.Client
}

// Compile-time check that *clientWrapper implements the Client interface.
var _ Client = (*clientWrapper)(nil)

// newClientImpl creates the internal client implementation.
func newClientImpl() Client {
	return &clientWrapper{impl: client.New()}
}

// Start establishes the broker connection.
func (c *clientWrapper) Start(ctx context.Context, opts ...Option) error {
	return c.impl.Start(ctx, applyOptions(opts))
}

// Publish sends a payload to a topic and waits for the broker's ack.
func (c *clientWrapper) Publish(
	ctx context.Context,
	topic string,
	payload any,
	metadata map[string]any,
) (*Response, error) {
	return c.impl.Publish(ctx, topic, payload, metadata)
}

// Subscribe registers handler for a topic and waits for the broker's ack.
func (c *clientWrapper) Subscribe(
	ctx context.Context,
	topic string,
	handler Handler,
) (*Response, error) {
	return c.impl.Subscribe(ctx, topic, handler)
}

// Unsubscribe removes every handler for a topic and waits for the broker's ack.
func (c *clientWrapper) Unsubscribe(ctx context.Context, topic string) (*Response, error) {
	return c.impl.Unsubscribe(ctx, topic)
}

// Ping checks broker liveness.
func (c *clientWrapper) Ping(ctx context.Context) (*Response, error) {
	return c.impl.Ping(ctx)
}

// Shutdown asks the broker to stop and closes the write side.
func (c *clientWrapper) Shutdown(ctx context.Context) error {
	return c.impl.Shutdown(ctx)
}

// Close terminates the connection and cleans up resources.
func (c *clientWrapper) Close() error {
	return c.impl.Close()
}
