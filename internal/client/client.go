// Package client implements the broker client operations on top of the
// transport and dispatcher layers.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/oklog/ulid/v2"

	"github.com/shortbus-io/shortbus-go/internal/config"
	"github.com/shortbus-io/shortbus-go/internal/errors"
	"github.com/shortbus-io/shortbus-go/internal/protocol"
	"github.com/shortbus-io/shortbus-go/internal/subprocess"
)

// Client implements the shortbus client interface.
//
// Every operation is a blocking call: it writes one command frame and
// waits for the correlated response, bounded by the configured timeout.
// Operations may be invoked concurrently from any number of goroutines.
type Client struct {
	log        *slog.Logger
	options    *config.Options
	transport  config.Transport
	dispatcher *protocol.Dispatcher

	// Resolved publish schemas keyed by topic; read-only after Start.
	schemas map[string]*jsonschema.Resolved

	// Lifecycle management
	mu        sync.Mutex
	connected bool
	closed    bool
	closeOnce sync.Once
}

// New creates a new client.
//
// The client is not connected after creation. Call Start() with options
// to spawn (or attach to) the broker.
func New() *Client {
	return &Client{}
}

// Start establishes the broker connection.
//
// This method spawns the broker subprocess (or uses an injected transport)
// and starts the background read loops. Returns BrokerNotFoundError if the
// broker binary cannot be located, or ConnectionError if the process fails
// to start.
func (c *Client) Start(ctx context.Context, options *config.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClientClosed
	}

	if c.connected {
		return errors.ErrClientAlreadyConnected
	}

	if options == nil {
		options = &config.Options{}
	}

	log := options.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// ULID identifies this connection across the read-loop, side-channel,
	// and caller log lines.
	c.log = log.With("component", "client", "conn", ulid.Make().String())
	c.options = options

	schemas, err := resolveTopicSchemas(options.TopicSchemas)
	if err != nil {
		return err
	}

	c.schemas = schemas

	var transport config.Transport

	if options.Transport != nil {
		transport = options.Transport

		c.log.Debug("Using injected custom transport")
	} else {
		transport = subprocess.NewPipeTransport(c.log, options)
	}

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	c.transport = transport

	c.dispatcher = protocol.NewDispatcher(c.log, transport)
	if err := c.dispatcher.Start(ctx); err != nil {
		_ = transport.Close()

		return fmt.Errorf("start dispatcher: %w", err)
	}

	c.connected = true
	c.log.Info("Client connected", "timeout", options.RequestTimeout())

	return nil
}

// Publish sends a payload to a topic and waits for the broker's ack.
//
// A nil metadata map is sent as an empty object. If a schema is registered
// for the topic, the payload is validated locally first; a violation fails
// with *SchemaError before any bytes reach the wire.
func (c *Client) Publish(
	ctx context.Context,
	topic string,
	payload any,
	metadata map[string]any,
) (*protocol.Response, error) {
	dispatcher, timeout, err := c.engine()
	if err != nil {
		return nil, err
	}

	if resolved := c.schemas[topic]; resolved != nil {
		if err := resolved.Validate(payload); err != nil {
			return nil, &errors.SchemaError{Topic: topic, Err: err}
		}
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	fields := map[string]any{
		"topic":    topic,
		"payload":  payload,
		"metadata": metadata,
	}

	return dispatcher.SendRequest(ctx, protocol.OpPublish, fields, timeout)
}

// Subscribe registers handler for a topic and waits for the broker's ack.
//
// The handler is registered before the subscribe command is written, so no
// window exists where a push could arrive unrouted while the command is
// still in flight. The handler stays registered even if the broker rejects
// the command; use Unsubscribe to remove it.
func (c *Client) Subscribe(
	ctx context.Context,
	topic string,
	handler protocol.Handler,
) (*protocol.Response, error) {
	dispatcher, timeout, err := c.engine()
	if err != nil {
		return nil, err
	}

	dispatcher.Subscribe(topic, handler)

	return dispatcher.SendRequest(ctx, protocol.OpSubscribe, map[string]any{"topic": topic}, timeout)
}

// Unsubscribe removes every handler for a topic and waits for the
// broker's ack. Handlers are removed immediately, independent of whether
// the broker acknowledges.
func (c *Client) Unsubscribe(ctx context.Context, topic string) (*protocol.Response, error) {
	dispatcher, timeout, err := c.engine()
	if err != nil {
		return nil, err
	}

	dispatcher.Unsubscribe(topic)

	return dispatcher.SendRequest(ctx, protocol.OpUnsubscribe, map[string]any{"topic": topic}, timeout)
}

// Ping checks broker liveness.
func (c *Client) Ping(ctx context.Context) (*protocol.Response, error) {
	dispatcher, timeout, err := c.engine()
	if err != nil {
		return nil, err
	}

	return dispatcher.SendRequest(ctx, protocol.OpPing, nil, timeout)
}

// Shutdown asks the broker to stop and closes the write side.
//
// The shutdown command is sent without waiting for a response. After
// Shutdown the client accepts no new operations.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return errors.ErrClientClosed
	}

	if !c.connected {
		c.mu.Unlock()

		return errors.ErrClientNotConnected
	}

	c.closed = true
	dispatcher := c.dispatcher
	transport := c.transport

	c.mu.Unlock()

	c.log.Info("Shutting down broker connection")

	err := dispatcher.SendCommand(ctx, protocol.OpShutdown, nil)

	if endErr := transport.EndInput(); endErr != nil && err == nil {
		err = fmt.Errorf("close write side: %w", endErr)
	}

	return err
}

// Close tears the connection down and releases all resources.
// After Close(), the client cannot be reused. Safe to call multiple times.
func (c *Client) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.mu.Lock()

		c.closed = true
		dispatcher := c.dispatcher
		transport := c.transport
		c.connected = false

		c.mu.Unlock()

		if dispatcher != nil {
			dispatcher.Stop()
		}

		if transport != nil {
			closeErr = transport.Close()
		}

		if c.log != nil {
			c.log.Info("Client closed")
		}
	})

	return closeErr
}

// engine returns the dispatcher and per-request timeout, failing fast if
// the client is closed, never connected, or the connection was lost.
func (c *Client) engine() (*protocol.Dispatcher, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, 0, errors.ErrClientClosed
	}

	if !c.connected {
		return nil, 0, errors.ErrClientNotConnected
	}

	return c.dispatcher, c.options.RequestTimeout(), nil
}

// resolveTopicSchemas resolves configured publish schemas up front so a
// malformed schema fails Start instead of the first publish.
func resolveTopicSchemas(
	schemas map[string]*jsonschema.Schema,
) (map[string]*jsonschema.Resolved, error) {
	if len(schemas) == 0 {
		return nil, nil
	}

	resolved := make(map[string]*jsonschema.Resolved, len(schemas))

	for topic, schema := range schemas {
		rs, err := schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve schema for topic %q: %w", topic, err)
		}

		resolved[topic] = rs
	}

	return resolved, nil
}
