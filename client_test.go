package shortbus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTransport is a Transport backed by in-memory channels.
type stubTransport struct {
	mu      sync.Mutex
	frames  []map[string]any
	msgChan chan map[string]any
	errChan chan error
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		msgChan: make(chan map[string]any, 10),
		errChan: make(chan error, 1),
	}
}

func (s *stubTransport) Start(context.Context) error { return nil }

func (s *stubTransport) ReadMessages(context.Context) (<-chan map[string]any, <-chan error) {
	return s.msgChan, s.errChan
}

func (s *stubTransport) SendMessage(_ context.Context, data []byte) error {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}

	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()

	// Acknowledge every command except shutdown, which has no waiter.
	if frame["op"] != "shutdown" {
		s.msgChan <- map[string]any{"request_id": frame["request_id"], "status": "ok"}
	}

	return nil
}

func (s *stubTransport) EndInput() error { return nil }
func (s *stubTransport) Close() error    { return nil }

func (s *stubTransport) push(topic string, payload any) {
	s.msgChan <- map[string]any{"type": "message", "topic": topic, "payload": payload}
}

func TestClientPublicAPI(t *testing.T) {
	transport := newStubTransport()

	bus := NewClient()
	t.Cleanup(func() { _ = bus.Close() })

	ctx := context.Background()
	require.NoError(t, bus.Start(ctx, WithTransport(transport), WithTimeout(time.Second)))

	resp, err := bus.Ping(ctx)
	require.NoError(t, err)
	assert.True(t, resp.IsOK())

	received := make(chan *PushMessage, 1)

	_, err = bus.Subscribe(ctx, "orders", func(msg *PushMessage) {
		received <- msg
	})
	require.NoError(t, err)

	transport.push("orders", map[string]any{"id": float64(42)})

	select {
	case msg := <-received:
		assert.Equal(t, "orders", msg.Topic)
		assert.Equal(t, map[string]any{"id": float64(42)}, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("push was not delivered")
	}

	resp, err = bus.Publish(ctx, "orders", map[string]any{"id": 43}, map[string]any{"source": "test"})
	require.NoError(t, err)
	assert.True(t, resp.IsOK())

	_, err = bus.Unsubscribe(ctx, "orders")
	require.NoError(t, err)

	require.NoError(t, bus.Shutdown(ctx))

	_, err = bus.Ping(ctx)
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestApplyOptions(t *testing.T) {
	transport := newStubTransport()
	callback := func(string) {}

	options := applyOptions([]Option{
		WithTimeout(2 * time.Second),
		WithBrokerPath("/opt/shortbus/bin/shortbus"),
		WithBrokerArgs("pipe", "--verbose"),
		WithEnv(map[string]string{"SHORTBUS_LOG": "debug"}),
		WithCwd("/tmp"),
		WithStderr(callback),
		WithMaxBufferSize(1 << 20),
		WithTopicSchema("metrics", &Schema{Type: "object"}),
		WithTransport(transport),
	})

	assert.Equal(t, 2*time.Second, options.Timeout)
	assert.Equal(t, "/opt/shortbus/bin/shortbus", options.BrokerPath)
	assert.Equal(t, []string{"pipe", "--verbose"}, options.BrokerArgs)
	assert.Equal(t, map[string]string{"SHORTBUS_LOG": "debug"}, options.Env)
	assert.Equal(t, "/tmp", options.Cwd)
	assert.NotNil(t, options.Stderr)
	require.NotNil(t, options.MaxBufferSize)
	assert.Equal(t, 1<<20, *options.MaxBufferSize)
	require.Contains(t, options.TopicSchemas, "metrics")
	assert.Same(t, transport, options.Transport)
}
