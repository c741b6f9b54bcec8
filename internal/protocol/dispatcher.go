package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/shortbus-io/shortbus-go/internal/errors"
)

// Transport defines the minimal interface needed for dispatcher operations.
//
// This interface is satisfied by the PipeTransport but allows for testing
// with mock transports.
type Transport interface {
	ReadMessages(ctx context.Context) (<-chan map[string]any, <-chan error)
	SendMessage(ctx context.Context, data []byte) error
}

// Dispatcher multiplexes the single broker stream into correlated
// request/response pairs and per-topic push deliveries.
//
// The Dispatcher handles:
//   - Sending commands with unique, monotonically increasing request ids
//   - Routing responses to the waiter matching their request_id
//   - Fanning out unsolicited push messages to topic subscribers
//   - Request timeout enforcement and registry expiry
//   - Failing all pending waiters when the connection is lost
//
// The Dispatcher must be started with Start() before use and manages its
// own goroutine for reading and routing messages.
type Dispatcher struct {
	log       *slog.Logger
	transport Transport

	requests *requestRegistry
	subs     *subscriptionRegistry

	// Fatal error handling - stores error and broadcasts via done channel
	errMu    sync.RWMutex
	fatalErr error

	// Lifecycle management
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewDispatcher creates a new dispatcher over the given transport.
//
// The logger will receive debug, info, warn, and error messages during
// protocol operations. The transport must be connected before calling
// Start().
func NewDispatcher(log *slog.Logger, transport Transport) *Dispatcher {
	log = log.With("component", "dispatcher")

	return &Dispatcher{
		log:       log,
		transport: transport,
		requests:  newRequestRegistry(log),
		subs:      newSubscriptionRegistry(log),
		done:      make(chan struct{}),
	}
}

// closeDone safely closes the done channel exactly once.
func (d *Dispatcher) closeDone() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
}

// fail records the connection loss, wakes every waiter, and clears the
// registry so no pending entry outlives the stream.
func (d *Dispatcher) fail(cause error) {
	err := error(errors.ErrConnectionLost)
	if cause != nil {
		err = fmt.Errorf("%w: %w", errors.ErrConnectionLost, cause)
	}

	d.errMu.Lock()

	if d.fatalErr == nil {
		d.fatalErr = err
	}

	d.errMu.Unlock()

	d.closeDone()

	if n := d.requests.failAll(); n > 0 {
		d.log.Warn("Connection lost with requests pending", "pending", n, "error", cause)
	}
}

// FatalError returns the terminal error if the connection was lost.
func (d *Dispatcher) FatalError() error {
	d.errMu.RLock()
	defer d.errMu.RUnlock()

	return d.fatalErr
}

// Done returns a channel that is closed when the dispatcher stops.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Start begins reading from the transport and routing messages.
//
// This method spawns a goroutine that classifies each decoded record and
// routes it to the matching waiter or topic subscribers. The goroutine
// stops when the context is cancelled or the stream terminates.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.log.Debug("Starting dispatcher")

	messages, errs := d.transport.ReadMessages(ctx)

	d.wg.Add(1)

	go d.readLoop(ctx, messages, errs)

	d.log.Info("Dispatcher started")

	return nil
}

// Stop shuts the dispatcher down and waits for the read loop to exit.
// It's safe to call Stop multiple times.
func (d *Dispatcher) Stop() {
	d.log.Debug("Stopping dispatcher")

	d.closeDone()
	d.wg.Wait()
	d.log.Info("Dispatcher stopped")
}

// Subscribe appends handler to the topic's ordered handler list.
//
// Callers must register the handler before sending the subscribe command
// so no push can arrive unrouted while the command is in flight.
func (d *Dispatcher) Subscribe(topic string, handler Handler) {
	d.log.Debug("Registering subscriber", "topic", topic)
	d.subs.subscribe(topic, handler)
}

// Unsubscribe removes every handler registered for the topic.
func (d *Dispatcher) Unsubscribe(topic string) {
	d.log.Debug("Removing subscribers", "topic", topic)
	d.subs.unsubscribe(topic)
}

// Outstanding returns the number of requests currently awaiting responses.
func (d *Dispatcher) Outstanding() int {
	return d.requests.outstanding()
}

// SendRequest sends a command and waits for the correlated response.
//
// This method allocates the next request id, registers a waiter, writes
// the command, and blocks until the matching response arrives or the
// timeout expires. On every non-response exit the registry entry is
// expired so nothing is retained after the caller gives up.
//
// A broker response with status other than "ok" is returned as an
// *errors.OperationError carrying the broker's error string.
func (d *Dispatcher) SendRequest(
	ctx context.Context,
	op string,
	fields map[string]any,
	timeout time.Duration,
) (*Response, error) {
	// Fail fast after connection loss instead of attempting a write.
	select {
	case <-d.done:
		return nil, d.terminalError()
	default:
	}

	id := d.requests.allocate()
	pending := d.requests.register(id, op)

	d.log.Debug("Sending command", "request_id", id, "op", op)

	if err := d.send(ctx, op, id, fields); err != nil {
		d.requests.expire(id)

		return nil, err
	}

	select {
	case resp := <-pending.response:
		if !resp.IsOK() {
			errMsg := resp.ErrorMessage()
			d.log.Warn("Broker rejected command", "request_id", id, "op", op, "error", errMsg)

			return nil, &errors.OperationError{Op: op, Message: errMsg}
		}

		d.log.Debug("Received response", "request_id", id, "op", op)

		return resp, nil

	case <-d.done:
		// Connection lost or dispatcher stopped - fail fast
		d.requests.expire(id)

		return nil, d.terminalError()

	case <-time.After(timeout):
		d.requests.expire(id)

		d.log.Warn("Command timed out", "request_id", id, "op", op, "timeout", timeout)

		return nil, fmt.Errorf("%w after %s", errors.ErrRequestTimeout, timeout)

	case <-ctx.Done():
		d.requests.expire(id)

		d.log.Debug("Command cancelled", "request_id", id, "op", op)

		return nil, ctx.Err()
	}
}

// SendCommand sends a command without registering a waiter.
// Used for shutdown, which the broker does not acknowledge.
func (d *Dispatcher) SendCommand(ctx context.Context, op string, fields map[string]any) error {
	select {
	case <-d.done:
		return d.terminalError()
	default:
	}

	id := d.requests.allocate()

	d.log.Debug("Sending command without waiter", "request_id", id, "op", op)

	return d.send(ctx, op, id, fields)
}

// send marshals and writes one command frame.
func (d *Dispatcher) send(ctx context.Context, op string, id uint64, fields map[string]any) error {
	frame := make(map[string]any, len(fields)+2)
	maps.Copy(frame, fields)
	frame["op"] = op
	frame["request_id"] = id

	data, err := json.Marshal(frame)
	if err != nil {
		d.log.Error("Failed to marshal command", "request_id", id, "error", err)

		return fmt.Errorf("marshal command: %w", err)
	}

	if err := d.transport.SendMessage(ctx, data); err != nil {
		d.log.Error("Failed to send command", "request_id", id, "error", err)

		return fmt.Errorf("send command: %w", err)
	}

	return nil
}

// terminalError reports why the dispatcher is no longer accepting work.
func (d *Dispatcher) terminalError() error {
	if err := d.FatalError(); err != nil {
		return err
	}

	return errors.ErrClientClosed
}

// readLoop reads decoded records from the transport and routes them.
//
// Decode failures are logged and skipped; only stream termination or an
// unrecoverable read fault ends the loop, at which point every pending
// waiter is failed with ErrConnectionLost.
func (d *Dispatcher) readLoop(
	ctx context.Context,
	messages <-chan map[string]any,
	errs <-chan error,
) {
	defer d.wg.Done()
	defer d.log.Debug("Dispatcher read loop stopped")

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				d.log.Debug("Broker stream ended")
				d.fail(nil)

				return
			}

			d.handleMessage(msg)

		case err, ok := <-errs:
			if !ok {
				// Errors drained; keep reading messages until they close too.
				errs = nil

				continue
			}

			var decodeErr *errors.DecodeError
			if stderrors.As(err, &decodeErr) {
				d.log.Warn("Dropping undecodable line", "line", decodeErr.RawData, "error", decodeErr.Err)

				continue
			}

			d.log.Error("Unrecoverable read fault", "error", err)
			d.fail(err)

			return

		case <-d.done:
			d.log.Debug("Dispatcher stop signal received")

			return

		case <-ctx.Done():
			d.log.Debug("Context cancelled in dispatcher read loop")
			d.fail(ctx.Err())

			return
		}
	}
}

// handleMessage classifies one decoded record.
//
// Precedence: push message, then correlated response, then unsolicited
// broker error, then log-and-ignore.
func (d *Dispatcher) handleMessage(msg map[string]any) {
	msgType, _ := msg["type"].(string)

	if msgType == "message" {
		push := pushFromRaw(msg)
		if push.Topic == "" {
			d.log.Warn("Push message missing topic")

			return
		}

		d.subs.dispatch(push)

		return
	}

	if id, ok := requestIDOf(msg); ok {
		if d.requests.resolve(id, &Response{Raw: msg}) {
			return
		}

		// Unknown, late, or duplicate response - drop without raising.
		if msgType == "error" {
			d.log.Warn("Broker reported error", "request_id", id, "error", msg["error"])

			return
		}

		d.log.Warn("No pending request for response", "request_id", id)

		return
	}

	if msgType == "error" {
		d.log.Warn("Broker reported error", "error", msg["error"])

		return
	}

	d.log.Debug("Ignoring unrecognized message", "type", msgType)
}
