// Package shortbus provides a Go client for the shortbus message broker
// in pipe mode.
//
// The client spawns the broker process (or attaches to an injected
// transport) and speaks one JSON object per line over a single
// bidirectional stream. On top of that stream it multiplexes correlated
// command responses and unsolicited topic messages: every operation is a
// blocking request/response pair keyed by a monotonically increasing
// request id, while push messages fan out to per-topic subscriber
// callbacks.
//
// Basic usage:
//
//	bus := shortbus.NewClient()
//	defer bus.Close()
//
//	if err := bus.Start(ctx, shortbus.WithLogger(slog.Default())); err != nil {
//	    log.Fatal(err)
//	}
//
//	_, err := bus.Subscribe(ctx, "events", func(msg *shortbus.PushMessage) {
//	    fmt.Println("received:", msg.Topic, msg.Payload)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := bus.Publish(ctx, "events", "hello", nil); err != nil {
//	    log.Fatal(err)
//	}
//
// Concurrency: any number of goroutines may invoke operations on one
// client. Two background goroutines exist per connection: the read loop
// over the primary stream and the drain of the broker's stderr side
// channel. Subscriber callbacks run on the read-loop goroutine and must
// not block.
//
// Failure model: a malformed broker line is logged and skipped; a
// panicking subscriber is contained and logged; a broker error response
// fails only the operation that triggered it (*OperationError); a timeout
// fails the waiting call and removes its registry entry
// (ErrRequestTimeout). Only loss of the broker stream is terminal: every
// pending call fails with ErrConnectionLost and later calls fail fast
// without attempting a write. Reconnection is the caller's concern.
package shortbus
