package config

import "context"

// Transport abstracts the byte-stream connection to the broker.
//
// Implementations frame one JSON object per line in both directions.
// The default implementation is PipeTransport, which spawns a broker
// subprocess; custom transports can be injected via Options.Transport
// for testing or alternative connection mechanics.
type Transport interface {
	// Start establishes the connection.
	Start(ctx context.Context) error

	// ReadMessages returns a channel of decoded inbound objects and a
	// channel of read faults. A malformed line surfaces as a *DecodeError
	// on the error channel and does not stop the message stream. Both
	// channels are closed when the stream terminates.
	ReadMessages(ctx context.Context) (<-chan map[string]any, <-chan error)

	// SendMessage writes one message as a single newline-terminated line.
	// Writes are mutually exclusive across callers so concurrent senders
	// never interleave partial lines.
	SendMessage(ctx context.Context, data []byte) error

	// EndInput closes the write side of the connection, signaling that no
	// more commands will be sent.
	EndInput() error

	// Close tears the connection down.
	Close() error
}
