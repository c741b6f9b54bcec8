package shortbus

import "github.com/shortbus-io/shortbus-go/internal/errors"

// Re-export error types from internal package

// BrokerNotFoundError indicates the broker binary was not found.
type BrokerNotFoundError = errors.BrokerNotFoundError

// ConnectionError indicates failure to establish the broker connection.
type ConnectionError = errors.ConnectionError

// ProcessError indicates the broker process exited unexpectedly.
type ProcessError = errors.ProcessError

// DecodeError indicates a single broker line failed to decode.
type DecodeError = errors.DecodeError

// OperationError indicates the broker answered a request with status "error".
type OperationError = errors.OperationError

// SchemaError indicates a publish payload violated its topic's schema.
type SchemaError = errors.SchemaError

// ShortbusError is the base interface for all errors produced by this module.
type ShortbusError = errors.ShortbusError

// Re-export sentinel errors from internal package.
var (
	// ErrClientNotConnected indicates the client is not connected.
	ErrClientNotConnected = errors.ErrClientNotConnected

	// ErrClientAlreadyConnected indicates the client is already connected.
	ErrClientAlreadyConnected = errors.ErrClientAlreadyConnected

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.ErrClientClosed

	// ErrTransportNotConnected indicates the transport is not connected.
	ErrTransportNotConnected = errors.ErrTransportNotConnected

	// ErrRequestTimeout indicates no response arrived within the configured bound.
	ErrRequestTimeout = errors.ErrRequestTimeout

	// ErrConnectionLost indicates the broker stream terminated. All pending
	// and subsequent operations fail with this error.
	ErrConnectionLost = errors.ErrConnectionLost
)
