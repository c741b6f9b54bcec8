package errors

import (
	"errors"
	"fmt"
)

// ShortbusError is the base interface for all errors produced by this module.
type ShortbusError interface {
	error
	IsShortbusError() bool
}

// Compile-time verification that all error types implement ShortbusError.
var (
	_ ShortbusError = (*BrokerNotFoundError)(nil)
	_ ShortbusError = (*ConnectionError)(nil)
	_ ShortbusError = (*ProcessError)(nil)
	_ ShortbusError = (*DecodeError)(nil)
	_ ShortbusError = (*OperationError)(nil)
	_ ShortbusError = (*SchemaError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrClientNotConnected indicates the client is not connected.
	ErrClientNotConnected = errors.New("client not connected")

	// ErrClientAlreadyConnected indicates the client is already connected.
	ErrClientAlreadyConnected = errors.New("client already connected")

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.New("client closed: clients are single-use, create a new one with NewClient()")

	// ErrTransportNotConnected indicates the transport is not connected.
	ErrTransportNotConnected = errors.New("transport not connected")

	// ErrRequestTimeout indicates no response arrived within the configured bound.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrConnectionLost indicates the broker stream terminated. Every pending
	// request fails with this error, as does any call attempted afterwards.
	ErrConnectionLost = errors.New("connection to broker lost")

	// ErrStdinClosed indicates the write side of the transport was closed.
	ErrStdinClosed = errors.New("stdin closed")
)

// BrokerNotFoundError indicates the broker binary was not found.
type BrokerNotFoundError struct {
	SearchedPaths []string
}

func (e *BrokerNotFoundError) Error() string {
	return fmt.Sprintf("shortbus broker not found in: %v", e.SearchedPaths)
}

// IsShortbusError implements ShortbusError.
func (e *BrokerNotFoundError) IsShortbusError() bool { return true }

// ConnectionError indicates failure to establish the broker connection.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to broker: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsShortbusError implements ShortbusError.
func (e *ConnectionError) IsShortbusError() bool { return true }

// ProcessError indicates the broker process exited unexpectedly.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("broker process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsShortbusError implements ShortbusError.
func (e *ProcessError) IsShortbusError() bool { return true }

// DecodeError indicates a single line from the broker failed to decode.
// The read loop logs it and continues; it never terminates the stream.
// This error preserves the raw line that failed to parse.
type DecodeError struct {
	RawData string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode line from broker: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsShortbusError implements ShortbusError.
func (e *DecodeError) IsShortbusError() bool { return true }

// OperationError indicates the broker answered a request with status "error".
// Message carries the broker-supplied error string verbatim.
type OperationError struct {
	Op      string
	Message string
}

func (e *OperationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed", e.Op)
	}

	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

// IsShortbusError implements ShortbusError.
func (e *OperationError) IsShortbusError() bool { return true }

// SchemaError indicates a publish payload violated the schema registered
// for its topic. The command is rejected locally, before any write.
type SchemaError struct {
	Topic string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("payload rejected by schema for topic %q: %v", e.Topic, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// IsShortbusError implements ShortbusError.
func (e *SchemaError) IsShortbusError() bool { return true }
