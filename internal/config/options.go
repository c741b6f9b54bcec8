package config

import (
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// DefaultTimeout is the per-request wait bound used when none is configured.
const DefaultTimeout = 5 * time.Second

// Options configures the behavior of the shortbus client.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Timeout is the maximum wait per request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// BrokerPath is the explicit path to the shortbus broker binary.
	// If empty, the broker is searched in PATH and common locations.
	BrokerPath string

	// BrokerArgs are the arguments passed to the broker binary.
	// Defaults to ["pipe"].
	BrokerArgs []string

	// Env provides additional environment variables for the broker process.
	Env map[string]string

	// Cwd sets the working directory for the broker process.
	Cwd string

	// Stderr is a callback invoked for each line of broker diagnostic
	// output. Lines are logged regardless; the callback is additive.
	Stderr func(string)

	// MaxBufferSize sets the maximum bytes for a single broker output line.
	// If nil, uses default buffering.
	MaxBufferSize *int

	// TopicSchemas maps topic names to JSON schemas. A publish to a topic
	// with a registered schema is validated locally before it is sent.
	TopicSchemas map[string]*jsonschema.Schema

	// Transport allows injecting a custom transport implementation.
	// If nil, the default PipeTransport is created automatically.
	// This field is not serialized to JSON.
	Transport Transport `json:"-"`
}

// RequestTimeout returns the configured per-request timeout, defaulted.
func (o *Options) RequestTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}

	return DefaultTimeout
}
