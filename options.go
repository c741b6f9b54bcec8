package shortbus

import (
	"log/slog"
	"time"

	"github.com/shortbus-io/shortbus-go/internal/config"
)

// Options configures the behavior of the shortbus client.
type Options = config.Options

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to an Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTimeout sets the maximum wait per request.
// Defaults to 5 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithBrokerPath sets the explicit path to the shortbus broker binary.
// If not set, the broker will be searched in PATH and common locations.
func WithBrokerPath(path string) Option {
	return func(o *Options) {
		o.BrokerPath = path
	}
}

// WithBrokerArgs sets the arguments passed to the broker binary.
// Defaults to ["pipe"].
func WithBrokerArgs(args ...string) Option {
	return func(o *Options) {
		o.BrokerArgs = args
	}
}

// WithEnv provides additional environment variables for the broker process.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// WithCwd sets the working directory for the broker process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithStderr sets a callback invoked for each line of broker diagnostic
// output. Lines are logged regardless; the callback is additive.
func WithStderr(callback func(string)) Option {
	return func(o *Options) {
		o.Stderr = callback
	}
}

// WithMaxBufferSize sets the maximum bytes for a single broker output line.
func WithMaxBufferSize(size int) Option {
	return func(o *Options) {
		o.MaxBufferSize = &size
	}
}

// WithTopicSchema registers a JSON schema for a topic. Publishes to that
// topic are validated locally against the schema before being sent; a
// violation fails with *SchemaError without touching the wire.
func WithTopicSchema(topic string, schema *Schema) Option {
	return func(o *Options) {
		if o.TopicSchemas == nil {
			o.TopicSchemas = map[string]*Schema{}
		}

		o.TopicSchemas[topic] = schema
	}
}

// WithTransport injects a custom transport implementation.
// If not set, the default PipeTransport spawning the broker is used.
func WithTransport(transport Transport) Option {
	return func(o *Options) {
		o.Transport = transport
	}
}
