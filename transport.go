package shortbus

import "github.com/shortbus-io/shortbus-go/internal/config"

// Transport abstracts the byte-stream connection to the broker.
// Implement this to provide custom transports for testing, mocking,
// or alternative connection mechanics (e.g., sockets instead of pipes).
//
// The default implementation is PipeTransport which spawns the broker
// subprocess. Custom transports can be injected via WithTransport.
type Transport = config.Transport
