package shortbus

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/shortbus-io/shortbus-go/internal/protocol"
)

// Response is the full result record of an acknowledged command.
type Response = protocol.Response

// PushMessage is one unsolicited topic message from the broker.
type PushMessage = protocol.PushMessage

// Handler receives push messages for a subscribed topic.
//
// Handlers run on the shared read-loop goroutine: a blocking handler
// stalls delivery to every other subscriber. Hand long-running work off
// to a separate goroutine.
type Handler = protocol.Handler

// Schema is a JSON schema for topic payload validation.
// See WithTopicSchema.
type Schema = jsonschema.Schema
