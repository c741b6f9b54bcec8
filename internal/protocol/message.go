package protocol

import (
	"encoding/json"
	"math"
	"strconv"
)

// Operation names understood by the broker.
const (
	OpPublish     = "publish"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
	OpShutdown    = "shutdown"
)

// Response is one correlated broker reply, kept as the decoded record so
// callers receive every result field the broker included. It is never
// mutated after decode.
type Response struct {
	Raw map[string]any
}

// Status returns the broker-reported status ("ok" or "error").
func (r *Response) Status() string {
	s, _ := r.Raw["status"].(string)

	return s
}

// IsOK reports whether the broker accepted the request.
func (r *Response) IsOK() bool {
	return r.Status() == "ok"
}

// ErrorMessage returns the broker-supplied error string, if any.
func (r *Response) ErrorMessage() string {
	msg, _ := r.Raw["error"].(string)

	return msg
}

// RequestID returns the correlation id carried by the response.
func (r *Response) RequestID() (uint64, bool) {
	return requestIDOf(r.Raw)
}

// Get returns an arbitrary result field from the response record.
func (r *Response) Get(key string) any {
	return r.Raw[key]
}

// PushMessage is one unsolicited topic message from the broker.
type PushMessage struct {
	Topic    string
	Payload  any
	Metadata map[string]any

	// Raw is the full decoded record, forwarded verbatim to handlers.
	Raw map[string]any
}

// Handler receives push messages for a subscribed topic.
//
// Handlers run on the shared read-loop goroutine: one blocking handler
// stalls delivery to every other subscriber, so handlers must hand
// long-running work off to their own goroutines.
type Handler func(*PushMessage)

// pushFromRaw builds a PushMessage from a decoded "message" record.
func pushFromRaw(msg map[string]any) *PushMessage {
	topic, _ := msg["topic"].(string)
	metadata, _ := msg["metadata"].(map[string]any)

	return &PushMessage{
		Topic:    topic,
		Payload:  msg["payload"],
		Metadata: metadata,
		Raw:      msg,
	}
}

// requestIDOf extracts a numeric request_id from a decoded record.
// JSON numbers decode as float64; json.Number and plain integer values
// (as injected by tests) are tolerated as well.
func requestIDOf(msg map[string]any) (uint64, bool) {
	switch v := msg["request_id"].(type) {
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return 0, false
		}

		return uint64(v), true

	case json.Number:
		id, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return 0, false
		}

		return id, true

	case uint64:
		return v, true

	case int:
		if v < 0 {
			return 0, false
		}

		return uint64(v), true

	default:
		return 0, false
	}
}
