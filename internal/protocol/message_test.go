package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDOf(t *testing.T) {
	tests := []struct {
		name   string
		msg    map[string]any
		wantID uint64
		wantOK bool
	}{
		{"float64", map[string]any{"request_id": float64(7)}, 7, true},
		{"json number", map[string]any{"request_id": json.Number("12")}, 12, true},
		{"uint64", map[string]any{"request_id": uint64(3)}, 3, true},
		{"int", map[string]any{"request_id": 9}, 9, true},
		{"absent", map[string]any{}, 0, false},
		{"null", map[string]any{"request_id": nil}, 0, false},
		{"string", map[string]any{"request_id": "5"}, 0, false},
		{"negative float", map[string]any{"request_id": float64(-1)}, 0, false},
		{"fractional", map[string]any{"request_id": 1.5}, 0, false},
		{"negative int", map[string]any{"request_id": -2}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := requestIDOf(tt.msg)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestResponseAccessors(t *testing.T) {
	raw := map[string]any{
		"request_id": float64(4),
		"status":     "ok",
		"count":      float64(2),
	}

	resp := &Response{Raw: raw}

	assert.True(t, resp.IsOK())
	assert.Equal(t, "ok", resp.Status())
	assert.Empty(t, resp.ErrorMessage())
	assert.Equal(t, float64(2), resp.Get("count"))

	id, ok := resp.RequestID()
	require.True(t, ok)
	assert.Equal(t, uint64(4), id)

	failed := &Response{Raw: map[string]any{"status": "error", "error": "denied"}}
	assert.False(t, failed.IsOK())
	assert.Equal(t, "denied", failed.ErrorMessage())
}

func TestPushFromRaw(t *testing.T) {
	raw := map[string]any{
		"type":     "message",
		"topic":    "events",
		"payload":  map[string]any{"user": "bob"},
		"metadata": map[string]any{"seq": float64(1)},
	}

	msg := pushFromRaw(raw)

	assert.Equal(t, "events", msg.Topic)
	assert.Equal(t, map[string]any{"user": "bob"}, msg.Payload)
	assert.Equal(t, map[string]any{"seq": float64(1)}, msg.Metadata)
	// Handlers get the record verbatim.
	assert.Equal(t, raw, msg.Raw)
}
