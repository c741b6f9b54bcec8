package protocol

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// pendingRequest tracks an outgoing request awaiting its response.
type pendingRequest struct {
	op       string
	response chan *Response
	created  time.Time
}

// requestRegistry correlates outstanding request ids with their waiters.
//
// Ids are monotonically increasing and unique among outstanding requests;
// at most one pendingRequest exists per id and each is resolved at most
// once. Entries are removed either by resolve (response arrived) or by
// expire (caller gave up), so a timed-out request never lingers.
type requestRegistry struct {
	log    *slog.Logger
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*pendingRequest
}

func newRequestRegistry(log *slog.Logger) *requestRegistry {
	return &requestRegistry{
		log:     log,
		pending: make(map[uint64]*pendingRequest, 10),
	}
}

// allocate returns the next request id.
func (r *requestRegistry) allocate() uint64 {
	return r.nextID.Add(1)
}

// register stores a waiter for the given id and returns it.
// The response channel is buffered so resolve never blocks the read loop.
func (r *requestRegistry) register(id uint64, op string) *pendingRequest {
	pending := &pendingRequest{
		op:       op,
		response: make(chan *Response, 1),
		created:  time.Now(),
	}

	r.mu.Lock()
	r.pending[id] = pending
	r.mu.Unlock()

	return pending
}

// resolve removes and completes the waiter for id. It reports whether a
// waiter existed; an unknown, late, or duplicate response is dropped.
func (r *requestRegistry) resolve(id uint64, resp *Response) bool {
	r.mu.Lock()

	pending, exists := r.pending[id]
	if exists {
		delete(r.pending, id)
	}

	r.mu.Unlock()

	if !exists {
		return false
	}

	// We own the entry now; the channel is buffered so this never blocks.
	pending.response <- resp

	return true
}

// expire removes the waiter for id without completing it. Called when the
// issuing caller stops waiting (timeout, cancellation, connection loss).
func (r *requestRegistry) expire(id uint64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// failAll drops every outstanding entry and returns how many there were.
// Waiters are woken through the dispatcher's done broadcast; clearing the
// map here guarantees nothing is retained after connection loss.
func (r *requestRegistry) failAll() int {
	r.mu.Lock()
	n := len(r.pending)
	clear(r.pending)
	r.mu.Unlock()

	return n
}

// outstanding returns the number of registered waiters.
func (r *requestRegistry) outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}
