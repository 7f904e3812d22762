package protocol

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/agentrpc-go/internal/jsonrpc"
)

// outcome is the resolution of an outbound request.
type outcome struct {
	result json.RawMessage
	err    error
}

// pendingRequest tracks an outgoing request awaiting its response.
type pendingRequest struct {
	id        jsonrpc.ID
	method    string
	createdAt time.Time
	cancelled atomic.Bool

	once   sync.Once
	result chan outcome
}

func newPendingRequest(id jsonrpc.ID, method string) *pendingRequest {
	return &pendingRequest{
		id:        id,
		method:    method,
		createdAt: time.Now(),
		result:    make(chan outcome, 1),
	}
}

// resolve delivers the outcome. Only the first call has an effect.
func (p *pendingRequest) resolve(o outcome) bool {
	resolved := false

	p.once.Do(func() {
		p.result <- o
		resolved = true
	})

	return resolved
}

// pendingTable maps correlation ids to outstanding requests. Once drained it
// refuses new entries.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
	closed  bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingRequest, 16)}
}

// add inserts p and reports false if the table was already drained.
func (t *pendingTable) add(p *pendingRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	t.entries[p.id.Key()] = p

	return true
}

// take removes and returns the entry for id.
func (t *pendingTable) take(id jsonrpc.ID) (*pendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[id.Key()]
	if ok {
		delete(t.entries, id.Key())
	}

	return p, ok
}

// drain removes every entry and closes the table.
func (t *pendingTable) drain() []*pendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true

	out := make([]*pendingRequest, 0, len(t.entries))
	for key, p := range t.entries {
		out = append(out, p)
		delete(t.entries, key)
	}

	return out
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}
