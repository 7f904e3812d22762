package protocol

import (
	"context"
	"encoding/json"
	"sync"
)

// RequestHandler handles an inbound request. The returned value is marshalled
// as the result; a nil value is sent as JSON null. Returning a *jsonrpc.Error
// selects the error code sent to the peer; any other error is reported as an
// internal error.
//
// The context is cancelled when the peer sends $/cancelRequest for this
// request or the session closes. Handlers that honour it should return
// ctx.Err().
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// NotificationHandler handles an inbound notification. Errors are logged.
// Notification handlers run one at a time in arrival order.
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// Registrar registers handlers by method name.
type Registrar interface {
	RegisterRequestHandler(method string, handler RequestHandler)
	RegisterNotificationHandler(method string, handler NotificationHandler)
}

// requestEntry is a registered request handler. Detached handlers run outside
// the handler pool and are not awaited by a drain.
type requestEntry struct {
	handler  RequestHandler
	detached bool
}

// dispatchTable maps method names to handlers. Re-registering a method
// replaces the handler for frames dispatched afterwards.
type dispatchTable struct {
	mu            sync.RWMutex
	requests      map[string]requestEntry
	notifications map[string]NotificationHandler
}

func newDispatchTable() *dispatchTable {
	return &dispatchTable{
		requests:      make(map[string]requestEntry, 16),
		notifications: make(map[string]NotificationHandler, 16),
	}
}

func (d *dispatchTable) setRequest(method string, entry requestEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests[method] = entry
}

func (d *dispatchTable) setNotification(method string, handler NotificationHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.notifications[method] = handler
}

func (d *dispatchTable) request(method string) (requestEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.requests[method]

	return entry, ok
}

func (d *dispatchTable) notification(method string) (NotificationHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.notifications[method]

	return h, ok
}
