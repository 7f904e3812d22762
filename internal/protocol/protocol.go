package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
	"github.com/wagiedev/agentrpc-go/internal/jsonrpc"
)

// Gate is consulted by the receive loop before an inbound message is
// dispatched. It runs on the receive goroutine, so state changes it makes are
// ordered with respect to every later frame.
type Gate interface {
	// GateRequest returns a non-nil error to answer the request without
	// invoking its handler.
	GateRequest(req *jsonrpc.Request) *jsonrpc.Error

	// GateNotification reports whether the notification is queued for its
	// handler. $/cancelRequest never reaches the gate.
	GateNotification(n *jsonrpc.Notification) bool
}

// Controller multiplexes requests and notifications over one transport.
//
// The Controller handles:
//   - Sending requests with monotonically increasing ids and correlating
//     responses that arrive in any order
//   - Dispatching inbound requests concurrently, each with a context that
//     $/cancelRequest cancels
//   - Delivering inbound notifications one at a time in arrival order
//   - Failing every pending request when the session closes
//
// The Controller must be started with Start() before use and manages its own
// goroutines for reading frames and delivering notifications.
type Controller struct {
	log         *slog.Logger
	transport   config.Transport
	metrics     config.Metrics
	cancelGrace time.Duration
	sem         *semaphore.Weighted
	gate        Gate

	nextID   atomic.Int64
	pending  *pendingTable
	dispatch *dispatchTable
	queue    *notificationQueue

	// In-flight inbound requests, keyed by correlation id. running counts the
	// non-detached handlers and idle is closed when it drops to zero.
	inFlightMu sync.Mutex
	inFlight   map[string]*inFlightRequest
	running    int
	idle       chan struct{}

	// Lifecycle management
	started   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	group     errgroup.Group
	handlers  sync.WaitGroup
	detached  sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}

	errMu    sync.RWMutex
	closeErr error
}

// inFlightRequest tracks an inbound request whose handler is running.
type inFlightRequest struct {
	method    string
	cancel    context.CancelFunc
	startTime time.Time
}

// NewController creates a new protocol controller.
//
// The logger will receive debug, info, warn, and error messages during
// protocol operations. The transport must be started before calling Start().
func NewController(log *slog.Logger, transport config.Transport, opts *config.Options) *Controller {
	opts = opts.WithDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		log:         log.With("component", "protocol"),
		transport:   transport,
		metrics:     opts.Metrics,
		cancelGrace: opts.CancelGracePeriod,
		pending:     newPendingTable(),
		dispatch:    newDispatchTable(),
		queue:       newNotificationQueue(),
		inFlight:    make(map[string]*inFlightRequest, 16),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	if opts.MaxConcurrentHandlers > 0 {
		c.sem = semaphore.NewWeighted(int64(opts.MaxConcurrentHandlers))
	}

	return c
}

// SetGate installs the admission gate. It must be called before Start.
func (c *Controller) SetGate(g Gate) {
	c.gate = g
}

// Start begins reading frames from the transport.
//
// The controller closes when ctx is cancelled, when the transport ends, or
// when Close is called.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return stderrors.New("protocol controller already started")
	}

	c.log.Debug("Starting protocol controller")

	frames, errs := c.transport.ReadFrames(c.ctx)

	stop := context.AfterFunc(ctx, func() {
		c.Close(context.Cause(ctx))
	})

	c.group.Go(func() error {
		defer stop()

		return c.readLoop(frames, errs)
	})
	c.group.Go(c.notifyLoop)

	c.log.Info("Protocol controller started")

	return nil
}

// Close tears the controller down without waiting: the transport is closed,
// in-flight handlers are cancelled and every pending request fails with
// ConnectionClosed wrapping cause. Only the first call has an effect.
func (c *Controller) Close(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.closeErr = cause
		c.errMu.Unlock()

		close(c.done)
		c.cancel()

		if err := c.transport.Close(); err != nil {
			c.log.Debug("Transport close failed", "error", err)
		}

		drained := c.pending.drain()
		closedErr := connectionClosedError(cause)

		for _, p := range drained {
			p.resolve(outcome{err: closedErr})
		}

		c.metrics.PendingChanged(-len(drained))

		c.log.Info("Protocol controller closed", "cause", cause, "failed_pending", len(drained))
	})
}

// Wait blocks until every goroutine started by the controller has returned.
// It returns the transport error that ended the session, if any.
func (c *Controller) Wait() error {
	err := c.group.Wait()

	c.handlers.Wait()
	c.detached.Wait()

	return err
}

// Stop closes the controller and waits for its goroutines.
// It's safe to call Stop multiple times.
func (c *Controller) Stop() {
	c.Close(nil)
	_ = c.Wait()

	c.log.Debug("Protocol controller stopped")
}

// Done returns a channel that is closed when the controller closes.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the cause passed to Close, or nil for a local close.
func (c *Controller) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.closeErr
}

// PendingCount returns the number of outbound requests awaiting a response.
func (c *Controller) PendingCount() int {
	return c.pending.len()
}

// InFlightCount returns the number of inbound requests being handled.
func (c *Controller) InFlightCount() int {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()

	return len(c.inFlight)
}

// RegisterRequestHandler registers the handler for an inbound request method.
// Registering a method twice replaces the handler for later requests.
func (c *Controller) RegisterRequestHandler(method string, handler RequestHandler) {
	c.log.Debug("Registering request handler", "method", method)
	c.dispatch.setRequest(method, requestEntry{handler: handler})
}

// RegisterNotificationHandler registers the handler for an inbound notification.
// Registering a method twice replaces the handler for later notifications.
func (c *Controller) RegisterNotificationHandler(method string, handler NotificationHandler) {
	c.log.Debug("Registering notification handler", "method", method)
	c.dispatch.setNotification(method, handler)
}

// registerDetached registers a request handler that runs outside the handler
// pool. Drain does not wait for it.
func (c *Controller) registerDetached(method string, handler RequestHandler) {
	c.dispatch.setRequest(method, requestEntry{handler: handler, detached: true})
}

// Drain waits until every dispatched request handler has returned and every
// queued notification has been delivered.
func (c *Controller) Drain(ctx context.Context) error {
	c.inFlightMu.Lock()

	if c.running > 0 {
		if c.idle == nil {
			c.idle = make(chan struct{})
		}

		idle := c.idle
		c.inFlightMu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		c.inFlightMu.Unlock()
	}

	return c.queue.waitIdle(ctx)
}

// Request sends a request and waits for its response.
//
// ctx is the cancellation token. If it is done before the response arrives,
// $/cancelRequest is sent once and the peer's answer is awaited for the
// cancel grace period; after that a local RequestCancelled error is returned.
//
// A response carrying an error is returned as *jsonrpc.Error.
func (c *Controller) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !c.started.Load() {
		return nil, errors.ErrSessionNotStarted
	}

	start := time.Now()

	id := jsonrpc.Int64ID(c.nextID.Add(1))

	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	frame, err := jsonrpc.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	if ctx.Err() != nil {
		return nil, cancelledError(ctx)
	}

	p := newPendingRequest(id, method)
	if !c.pending.add(p) {
		return nil, connectionClosedError(c.Err())
	}

	c.metrics.PendingChanged(1)

	c.log.Debug("Sending request", "id", id, "method", method)

	if err := c.send(frame); err != nil {
		if _, ok := c.pending.take(id); ok {
			c.metrics.PendingChanged(-1)
		}

		c.metrics.ObserveRequest(directionOutbound, method, outcomeLabel(err), time.Since(start))

		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	o := c.await(ctx, p)

	c.metrics.ObserveRequest(directionOutbound, method, outcomeLabel(o.err), time.Since(start))

	if o.err != nil {
		c.log.Debug("Request failed", "id", id, "method", method, "error", o.err)

		return nil, o.err
	}

	c.log.Debug("Received response", "id", id, "method", method)

	return o.result, nil
}

// await waits for p to resolve, applying the cancellation protocol when ctx
// is done first.
func (c *Controller) await(ctx context.Context, p *pendingRequest) outcome {
	select {
	case o := <-p.result:
		return o
	case <-ctx.Done():
	}

	// A response that raced the cancellation wins.
	select {
	case o := <-p.result:
		return o
	default:
	}

	if p.cancelled.CompareAndSwap(false, true) {
		c.log.Debug("Cancelling request", "id", p.id, "method", p.method)

		if err := c.Notify(c.ctx, MethodCancelRequest, CancelParams{ID: p.id}); err != nil {
			c.log.Debug("Could not send cancel request", "id", p.id, "error", err)
		}
	}

	timer := time.NewTimer(c.cancelGrace)
	defer timer.Stop()

	select {
	case o := <-p.result:
		return o
	case <-timer.C:
	}

	c.log.Debug("Peer did not answer cancelled request in time", "id", p.id, "grace", c.cancelGrace)

	if _, ok := c.pending.take(p.id); ok {
		c.metrics.PendingChanged(-1)
	}

	p.resolve(outcome{err: cancelledError(ctx)})

	return <-p.result
}

// Notify sends a notification.
func (c *Controller) Notify(ctx context.Context, method string, params any) error {
	if !c.started.Load() {
		return errors.ErrSessionNotStarted
	}

	select {
	case <-c.done:
		return errors.ErrSessionClosed
	default:
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}

	frame, err := jsonrpc.Encode(n)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	if err := c.send(frame); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	c.metrics.ObserveNotification(directionOutbound, method)

	return nil
}

func (c *Controller) send(frame []byte) error {
	return c.transport.SendFrame(c.ctx, frame)
}

// readLoop reads frames from the transport and routes them.
func (c *Controller) readLoop(frames <-chan []byte, errs <-chan error) error {
	defer c.log.Debug("Protocol read loop stopped")

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				err := <-errs
				if err != nil {
					c.log.Error("Transport failed", "error", err)
					c.Close(err)

					return err
				}

				c.log.Debug("Transport closed by peer")
				c.Close(&errors.TransportError{Err: io.EOF})

				return nil
			}

			c.handleFrame(frame)

		case <-c.done:
			return nil
		}
	}
}

// handleFrame decodes one frame and routes it by message kind.
func (c *Controller) handleFrame(frame []byte) {
	msg, err := jsonrpc.Decode(frame)
	if err != nil {
		c.log.Warn("Dropping ill-formed frame", "error", err)
		c.metrics.ObserveProtocolError()

		return
	}

	switch m := msg.(type) {
	case *jsonrpc.Response:
		c.handleResponse(m)
	case *jsonrpc.Request:
		c.handleRequest(m)
	case *jsonrpc.Notification:
		c.handleNotification(m)
	}
}

// handleResponse resolves the pending request with the response's id.
func (c *Controller) handleResponse(resp *jsonrpc.Response) {
	p, ok := c.pending.take(resp.ID)
	if !ok {
		c.log.Warn("Dropping response for unknown request", "id", resp.ID)

		return
	}

	c.metrics.PendingChanged(-1)

	o := outcome{result: resp.Result}
	if resp.Error != nil {
		o = outcome{err: resp.Error}
	}

	p.resolve(o)
}

// handleRequest admits an inbound request and runs its handler concurrently.
func (c *Controller) handleRequest(req *jsonrpc.Request) {
	start := time.Now()

	c.log.Debug("Received request", "id", req.ID, "method", req.Method)

	if c.gate != nil {
		if rpcErr := c.gate.GateRequest(req); rpcErr != nil {
			c.log.Debug("Request rejected", "id", req.ID, "method", req.Method, "error", rpcErr)
			c.finishRequest(req, nil, rpcErr, start)

			return
		}
	}

	entry, ok := c.dispatch.request(req.Method)
	if !ok {
		c.log.Debug("No handler registered for request", "method", req.Method)
		c.finishRequest(req, nil, jsonrpc.NewErrorf(jsonrpc.CodeMethodNotFound, "method not found: %s", req.Method), start)

		return
	}

	key := req.ID.Key()
	opCtx, cancel := context.WithCancel(c.ctx)

	c.inFlightMu.Lock()

	if _, dup := c.inFlight[key]; dup {
		c.inFlightMu.Unlock()
		cancel()

		c.log.Warn("Duplicate request id", "id", req.ID, "method", req.Method)
		c.finishRequest(req, nil, jsonrpc.NewErrorf(jsonrpc.CodeInvalidRequest, "duplicate request id %s", req.ID), start)

		return
	}

	c.inFlight[key] = &inFlightRequest{method: req.Method, cancel: cancel, startTime: start}

	if !entry.detached {
		c.running++
	}

	c.inFlightMu.Unlock()

	run := func() {
		defer func() {
			c.inFlightMu.Lock()
			delete(c.inFlight, key)

			if !entry.detached {
				c.running--

				if c.running == 0 && c.idle != nil {
					close(c.idle)
					c.idle = nil
				}
			}

			c.inFlightMu.Unlock()

			cancel()
		}()

		c.runRequest(opCtx, req, entry, start)
	}

	if entry.detached {
		c.detached.Go(run)
	} else {
		c.handlers.Go(run)
	}
}

// runRequest invokes the handler and sends its response.
func (c *Controller) runRequest(ctx context.Context, req *jsonrpc.Request, entry requestEntry, start time.Time) {
	if c.sem != nil && !entry.detached {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.finishRequest(req, nil, jsonrpc.NewError(jsonrpc.CodeRequestCancelled, errors.ErrRequestCancelled.Error()), start)

			return
		}

		defer c.sem.Release(1)
	}

	result, err := c.invoke(ctx, req, entry.handler)

	switch {
	case err != nil && (ctx.Err() != nil || stderrors.Is(err, context.Canceled)):
		c.log.Debug("Handler was cancelled", "id", req.ID, "method", req.Method)
		c.finishRequest(req, nil, jsonrpc.NewError(jsonrpc.CodeRequestCancelled, errors.ErrRequestCancelled.Error()), start)

	case err != nil:
		c.log.Debug("Handler returned error", "id", req.ID, "method", req.Method, "error", err)
		c.finishRequest(req, nil, jsonrpc.ErrorFrom(err), start)

	default:
		c.finishRequest(req, result, nil, start)
	}
}

// invoke calls the handler, converting a panic into an internal error.
func (c *Controller) invoke(ctx context.Context, req *jsonrpc.Request, h RequestHandler) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Request handler panicked",
				"id", req.ID,
				"method", req.Method,
				"panic", r,
				"stack", string(debug.Stack()),
			)

			err = jsonrpc.NewErrorf(jsonrpc.CodeInternalError, "handler panicked: %v", r)
		}
	}()

	return h(ctx, req.Params)
}

// finishRequest sends the response for req and records its outcome.
func (c *Controller) finishRequest(req *jsonrpc.Request, result any, rpcErr *jsonrpc.Error, start time.Time) {
	var resp *jsonrpc.Response

	if rpcErr == nil {
		r, err := jsonrpc.NewResultResponse(req.ID, result)
		if err != nil {
			c.log.Error("Failed to marshal result", "id", req.ID, "method", req.Method, "error", err)

			rpcErr = jsonrpc.NewErrorf(jsonrpc.CodeInternalError, "marshal result: %v", err)
		} else {
			resp = r
		}
	}

	if rpcErr != nil {
		resp = jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}

	c.metrics.ObserveRequest(directionInbound, req.Method, outcomeLabel(rpcErrOrNil(rpcErr)), time.Since(start))

	frame, err := jsonrpc.Encode(resp)
	if err != nil {
		c.log.Error("Failed to encode response", "id", req.ID, "error", err)

		return
	}

	if err := c.send(frame); err != nil {
		// Don't log error if the session is closing (expected during shutdown)
		if c.ctx.Err() != nil {
			c.log.Debug("Could not send response during shutdown", "id", req.ID, "error", err)

			return
		}

		c.log.Error("Failed to send response", "id", req.ID, "error", err)
	}
}

// handleNotification applies $/cancelRequest inline and queues everything
// the gate admits for ordered delivery.
func (c *Controller) handleNotification(n *jsonrpc.Notification) {
	c.log.Debug("Received notification", "method", n.Method)
	c.metrics.ObserveNotification(directionInbound, n.Method)

	if n.Method == MethodCancelRequest {
		c.handleCancelRequest(n.Params)

		return
	}

	if c.gate != nil && !c.gate.GateNotification(n) {
		return
	}

	handler, ok := c.dispatch.notification(n.Method)
	if !ok {
		c.log.Debug("No handler registered for notification", "method", n.Method)

		return
	}

	c.queue.push(queuedNotification{method: n.Method, params: n.Params, handler: handler})
}

// handleCancelRequest cancels the context of an in-flight request. Cancels
// for unknown or completed requests are ignored.
func (c *Controller) handleCancelRequest(raw json.RawMessage) {
	var params CancelParams
	if err := json.Unmarshal(raw, &params); err != nil || !params.ID.IsValid() {
		c.log.Warn("Ignoring malformed cancel request", "params", string(raw))

		return
	}

	c.inFlightMu.Lock()
	op, ok := c.inFlight[params.ID.Key()]
	c.inFlightMu.Unlock()

	if !ok {
		c.log.Debug("Cancel request for unknown or completed request", "id", params.ID)

		return
	}

	c.log.Debug("Cancelling in-flight request", "id", params.ID, "method", op.method,
		"running_for", time.Since(op.startTime))

	op.cancel()
}

// notifyLoop delivers queued notifications in arrival order. After the
// controller closes, handlers see a cancelled context.
func (c *Controller) notifyLoop() error {
	defer c.log.Debug("Notification loop stopped")

	for {
		for n, ok := c.queue.next(); ok; n, ok = c.queue.next() {
			c.deliver(n)
		}

		select {
		case <-c.queue.wake:
		case <-c.done:
			// Notifications that arrived before the close are still delivered.
			for n, ok := c.queue.next(); ok; n, ok = c.queue.next() {
				c.deliver(n)
			}

			return nil
		}
	}
}

// deliver invokes one notification handler, recovering from panics.
func (c *Controller) deliver(n queuedNotification) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Notification handler panicked",
				"method", n.method,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := n.handler(c.ctx, n.params); err != nil {
		c.log.Warn("Notification handler failed", "method", n.method, "error", err)
	}
}

// connectionClosedError is the error pending requests fail with on close.
func connectionClosedError(cause error) error {
	base := jsonrpc.NewError(jsonrpc.CodeConnectionClosed, errors.ErrConnectionClosed.Error())
	if cause == nil {
		return base
	}

	return fmt.Errorf("%w: %w", base, cause)
}

// cancelledError is the error a locally cancelled request resolves with.
func cancelledError(ctx context.Context) error {
	base := jsonrpc.NewError(jsonrpc.CodeRequestCancelled, errors.ErrRequestCancelled.Error())
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", base, err)
	}

	return base
}

func rpcErrOrNil(e *jsonrpc.Error) error {
	if e == nil {
		return nil
	}

	return e
}

// outcomeLabel classifies a request result for metrics.
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}

	if rpcErr, ok := stderrors.AsType[*jsonrpc.Error](err); ok {
		switch rpcErr.Code {
		case jsonrpc.CodeRequestCancelled:
			return "cancelled"
		case jsonrpc.CodeConnectionClosed:
			return "connection_closed"
		case jsonrpc.CodeMethodNotFound:
			return "method_not_found"
		case jsonrpc.CodeNotInitialized:
			return "not_initialized"
		case jsonrpc.CodeInvalidParams:
			return "invalid_params"
		case jsonrpc.CodeInvalidRequest:
			return "invalid_request"
		case jsonrpc.CodeInternalError:
			return "internal_error"
		default:
			return "application_error"
		}
	}

	if _, ok := stderrors.AsType[*errors.TransportError](err); ok {
		return "transport_error"
	}

	return "error"
}
