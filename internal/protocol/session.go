package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
	"github.com/wagiedev/agentrpc-go/internal/jsonrpc"
)

// clientInfoSchema validates initialize params.
var clientInfoSchema = sync.OnceValues(newParamsSchema[config.ClientInfo])

// Session binds a Controller to the lifecycle state machine.
//
// A server session answers initialize and gates every other message on the
// current state. A client session drives the handshake with Initialize and
// ends the session with Shutdown and Exit.
type Session struct {
	id         string
	role       Role
	log        *slog.Logger
	opts       *config.Options
	transport  config.Transport
	controller *Controller
	life       *lifecycle

	// Handshake results (protected by infoMu)
	infoMu     sync.RWMutex
	clientInfo *config.ClientInfo
	serverInfo *config.ServerInfo

	// initOK is set once the server answered initialize successfully.
	initOK atomic.Bool
	// cleanExit is set when exit followed shutdown.
	cleanExit atomic.Bool

	handshakeMu sync.Mutex
	wg          sync.WaitGroup
}

// Compile-time verification that Session implements Gate and Registrar.
var (
	_ Gate      = (*Session)(nil)
	_ Registrar = (*Session)(nil)
	_ Caller    = (*Session)(nil)
)

// NewServerSession creates a session that answers the handshake.
func NewServerSession(transport config.Transport, opts *config.Options) *Session {
	s := newSession(RoleServer, transport, opts)
	s.registerServerHandlers()

	return s
}

// NewClientSession creates a session that initiates the handshake.
func NewClientSession(transport config.Transport, opts *config.Options) *Session {
	return newSession(RoleClient, transport, opts)
}

func newSession(role Role, transport config.Transport, opts *config.Options) *Session {
	opts = opts.WithDefaults()

	id := ulid.Make().String()
	log := opts.Logger.With("session_id", id, "role", role.String())

	s := &Session{
		id:        id,
		role:      role,
		log:       log.With("component", "session"),
		opts:      opts,
		transport: transport,
		life: &lifecycle{
			log:     log.With("component", "lifecycle"),
			metrics: opts.Metrics,
			state:   StateUninitialized,
		},
	}

	s.controller = NewController(log, transport, opts)
	s.controller.SetGate(s)

	return s
}

// Start starts the transport and begins processing messages.
func (s *Session) Start(ctx context.Context) error {
	s.log.Debug("Starting session")

	if err := s.transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	if err := s.controller.Start(ctx); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}

	s.wg.Go(func() {
		<-s.controller.Done()

		if prev, ok := s.life.transition(StateClosed); ok {
			s.log.Debug("Session closed", "previous_state", prev.String(), "cause", s.controller.Err())
		}
	})

	return nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Role returns the handshake role of the session.
func (s *Session) Role() Role { return s.role }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.life.get() }

// ClientInfo returns the initialize params once the handshake succeeded.
func (s *Session) ClientInfo() (config.ClientInfo, bool) {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()

	if s.clientInfo == nil {
		return config.ClientInfo{}, false
	}

	return *s.clientInfo, true
}

// ServerInfo returns the initialize result once the handshake succeeded.
func (s *Session) ServerInfo() (config.ServerInfo, bool) {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()

	if s.serverInfo == nil {
		return config.ServerInfo{}, false
	}

	return *s.serverInfo, true
}

// CleanExit reports whether the peer sent exit after shutdown.
func (s *Session) CleanExit() bool { return s.cleanExit.Load() }

// PendingCount returns the number of outbound requests awaiting a response.
func (s *Session) PendingCount() int { return s.controller.PendingCount() }

// Done returns a channel that is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.controller.Done() }

// Err returns the cause of the close: a *errors.TransportError when the
// transport was lost, a *errors.HandshakeTimeoutError when the handshake
// timed out, or nil for an orderly close.
func (s *Session) Err() error { return s.controller.Err() }

// Wait blocks until the session closed and every handler returned.
func (s *Session) Wait() error {
	err := s.controller.Wait()
	s.wg.Wait()

	return err
}

// Close closes the session and waits for its goroutines. Pending requests
// fail with ConnectionClosed.
func (s *Session) Close() error {
	s.closeWith(nil)

	return s.Wait()
}

func (s *Session) closeWith(cause error) {
	s.life.transition(StateClosed)
	s.controller.Close(cause)
}

// RegisterRequestHandler registers the handler for an inbound request method.
// Lifecycle methods are reserved.
func (s *Session) RegisterRequestHandler(method string, handler RequestHandler) {
	if isLifecycleMethod(method) {
		s.log.Warn("Ignoring handler for reserved method", "method", method)

		return
	}

	s.controller.RegisterRequestHandler(method, handler)
}

// RegisterNotificationHandler registers the handler for an inbound notification.
// A handler for initialized runs after the session became ready.
func (s *Session) RegisterNotificationHandler(method string, handler NotificationHandler) {
	if isLifecycleMethod(method) && method != MethodInitialized {
		s.log.Warn("Ignoring handler for reserved method", "method", method)

		return
	}

	s.controller.RegisterNotificationHandler(method, handler)
}

// Request sends a request to the peer and waits for its response.
// See Controller.Request for the cancellation behavior.
func (s *Session) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := s.checkOutbound(method); err != nil {
		return nil, err
	}

	return s.controller.Request(ctx, method, params)
}

// Notify sends a notification to the peer. Notifications are still sent
// while shutting down so that draining handlers can push their results.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	if err := s.checkOutbound(method); err != nil && !stderrors.Is(err, errors.ErrShuttingDown) {
		return err
	}

	return s.controller.Notify(ctx, method, params)
}

func (s *Session) checkOutbound(method string) error {
	if isLifecycleMethod(method) {
		return fmt.Errorf("%s is sent by the session lifecycle: %w", method, errors.ErrInvalidRequest)
	}

	switch s.life.get() {
	case StateShuttingDown:
		return errors.ErrShuttingDown
	case StateClosed:
		return fmt.Errorf("%w: %w", connectionClosedError(nil), errors.ErrSessionClosed)
	default:
		return nil
	}
}

// DebugMessage pushes a debug/message notification to the client.
func (s *Session) DebugMessage(ctx context.Context, channel, message string) error {
	return s.Notify(ctx, MethodDebugMessage, DebugMessageParams{Channel: channel, Message: message})
}

// PostWebviewMessage pushes a webview/postMessage notification carrying an
// arbitrary payload for the webview with the given id.
func (s *Session) PostWebviewMessage(ctx context.Context, id string, message any) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal webview message: %w", err)
	}

	return s.Notify(ctx, MethodWebviewPostMessage, WebviewMessageParams{ID: id, Message: raw})
}

// registerServerHandlers installs the lifecycle handlers of the server role.
func (s *Session) registerServerHandlers() {
	s.controller.RegisterRequestHandler(MethodInitialize, s.handleInitialize)

	// shutdown runs outside the handler pool so draining it cannot wait on itself.
	s.controller.registerDetached(MethodShutdown, func(ctx context.Context, _ json.RawMessage) (any, error) {
		s.log.Info("Shutdown requested, draining handlers")

		if err := s.controller.Drain(ctx); err != nil {
			return nil, err
		}

		s.log.Debug("Handlers drained")

		return nil, nil
	})
}

// handleInitialize answers initialize. Any failure returns the session to
// the uninitialized state so the client may retry.
func (s *Session) handleInitialize(ctx context.Context, raw json.RawMessage) (any, error) {
	info, err := s.initialize(ctx, raw)
	if err != nil {
		s.log.Warn("Initialize failed", "error", err)
		s.life.transition(StateUninitialized, StateInitializing)

		return nil, err
	}

	return info, nil
}

func (s *Session) initialize(ctx context.Context, raw json.RawMessage) (config.ServerInfo, error) {
	schema, err := clientInfoSchema()
	if err != nil {
		return config.ServerInfo{}, jsonrpc.NewErrorf(jsonrpc.CodeInternalError, "initialize schema: %v", err)
	}

	client, err := decodeParams[config.ClientInfo](schema, raw)
	if err != nil {
		return config.ServerInfo{}, err
	}

	s.log.Info("Client connected", "client", client.Name, "client_version", client.Version)

	server := s.opts.ServerInfo
	if s.opts.OnInitialize != nil {
		server, err = s.opts.OnInitialize(ctx, client)
		if err != nil {
			return config.ServerInfo{}, err
		}

		if server.Name == "" {
			server.Name = config.DefaultServerName
		}
	}

	s.infoMu.Lock()
	s.clientInfo = &client
	s.serverInfo = &server
	s.infoMu.Unlock()

	s.initOK.Store(true)

	return server, nil
}

// GateRequest implements Gate.
func (s *Session) GateRequest(req *jsonrpc.Request) *jsonrpc.Error {
	if s.role == RoleClient {
		return nil
	}

	if req.Method == MethodInitialize {
		if prev, ok := s.life.transition(StateInitializing, StateUninitialized); !ok {
			return jsonrpc.NewErrorf(jsonrpc.CodeInvalidRequest, "initialize not allowed in state %s", prev)
		}

		s.initOK.Store(false)

		return nil
	}

	switch state := s.life.get(); state {
	case StateUninitialized, StateInitializing:
		return jsonrpc.NewErrorf(jsonrpc.CodeNotInitialized, "%s: %s", errors.ErrNotInitialized, req.Method)

	case StateReady:
		if req.Method == MethodShutdown {
			if prev, ok := s.life.transition(StateShuttingDown, StateReady); !ok {
				return jsonrpc.NewErrorf(jsonrpc.CodeInvalidRequest, "shutdown not allowed in state %s", prev)
			}
		}

		return nil

	default:
		return jsonrpc.NewErrorf(jsonrpc.CodeInvalidRequest, "%s not allowed in state %s", req.Method, state)
	}
}

// GateNotification implements Gate.
func (s *Session) GateNotification(n *jsonrpc.Notification) bool {
	if s.role == RoleClient {
		return true
	}

	switch n.Method {
	case MethodExit:
		prev := s.life.get()

		switch prev {
		case StateUninitialized, StateInitializing:
			s.log.Debug("Dropping exit before initialization", "state", prev.String())

			return false
		case StateShuttingDown:
			s.cleanExit.Store(true)
		default:
			s.log.Warn("Exit received without shutdown", "state", prev.String())
		}

		s.closeWith(nil)

		return false

	case MethodInitialized:
		if !s.initOK.Load() {
			s.log.Warn("Ignoring initialized before a successful initialize", "state", s.life.get().String())

			return false
		}

		if prev, ok := s.life.transition(StateReady, StateInitializing); !ok {
			s.log.Warn("Ignoring unexpected initialized", "state", prev.String())

			return false
		}

		return true
	}

	switch state := s.life.get(); state {
	case StateUninitialized, StateInitializing:
		s.log.Debug("Dropping notification before initialization", "method", n.Method)

		return false
	default:
		return true
	}
}

// Initialize performs the client side of the handshake: initialize followed
// by initialized. The handshake must finish within the handshake timeout or
// the session closes with a *errors.HandshakeTimeoutError.
//
// An error response leaves the session uninitialized so Initialize may be
// called again.
func (s *Session) Initialize(ctx context.Context, client config.ClientInfo) (config.ServerInfo, error) {
	if s.role != RoleClient {
		return config.ServerInfo{}, fmt.Errorf("initialize from server session: %w", errors.ErrInvalidRequest)
	}

	s.handshakeMu.Lock()
	defer s.handshakeMu.Unlock()

	if prev, ok := s.life.transition(StateInitializing, StateUninitialized); !ok {
		if prev == StateClosed {
			return config.ServerInfo{}, errors.ErrSessionClosed
		}

		return config.ServerInfo{}, errors.ErrAlreadyInitialized
	}

	timeout := s.opts.HandshakeTimeout

	timer := time.AfterFunc(timeout, func() {
		s.log.Error("Handshake timed out", "timeout", timeout)
		s.closeWith(&errors.HandshakeTimeoutError{Timeout: timeout})
	})
	defer timer.Stop()

	s.log.Debug("Sending initialize", "client", client.Name)

	server, err := Call[config.ServerInfo](ctx, s.controller, MethodInitialize, client)
	if err != nil {
		if timeoutErr := s.handshakeTimeout(); timeoutErr != nil {
			return config.ServerInfo{}, timeoutErr
		}

		s.life.transition(StateUninitialized, StateInitializing)

		return config.ServerInfo{}, fmt.Errorf("initialize: %w", err)
	}

	if err := s.controller.Notify(ctx, MethodInitialized, nil); err != nil {
		if timeoutErr := s.handshakeTimeout(); timeoutErr != nil {
			return config.ServerInfo{}, timeoutErr
		}

		return config.ServerInfo{}, fmt.Errorf("initialized: %w", err)
	}

	if !timer.Stop() {
		if timeoutErr := s.handshakeTimeout(); timeoutErr != nil {
			return config.ServerInfo{}, timeoutErr
		}
	}

	s.infoMu.Lock()
	s.clientInfo = &client
	s.serverInfo = &server
	s.infoMu.Unlock()

	if prev, ok := s.life.transition(StateReady, StateInitializing); !ok {
		return config.ServerInfo{}, fmt.Errorf("handshake finished in state %s: %w", prev, errors.ErrSessionClosed)
	}

	s.log.Info("Session initialized", "server", server.Name, "server_version", server.Version)

	return server, nil
}

// handshakeTimeout returns the close cause if the handshake timer fired.
func (s *Session) handshakeTimeout() error {
	if timeoutErr, ok := stderrors.AsType[*errors.HandshakeTimeoutError](s.controller.Err()); ok {
		return timeoutErr
	}

	return nil
}

// Shutdown asks the server to drain its handlers. New outbound requests are
// refused from this point on.
func (s *Session) Shutdown(ctx context.Context) error {
	if prev, ok := s.life.transition(StateShuttingDown, StateReady); !ok {
		if prev == StateClosed {
			return errors.ErrSessionClosed
		}

		return fmt.Errorf("shutdown in state %s: %w", prev, errors.ErrInvalidRequest)
	}

	if _, err := s.controller.Request(ctx, MethodShutdown, nil); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

// Exit sends exit and closes the session.
func (s *Session) Exit(ctx context.Context) error {
	if state := s.life.get(); state != StateShuttingDown {
		s.log.Warn("Sending exit without shutdown", "state", state.String())
	}

	err := s.controller.Notify(ctx, MethodExit, nil)

	s.closeWith(nil)

	if err != nil {
		return fmt.Errorf("exit: %w", err)
	}

	return nil
}

// ShutdownAndExit performs the orderly close sequence and waits for the
// session's goroutines. Exit is sent even when shutdown fails.
func (s *Session) ShutdownAndExit(ctx context.Context) error {
	shutdownErr := s.Shutdown(ctx)
	exitErr := s.Exit(ctx)

	waitErr := s.Wait()

	return stderrors.Join(shutdownErr, exitErr, waitErr)
}
