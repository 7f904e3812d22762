package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
	"github.com/wagiedev/agentrpc-go/internal/jsonrpc"
	"github.com/wagiedev/agentrpc-go/internal/transport"
)

// sessionPair connects a server and a client session over in-process pipes.
func sessionPair(t *testing.T, serverOpts, clientOpts *config.Options) (*Session, *Session) {
	t.Helper()

	sr, cw := io.Pipe()
	cr, sw := io.Pipe()

	framer := transport.NewFramer(config.FramingLine, 0)

	server := NewServerSession(transport.NewStream(nopLogger(), sr, sw, framer), serverOpts)
	client := NewClientSession(transport.NewStream(nopLogger(), cr, cw, framer), clientOpts)

	ctx := context.Background()

	require.NoError(t, server.Start(ctx))
	require.NoError(t, client.Start(ctx))

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	return server, client
}

// startServer starts a server session on a transport driven by the test.
func startServer(t *testing.T, opts *config.Options) (*Session, *mockTransport) {
	t.Helper()

	mock := newMockTransport()
	server := NewServerSession(mock, opts)

	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { _ = server.Close() })

	return server, mock
}

// handshake drives initialize and initialized against a mock-backed server.
func handshake(t *testing.T, server *Session, mock *mockTransport) {
	t.Helper()

	mock.inject(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"name":"test-client"}}`)
	require.Nil(t, mock.nextResponse(t).Error)

	mock.inject(`{"jsonrpc":"2.0","method":"initialized"}`)
	require.Eventually(t, func() bool { return server.State() == StateReady }, waitTimeout, 5*time.Millisecond)
}

func TestSession_Handshake(t *testing.T) {
	server, client := sessionPair(t, nil, nil)

	info, err := client.Initialize(context.Background(), config.ClientInfo{
		Name:         "test-client",
		Version:      "1.2.3",
		Capabilities: map[string]any{"textDocument": map[string]any{"sync": true}},
	})
	require.NoError(t, err)
	require.Equal(t, config.DefaultServerName, info.Name)
	require.Equal(t, config.Version, info.Version)

	require.Equal(t, StateReady, client.State())
	require.Eventually(t, func() bool { return server.State() == StateReady }, waitTimeout, 5*time.Millisecond)

	clientInfo, ok := server.ClientInfo()
	require.True(t, ok)
	require.Equal(t, "test-client", clientInfo.Name)
	require.True(t, clientInfo.HasCapability("textDocument.sync"))

	serverInfo, ok := client.ServerInfo()
	require.True(t, ok)
	require.Equal(t, info, serverInfo)

	require.NotEmpty(t, server.ID())
	require.NotEqual(t, server.ID(), client.ID())
	require.Equal(t, RoleServer, server.Role())
	require.Equal(t, RoleClient, client.Role())
}

func TestSession_OnInitialize(t *testing.T) {
	authenticated := true

	server, client := sessionPair(t, &config.Options{
		OnInitialize: func(_ context.Context, c config.ClientInfo) (config.ServerInfo, error) {
			return config.ServerInfo{
				Version:       "9.9.9",
				Authenticated: &authenticated,
				Capabilities:  map[string]any{"chat": true, "client": c.Name},
			}, nil
		},
	}, nil)

	info, err := client.Initialize(context.Background(), config.ClientInfo{Name: "editor"})
	require.NoError(t, err)
	require.Equal(t, config.DefaultServerName, info.Name)
	require.Equal(t, "9.9.9", info.Version)
	require.NotNil(t, info.Authenticated)
	require.True(t, *info.Authenticated)
	require.Equal(t, "editor", info.Capabilities["client"])

	_, ok := server.ServerInfo()
	require.True(t, ok)
}

func TestSession_RequestBeforeHandshakeIsNotInitialized(t *testing.T) {
	server, client := sessionPair(t, nil, nil)

	called := false

	server.RegisterRequestHandler("chat/new", func(context.Context, json.RawMessage) (any, error) {
		called = true

		return nil, nil
	})

	_, err := client.Request(context.Background(), "chat/new", nil)
	require.ErrorIs(t, err, errors.ErrNotInitialized)
	requireCode(t, jsonrpc.CodeNotInitialized, err)

	require.False(t, called)
	require.Equal(t, StateUninitialized, server.State())
}

func TestSession_NotificationsBeforeHandshakeAreDropped(t *testing.T) {
	server, mock := startServer(t, nil)

	got := make(chan string, 4)

	server.RegisterNotificationHandler("note", func(_ context.Context, params json.RawMessage) error {
		got <- string(params)

		return nil
	})

	mock.inject(`{"jsonrpc":"2.0","method":"note","params":"early"}`)
	handshake(t, server, mock)
	mock.inject(`{"jsonrpc":"2.0","method":"note","params":"late"}`)

	select {
	case params := <-got:
		require.JSONEq(t, `"late"`, params)
	case <-time.After(waitTimeout):
		t.Fatal("notification not delivered")
	}
}

func TestSession_InitializeTwiceIsInvalid(t *testing.T) {
	server, mock := startServer(t, nil)

	handshake(t, server, mock)

	mock.inject(`{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"name":"again"}}`)

	resp := mock.nextResponse(t)
	require.Equal(t, jsonrpc.CodeInvalidRequest, resp.Error.Code)
	require.Equal(t, StateReady, server.State())
}

func TestSession_RequestDuringInitializingIsNotInitialized(t *testing.T) {
	release := make(chan struct{})

	server, mock := startServer(t, &config.Options{
		OnInitialize: func(context.Context, config.ClientInfo) (config.ServerInfo, error) {
			<-release

			return config.DefaultServerInfo(), nil
		},
	})

	server.RegisterRequestHandler("chat/new", func(context.Context, json.RawMessage) (any, error) {
		return nil, nil
	})

	mock.inject(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"name":"test-client"}}`)
	require.Eventually(t, func() bool { return server.State() == StateInitializing }, waitTimeout, 5*time.Millisecond)

	mock.inject(`{"jsonrpc":"2.0","id":2,"method":"chat/new"}`)

	resp := mock.nextResponse(t)
	require.Equal(t, jsonrpc.Int64ID(2), resp.ID)
	require.Equal(t, jsonrpc.CodeNotInitialized, resp.Error.Code)

	mock.inject(`{"jsonrpc":"2.0","id":3,"method":"initialize","params":{"name":"test-client"}}`)

	resp = mock.nextResponse(t)
	require.Equal(t, jsonrpc.Int64ID(3), resp.ID)
	require.Equal(t, jsonrpc.CodeInvalidRequest, resp.Error.Code)

	close(release)

	resp = mock.nextResponse(t)
	require.Equal(t, jsonrpc.Int64ID(1), resp.ID)
	require.Nil(t, resp.Error)
}

func TestSession_InitializeFailureAllowsRetry(t *testing.T) {
	attempts := 0

	_, client := sessionPair(t, &config.Options{
		OnInitialize: func(context.Context, config.ClientInfo) (config.ServerInfo, error) {
			attempts++
			if attempts == 1 {
				return config.ServerInfo{}, jsonrpc.NewError(4010, "not signed in")
			}

			return config.DefaultServerInfo(), nil
		},
	}, nil)

	_, err := client.Initialize(context.Background(), config.ClientInfo{Name: "editor"})
	requireCode(t, 4010, err)
	require.Equal(t, StateUninitialized, client.State())

	info, err := client.Initialize(context.Background(), config.ClientInfo{Name: "editor"})
	require.NoError(t, err)
	require.Equal(t, config.DefaultServerName, info.Name)

	_, err = client.Initialize(context.Background(), config.ClientInfo{Name: "editor"})
	require.ErrorIs(t, err, errors.ErrAlreadyInitialized)
}

func TestSession_InitializeInvalidParams(t *testing.T) {
	server, mock := startServer(t, nil)

	mock.inject(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"version":"1"}}`)

	resp := mock.nextResponse(t)
	require.Equal(t, jsonrpc.CodeInvalidParams, resp.Error.Code)
	require.Eventually(t, func() bool { return server.State() == StateUninitialized }, waitTimeout, 5*time.Millisecond)
}

func TestSession_HandshakeTimeout(t *testing.T) {
	mock := newMockTransport()
	client := NewClientSession(mock, &config.Options{HandshakeTimeout: 50 * time.Millisecond})
	require.NoError(t, client.Start(context.Background()))

	_, err := client.Initialize(context.Background(), config.ClientInfo{Name: "editor"})
	require.ErrorIs(t, err, errors.ErrHandshakeTimeout)

	timeoutErr, ok := stderrors.AsType[*errors.HandshakeTimeoutError](err)
	require.True(t, ok)
	require.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)

	select {
	case <-client.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session not closed after handshake timeout")
	}

	require.Equal(t, StateClosed, client.State())
	require.True(t, mock.closed.Load())
	require.ErrorIs(t, client.Err(), errors.ErrHandshakeTimeout)
}

func TestSession_ShutdownDrainsHandlers(t *testing.T) {
	server, client := sessionPair(t, nil, nil)

	release := make(chan struct{})
	started := make(chan struct{})

	server.RegisterRequestHandler("chat/new", func(context.Context, json.RawMessage) (any, error) {
		close(started)
		<-release

		return "done", nil
	})

	_, err := client.Initialize(context.Background(), config.ClientInfo{Name: "editor"})
	require.NoError(t, err)

	result := make(chan json.RawMessage, 1)

	go func() {
		raw, _ := client.Request(context.Background(), "chat/new", nil)
		result <- raw
	}()

	<-started

	shutdown := make(chan error, 1)

	go func() { shutdown <- client.Shutdown(context.Background()) }()

	require.Eventually(t, func() bool { return server.State() == StateShuttingDown }, waitTimeout, 5*time.Millisecond)

	_, err = client.Request(context.Background(), "chat/new", nil)
	require.ErrorIs(t, err, errors.ErrShuttingDown)

	select {
	case <-shutdown:
		t.Fatal("shutdown answered with a handler in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	require.NoError(t, <-shutdown)
	require.JSONEq(t, `"done"`, string(<-result))

	require.NoError(t, client.Exit(context.Background()))

	select {
	case <-server.Done():
	case <-time.After(waitTimeout):
		t.Fatal("server did not close on exit")
	}

	require.True(t, server.CleanExit())
	require.Equal(t, StateClosed, server.State())
	require.Equal(t, StateClosed, client.State())
}

func TestSession_ShuttingDownRejectsRequests(t *testing.T) {
	server, mock := startServer(t, nil)

	server.RegisterRequestHandler("chat/new", func(context.Context, json.RawMessage) (any, error) {
		return nil, nil
	})

	handshake(t, server, mock)

	mock.inject(`{"jsonrpc":"2.0","id":2,"method":"shutdown"}`)
	require.Nil(t, mock.nextResponse(t).Error)

	mock.inject(`{"jsonrpc":"2.0","id":3,"method":"chat/new"}`)
	require.Equal(t, jsonrpc.CodeInvalidRequest, mock.nextResponse(t).Error.Code)

	mock.inject(`{"jsonrpc":"2.0","id":4,"method":"shutdown"}`)
	require.Equal(t, jsonrpc.CodeInvalidRequest, mock.nextResponse(t).Error.Code)
}

func TestSession_ExitFailsPendingServerRequests(t *testing.T) {
	server, client := sessionPair(t, nil, nil)

	client.RegisterRequestHandler("editor/confirm", func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	})

	_, err := client.Initialize(context.Background(), config.ClientInfo{Name: "editor"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return server.State() == StateReady }, waitTimeout, 5*time.Millisecond)

	pending := make(chan error, 1)

	go func() {
		_, err := server.Request(context.Background(), "editor/confirm", nil)
		pending <- err
	}()

	require.Eventually(t, func() bool { return server.PendingCount() == 1 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, client.ShutdownAndExit(context.Background()))

	select {
	case err := <-pending:
		require.ErrorIs(t, err, errors.ErrConnectionClosed)
	case <-time.After(waitTimeout):
		t.Fatal("pending request not failed")
	}

	_, err = server.Request(context.Background(), "editor/confirm", nil)
	require.ErrorIs(t, err, errors.ErrSessionClosed)
	require.ErrorIs(t, err, errors.ErrConnectionClosed)
}

func TestSession_ExitWithoutShutdown(t *testing.T) {
	server, mock := startServer(t, nil)

	handshake(t, server, mock)

	mock.inject(`{"jsonrpc":"2.0","method":"exit"}`)

	select {
	case <-server.Done():
	case <-time.After(waitTimeout):
		t.Fatal("server did not close on exit")
	}

	require.False(t, server.CleanExit())
	require.Equal(t, StateClosed, server.State())
	require.NoError(t, server.Err())
}

func TestSession_TransportLossClosesSession(t *testing.T) {
	server, mock := startServer(t, nil)

	handshake(t, server, mock)

	mock.hangUp()

	select {
	case <-server.Done():
	case <-time.After(waitTimeout):
		t.Fatal("server did not close")
	}

	require.Eventually(t, func() bool { return server.State() == StateClosed }, waitTimeout, 5*time.Millisecond)

	_, ok := stderrors.AsType[*errors.TransportError](server.Err())
	require.True(t, ok)
}

func TestSession_ServerPushesArriveInOrder(t *testing.T) {
	server, client := sessionPair(t, nil, nil)

	var (
		mu     sync.Mutex
		events []string
	)

	record := func(method string) NotificationHandler {
		return func(_ context.Context, params json.RawMessage) error {
			mu.Lock()
			events = append(events, method+" "+string(params))
			mu.Unlock()

			return nil
		}
	}

	client.RegisterNotificationHandler(MethodDebugMessage, record(MethodDebugMessage))
	client.RegisterNotificationHandler(MethodWebviewPostMessage, record(MethodWebviewPostMessage))

	_, err := client.Initialize(context.Background(), config.ClientInfo{Name: "editor"})
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, server.DebugMessage(ctx, "agent", "starting"))
	require.NoError(t, server.PostWebviewMessage(ctx, "panel-1", map[string]string{"type": "ready"}))
	require.NoError(t, server.DebugMessage(ctx, "agent", "done"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(events) == 3
	}, waitTimeout, 5*time.Millisecond)

	require.Equal(t, []string{
		`debug/message {"channel":"agent","message":"starting"}`,
		`webview/postMessage {"id":"panel-1","message":{"type":"ready"}}`,
		`debug/message {"channel":"agent","message":"done"}`,
	}, events)
}

func TestSession_ReservedMethods(t *testing.T) {
	_, client := sessionPair(t, nil, nil)

	_, err := client.Request(context.Background(), MethodShutdown, nil)
	require.ErrorIs(t, err, errors.ErrInvalidRequest)

	require.ErrorIs(t, client.Notify(context.Background(), MethodExit, nil), errors.ErrInvalidRequest)
}

func TestSession_NotificationsBeforeInitializeLeaveStateUnchanged(t *testing.T) {
	server, mock := startServer(t, nil)

	var delivered atomic.Bool

	server.RegisterNotificationHandler("chat/ping", func(context.Context, json.RawMessage) error {
		delivered.Store(true)

		return nil
	})

	mock.inject(`{"jsonrpc":"2.0","method":"initialized"}`)
	mock.inject(`{"jsonrpc":"2.0","method":"exit"}`)
	mock.inject(`{"jsonrpc":"2.0","method":"chat/ping"}`)

	mock.requireSilent(t)

	require.Equal(t, StateUninitialized, server.State())
	require.False(t, delivered.Load())

	select {
	case <-server.Done():
		t.Fatal("server closed on exit before initialize")
	default:
	}

	handshake(t, server, mock)
	require.False(t, delivered.Load())
}

func TestSession_ExitWhileInitializingIsDropped(t *testing.T) {
	release := make(chan struct{})

	server, mock := startServer(t, &config.Options{
		OnInitialize: func(context.Context, config.ClientInfo) (config.ServerInfo, error) {
			<-release

			return config.ServerInfo{}, nil
		},
	})

	mock.inject(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"name":"test-client"}}`)
	require.Eventually(t, func() bool { return server.State() == StateInitializing }, waitTimeout, 5*time.Millisecond)

	mock.inject(`{"jsonrpc":"2.0","method":"exit"}`)
	mock.requireSilent(t)

	require.Equal(t, StateInitializing, server.State())

	close(release)
	require.Nil(t, mock.nextResponse(t).Error)

	mock.inject(`{"jsonrpc":"2.0","method":"initialized"}`)
	require.Eventually(t, func() bool { return server.State() == StateReady }, waitTimeout, 5*time.Millisecond)
}

func TestSession_ShutdownWaitsForNotificationPushes(t *testing.T) {
	server, mock := startServer(t, nil)

	pushErr := make(chan error, 1)

	server.RegisterNotificationHandler(MethodConfigurationDidChange, func(ctx context.Context, _ json.RawMessage) error {
		time.Sleep(50 * time.Millisecond)

		err := server.PostWebviewMessage(ctx, "config", map[string]string{"type": "config"})
		pushErr <- err

		return err
	})

	handshake(t, server, mock)

	mock.inject(`{"jsonrpc":"2.0","method":"extensionConfiguration/didChange","params":{}}`)
	mock.inject(`{"jsonrpc":"2.0","id":2,"method":"shutdown"}`)

	push, ok := mock.next(t).(*jsonrpc.Notification)
	require.True(t, ok, "expected the webview push before the shutdown response")
	require.Equal(t, MethodWebviewPostMessage, push.Method)
	require.JSONEq(t, `{"id":"config","message":{"type":"config"}}`, string(push.Params))

	require.NoError(t, <-pushErr)

	resp := mock.nextResponse(t)
	require.Nil(t, resp.Error)
	require.Equal(t, StateShuttingDown, server.State())

	_, err := server.Request(context.Background(), "editor/confirm", nil)
	require.ErrorIs(t, err, errors.ErrShuttingDown)
}
