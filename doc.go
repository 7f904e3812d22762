// Package agentrpc connects editors and other front-ends to a long-lived
// agent process over a bidirectional request/notification protocol.
//
// Either side of a connection is a Session. The side that sends initialize
// is the client; the side that answers it is the server. Both sides may send
// requests and notifications once the handshake completed, and both sides
// may register handlers for the methods they serve.
//
// # Client Usage
//
// Spawn starts the agent binary as a child process and returns a started
// client session:
//
//	ctx := context.Background()
//	session, err := agentrpc.Spawn(ctx, agentrpc.WithLogger(slog.Default()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	info, err := session.Initialize(ctx, agentrpc.ClientInfo{Name: "my-editor", Version: "1.0.0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := agentrpc.Call[ChatResult](ctx, session, "chat/new", nil)
//
// WithClient wraps the same steps and ends the session with shutdown and exit:
//
//	err := agentrpc.WithClient(ctx, agentrpc.ClientInfo{Name: "my-editor"},
//	    func(s *agentrpc.Session, info agentrpc.ServerInfo) error {
//	        return s.Notify(ctx, "textDocument/didOpen", doc)
//	    },
//	)
//
// # Server Usage
//
// Serve answers the handshake on a transport and runs until the peer exits:
//
//	err := agentrpc.Serve(ctx, agentrpc.NewStdioTransport(agentrpc.FramingLine),
//	    func(s *agentrpc.Session) error {
//	        return agentrpc.HandleRequest(s, "chat/new", newChat)
//	    },
//	    agentrpc.WithServerInfo(agentrpc.ServerInfo{Name: "my-agent", Version: "0.1.0"}),
//	)
//
// # Cancellation
//
// The context passed to Request is the cancellation token. Cancelling it
// sends $/cancelRequest to the peer, which cancels the context of the
// matching handler. The call returns the peer's answer if one arrives within
// the cancel grace period, and a RequestCancelled error otherwise.
//
// # Error Handling
//
// Failed requests return *Error carrying the wire code. Sentinels match the
// well-known codes:
//
//	_, err := session.Request(ctx, "chat/new", nil)
//	switch {
//	case errors.Is(err, agentrpc.ErrMethodNotFound):
//	case errors.Is(err, agentrpc.ErrRequestCancelled):
//	case errors.Is(err, agentrpc.ErrConnectionClosed):
//	}
//
// Transport loss and handshake timeouts close the session and are reported
// as *TransportError and *HandshakeTimeoutError.
package agentrpc
