package agentrpc

import (
	"context"
	"fmt"

	"github.com/wagiedev/agentrpc-go/internal/protocol"
	"github.com/wagiedev/agentrpc-go/internal/subprocess"
)

// NewClient creates a session that sends initialize over t.
//
// Register handlers for server-initiated methods, then call Start and
// Initialize:
//
//	session := agentrpc.NewClient(transport, agentrpc.WithLogger(slog.Default()))
//	agentrpc.HandleNotification(session, agentrpc.MethodDebugMessage, onDebugMessage)
//
//	if err := session.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	info, err := session.Initialize(ctx, agentrpc.ClientInfo{Name: "my-editor"})
func NewClient(t Transport, opts ...Option) *Session {
	return protocol.NewClientSession(t, applyOptions(opts))
}

// NewServer creates a session that answers initialize over t.
func NewServer(t Transport, opts ...Option) *Session {
	return protocol.NewServerSession(t, applyOptions(opts))
}

// Spawn starts a client session connected to a freshly spawned agent
// process, or to the transport set with WithTransport. The handshake is left
// to the caller.
//
// Spawn returns *AgentNotFoundError if the agent binary cannot be located.
// The child is killed when the session closes or ctx is cancelled.
func Spawn(ctx context.Context, opts ...Option) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := applyOptions(opts)

	t := options.Transport
	if t == nil {
		t = subprocess.NewProcess(options.Logger, options)
	}

	session := protocol.NewClientSession(t, options)
	if err := session.Start(ctx); err != nil {
		_ = t.Close()

		return nil, fmt.Errorf("start session: %w", err)
	}

	return session, nil
}

// Serve runs a server session on t until the client exits, the transport is
// lost or ctx is cancelled. Setup registers the application handlers before
// the first frame is read.
//
// Serve returns nil after exit, the transport error after a lost connection,
// and the cause of ctx otherwise.
func Serve(ctx context.Context, t Transport, setup func(*Session) error, opts ...Option) error {
	session := NewServer(t, opts...)

	if setup != nil {
		if err := setup(session); err != nil {
			_ = t.Close()

			return fmt.Errorf("register handlers: %w", err)
		}
	}

	if err := session.Start(ctx); err != nil {
		_ = t.Close()

		return fmt.Errorf("start session: %w", err)
	}

	if err := session.Wait(); err != nil {
		return err
	}

	return session.Err()
}
