package agentrpc

import (
	"context"
	stderrors "errors"
	"fmt"
)

// WithClient manages a client session lifecycle with automatic cleanup.
//
// This helper spawns the agent (or uses WithTransport), completes the
// handshake with info, executes the callback and ends the session with
// shutdown and exit.
//
// If the callback returns an error, it is returned to the caller joined with
// any shutdown failure.
//
// Example usage:
//
//	err := agentrpc.WithClient(ctx, agentrpc.ClientInfo{Name: "my-editor"},
//	    func(s *agentrpc.Session, info agentrpc.ServerInfo) error {
//	        _, err := s.Request(ctx, "chat/new", nil)
//	        return err
//	    },
//	    agentrpc.WithLogger(log),
//	)
func WithClient(
	ctx context.Context,
	info ClientInfo,
	fn func(*Session, ServerInfo) error,
	opts ...Option,
) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	session, err := Spawn(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	server, err := session.Initialize(ctx, info)
	if err != nil {
		_ = session.Close()

		return fmt.Errorf("initialize: %w", err)
	}

	fnErr := fn(session, server)

	if closeErr := session.ShutdownAndExit(ctx); closeErr != nil {
		applyOptions(opts).Logger.Warn("failed to shut down session", "error", closeErr)

		return stderrors.Join(fnErr, closeErr)
	}

	return fnErr
}
