package errors

import (
	"errors"
	"fmt"
	"time"
)

// AgentRPCError is the base interface for all engine errors.
type AgentRPCError interface {
	error
	IsAgentRPCError() bool
}

// Compile-time verification that all error types implement AgentRPCError.
var (
	_ AgentRPCError = (*ProtocolError)(nil)
	_ AgentRPCError = (*TransportError)(nil)
	_ AgentRPCError = (*HandshakeTimeoutError)(nil)
	_ AgentRPCError = (*AgentNotFoundError)(nil)
	_ AgentRPCError = (*ProcessError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrMethodNotFound indicates the peer has no handler for the requested method.
	ErrMethodNotFound = errors.New("method not found")

	// ErrNotInitialized indicates a method was invoked before the handshake completed.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrRequestCancelled indicates the request was cancelled before it completed.
	ErrRequestCancelled = errors.New("request cancelled")

	// ErrConnectionClosed indicates the session closed while a request was pending.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrInvalidParams indicates the request parameters failed validation.
	ErrInvalidParams = errors.New("invalid params")

	// ErrInvalidRequest indicates the request is not legal in the current session state.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInternal indicates a handler failed without supplying an error code.
	ErrInternal = errors.New("internal error")

	// ErrHandshakeTimeout indicates the peer did not complete initialize/initialized in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrShuttingDown indicates the session no longer accepts new outbound requests.
	ErrShuttingDown = errors.New("session shutting down")

	// ErrSessionClosed indicates the session has been closed and cannot be reused.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionNotStarted indicates the session read loop has not been started.
	ErrSessionNotStarted = errors.New("session not started")

	// ErrAlreadyInitialized indicates initialize was sent on an initialized session.
	ErrAlreadyInitialized = errors.New("session already initialized")

	// ErrTransportNotConnected indicates the transport is not connected.
	ErrTransportNotConnected = errors.New("transport not connected")

	// ErrTransportClosed indicates the transport was closed locally.
	ErrTransportClosed = errors.New("transport closed")

	// ErrFrameTooLarge indicates a frame exceeded the configured size limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// ProtocolError indicates a single frame could not be decoded into a message.
// The frame is dropped; the connection survives.
type ProtocolError struct {
	Raw string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsAgentRPCError implements AgentRPCError.
func (e *ProtocolError) IsAgentRPCError() bool { return true }

// TransportError indicates the underlying stream is closed or broken.
// It is fatal to the Session.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports ErrConnectionClosed so callers can treat every transport loss alike.
func (e *TransportError) Is(target error) bool {
	return target == ErrConnectionClosed
}

// IsAgentRPCError implements AgentRPCError.
func (e *TransportError) IsAgentRPCError() bool { return true }

// HandshakeTimeoutError indicates the peer failed to complete the handshake
// within the configured window. It is fatal to the connecting side.
type HandshakeTimeoutError struct {
	Timeout time.Duration
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("peer did not complete handshake within %s", e.Timeout)
}

// Is matches ErrHandshakeTimeout.
func (e *HandshakeTimeoutError) Is(target error) bool {
	return target == ErrHandshakeTimeout
}

// IsAgentRPCError implements AgentRPCError.
func (e *HandshakeTimeoutError) IsAgentRPCError() bool { return true }

// AgentNotFoundError indicates the agent binary was not found.
type AgentNotFoundError struct {
	SearchedPaths []string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent binary not found in: %v", e.SearchedPaths)
}

// IsAgentRPCError implements AgentRPCError.
func (e *AgentNotFoundError) IsAgentRPCError() bool { return true }

// ProcessError indicates the agent child process failed.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("agent process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsAgentRPCError implements AgentRPCError.
func (e *ProcessError) IsAgentRPCError() bool { return true }
