package agentrpc

import "github.com/wagiedev/agentrpc-go/internal/errors"

// Re-export error types from internal package

// AgentRPCError is the base interface for all engine errors.
type AgentRPCError = errors.AgentRPCError

// ProtocolError indicates a frame could not be decoded. The frame is dropped.
type ProtocolError = errors.ProtocolError

// TransportError indicates the connection broke. It closes the session.
type TransportError = errors.TransportError

// HandshakeTimeoutError indicates the peer did not complete the handshake in time.
type HandshakeTimeoutError = errors.HandshakeTimeoutError

// AgentNotFoundError indicates the agent binary was not found.
type AgentNotFoundError = errors.AgentNotFoundError

// ProcessError indicates the agent process failed.
type ProcessError = errors.ProcessError

// Re-export sentinel errors from internal package.
var (
	// ErrMethodNotFound indicates the peer has no handler for the method.
	ErrMethodNotFound = errors.ErrMethodNotFound

	// ErrNotInitialized indicates a request arrived before the handshake completed.
	ErrNotInitialized = errors.ErrNotInitialized

	// ErrRequestCancelled indicates the request was cancelled.
	ErrRequestCancelled = errors.ErrRequestCancelled

	// ErrConnectionClosed indicates the session closed with the request pending.
	ErrConnectionClosed = errors.ErrConnectionClosed

	// ErrInvalidParams indicates the params failed validation.
	ErrInvalidParams = errors.ErrInvalidParams

	// ErrInvalidRequest indicates the message is not legal in the current state.
	ErrInvalidRequest = errors.ErrInvalidRequest

	// ErrInternal indicates a handler failed without an error code.
	ErrInternal = errors.ErrInternal

	// ErrHandshakeTimeout indicates the handshake did not complete in time.
	ErrHandshakeTimeout = errors.ErrHandshakeTimeout

	// ErrShuttingDown indicates the session no longer accepts new requests.
	ErrShuttingDown = errors.ErrShuttingDown

	// ErrSessionClosed indicates the session has been closed.
	ErrSessionClosed = errors.ErrSessionClosed

	// ErrAlreadyInitialized indicates initialize was sent twice.
	ErrAlreadyInitialized = errors.ErrAlreadyInitialized

	// ErrTransportNotConnected indicates the transport is not connected.
	ErrTransportNotConnected = errors.ErrTransportNotConnected
)
