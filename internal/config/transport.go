// Package config provides configuration types for the agent protocol engine.
package config

import "context"

// Transport defines the frame-level connection a Session runs over.
// Implement this to provide custom transports for testing, mocking,
// or alternative carriers (e.g., remote connections).
//
// A transport moves opaque frame bodies; it knows nothing about messages.
// Closing it must be observable by the peer.
type Transport interface {
	// Start prepares the transport for communication. For process-based
	// transports this spawns the child; stream transports return nil.
	Start(ctx context.Context) error

	// ReadFrames returns channels for receiving frames and errors.
	// The frame channel is closed when the peer closes the connection,
	// after any terminal read error has been delivered on the error channel.
	// Both channels are closed when reading completes.
	ReadFrames(ctx context.Context) (<-chan []byte, <-chan error)

	// SendFrame writes one complete frame body.
	// This method must be safe for concurrent use.
	SendFrame(ctx context.Context, frame []byte) error

	// Close terminates the transport and releases resources.
	// It's safe to call Close multiple times.
	Close() error
}
