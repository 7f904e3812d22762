// Package errors defines error types for the agent protocol engine.
//
// This package provides structured error types for the failure kinds a
// Session can observe: malformed frames, broken transports, handshake
// timeouts and child process failures. All error types support error
// unwrapping and can be checked using errors.Is, errors.As, and errors.AsType.
//
// Errors that travel on the wire (method not found, cancellation, ...) are
// represented by jsonrpc.Error, which matches the sentinels declared here.
package errors
