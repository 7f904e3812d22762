package agentrpc

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestAgentNotFoundError_Creation tests AgentNotFoundError formatting.
func TestAgentNotFoundError_Creation(t *testing.T) {
	err := &AgentNotFoundError{
		SearchedPaths: []string{"$PATH", "/usr/local/bin/agentd", "/usr/bin/agentd"},
	}

	require.Error(t, err)
	require.Contains(t, err.Error(), "agent binary not found")
	require.Contains(t, err.Error(), "/usr/local/bin/agentd")
}

// TestProcessError_WithExitCodeAndStderr tests ProcessError with exit code and stderr.
func TestProcessError_WithExitCodeAndStderr(t *testing.T) {
	err := &ProcessError{
		ExitCode: 1,
		Stderr:   "Error: no workspace",
	}

	require.Contains(t, err.Error(), "exit 1")
	require.Contains(t, err.Error(), "no workspace")
}

// TestTransportError_MatchesConnectionClosed tests that transport loss matches ErrConnectionClosed.
func TestTransportError_MatchesConnectionClosed(t *testing.T) {
	err := fmt.Errorf("read: %w", &TransportError{Err: io.ErrUnexpectedEOF})

	require.ErrorIs(t, err, ErrConnectionClosed)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	transportErr, ok := stderrors.AsType[*TransportError](err)
	require.True(t, ok)
	require.Contains(t, transportErr.Error(), "unexpected EOF")
}

// TestHandshakeTimeoutError_Is tests matching against the sentinel.
func TestHandshakeTimeoutError_Is(t *testing.T) {
	err := &HandshakeTimeoutError{Timeout: 10 * time.Second}

	require.ErrorIs(t, err, ErrHandshakeTimeout)
	require.Contains(t, err.Error(), "10s")
}

// TestError_CodesMatchSentinels tests that wire errors match their sentinels.
func TestError_CodesMatchSentinels(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		sentinel error
	}{
		{CodeMethodNotFound, ErrMethodNotFound},
		{CodeNotInitialized, ErrNotInitialized},
		{CodeRequestCancelled, ErrRequestCancelled},
		{CodeConnectionClosed, ErrConnectionClosed},
		{CodeInvalidParams, ErrInvalidParams},
		{CodeInvalidRequest, ErrInvalidRequest},
		{CodeInternalError, ErrInternal},
	}

	for _, tt := range tests {
		err := NewError(tt.code, "boom")

		require.ErrorIs(t, err, tt.sentinel, "code %d", tt.code)

		var base AgentRPCError
		require.ErrorAs(t, err, &base)
	}

	require.NotErrorIs(t, NewError(4010, "quota"), ErrInternal)
}

// TestErrorTypes_ImplementAgentRPCError tests the marker interface.
func TestErrorTypes_ImplementAgentRPCError(t *testing.T) {
	errs := []error{
		&ProtocolError{Err: io.EOF},
		&TransportError{Err: io.EOF},
		&HandshakeTimeoutError{},
		&AgentNotFoundError{},
		&ProcessError{},
		NewError(CodeInternalError, "x"),
	}

	for _, err := range errs {
		_, ok := stderrors.AsType[AgentRPCError](err)
		require.True(t, ok, "%T", err)
	}
}
