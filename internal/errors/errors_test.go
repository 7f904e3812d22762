package errors

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProtocolError(t *testing.T) {
	root := errors.New("unexpected end of JSON input")
	err := &ProtocolError{Raw: `{"id":`, Err: root}

	require.Equal(t, "protocol error: unexpected end of JSON input", err.Error())
	require.ErrorIs(t, err, root)
	require.True(t, err.IsAgentRPCError())
}

func TestTransportError(t *testing.T) {
	err := &TransportError{Err: io.EOF}

	require.Equal(t, "transport error: EOF", err.Error())
	require.ErrorIs(t, err, io.EOF)
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.True(t, err.IsAgentRPCError())
}

func TestHandshakeTimeoutError(t *testing.T) {
	err := &HandshakeTimeoutError{Timeout: 10 * time.Second}

	require.Equal(t, "peer did not complete handshake within 10s", err.Error())
	require.ErrorIs(t, err, ErrHandshakeTimeout)
	require.NotErrorIs(t, err, ErrConnectionClosed)
	require.True(t, err.IsAgentRPCError())
}

func TestAgentNotFoundError(t *testing.T) {
	err := &AgentNotFoundError{SearchedPaths: []string{"$PATH", "/usr/local/bin/agentd"}}

	require.Equal(t, "agent binary not found in: [$PATH /usr/local/bin/agentd]", err.Error())
	require.True(t, err.IsAgentRPCError())
}

func TestProcessError_WithUnderlyingError(t *testing.T) {
	root := errors.New("signal: killed")
	err := &ProcessError{ExitCode: -1, Stderr: "ignored when Err is set", Err: root}

	require.Equal(t, "agent process failed (exit -1): signal: killed", err.Error())
	require.ErrorIs(t, err, root)
}

func TestProcessError_WithStderrOnly(t *testing.T) {
	err := &ProcessError{ExitCode: 2, Stderr: "bad flag"}

	require.Equal(t, "agent process failed (exit 2): bad flag", err.Error())
	require.NoError(t, err.Unwrap())
}
