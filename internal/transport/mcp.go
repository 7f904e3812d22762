package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	sdkjsonrpc "github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
)

// MCPBridge implements Transport on top of an MCP SDK transport. Frames are
// re-encoded through the SDK's JSON-RPC codec, so any carrier the SDK offers
// (in-memory, stdio, command) can run an agent session.
type MCPBridge struct {
	log       *slog.Logger
	transport mcp.Transport

	mu     sync.Mutex
	conn   mcp.Connection
	closed atomic.Bool
}

// Compile-time verification that MCPBridge implements the Transport interface.
var _ config.Transport = (*MCPBridge)(nil)

// NewMCPBridge creates a bridge that connects t on Start.
func NewMCPBridge(log *slog.Logger, t mcp.Transport) *MCPBridge {
	return &MCPBridge{
		log:       log.With("component", "mcp_bridge"),
		transport: t,
	}
}

// InMemoryPair returns two connected in-memory transports. Closing one is
// observed by the other as end of stream.
func InMemoryPair(log *slog.Logger) (*MCPBridge, *MCPBridge) {
	a, b := mcp.NewInMemoryTransports()

	return NewMCPBridge(log.With("side", "a"), a), NewMCPBridge(log.With("side", "b"), b)
}

// Start connects the underlying MCP transport.
func (b *MCPBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}

	conn, err := b.transport.Connect(ctx)
	if err != nil {
		return &errors.TransportError{Err: fmt.Errorf("connect: %w", err)}
	}

	b.conn = conn
	b.log.Debug("MCP transport connected", "mcp_session_id", conn.SessionID())

	return nil
}

// ReadFrames reads messages from the connection and re-encodes them as frames.
func (b *MCPBridge) ReadFrames(ctx context.Context) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(frames)

		conn, err := b.connection()
		if err != nil {
			errs <- err

			return
		}

		for {
			msg, err := conn.Read(ctx)
			if err != nil {
				if b.closed.Load() || ctx.Err() != nil || isEndOfStream(err) {
					return
				}

				b.log.Error("MCP connection read failed", "error", err)

				errs <- &errors.TransportError{Err: err}

				return
			}

			frame, err := sdkjsonrpc.EncodeMessage(msg)
			if err != nil {
				b.log.Warn("Dropping message that cannot be re-encoded", "error", err)

				continue
			}

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, errs
}

// SendFrame decodes frame with the SDK codec and writes it to the connection.
func (b *MCPBridge) SendFrame(ctx context.Context, frame []byte) error {
	if b.closed.Load() {
		return errors.ErrTransportClosed
	}

	conn, err := b.connection()
	if err != nil {
		return err
	}

	msg, err := sdkjsonrpc.DecodeMessage(frame)
	if err != nil {
		return fmt.Errorf("bridge frame: %w", err)
	}

	if err := conn.Write(ctx, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return &errors.TransportError{Err: fmt.Errorf("write: %w", err)}
	}

	return nil
}

// Close closes the connection. The peer observes end of stream.
func (b *MCPBridge) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}

func (b *MCPBridge) connection() (mcp.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil, errors.ErrTransportNotConnected
	}

	return b.conn, nil
}

func isEndOfStream(err error) bool {
	return stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, io.ErrClosedPipe) ||
		stderrors.Is(err, net.ErrClosed)
}
