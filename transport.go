package agentrpc

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/subprocess"
	"github.com/wagiedev/agentrpc-go/internal/transport"
)

// Transport defines the frame-level connection a Session runs over.
// Implement this to provide custom transports for testing, mocking,
// or alternative carriers (e.g., remote connections).
//
// The default client transport spawns the agent as a subprocess.
// Custom transports can be injected via WithTransport.
type Transport = config.Transport

// NewStdioTransport returns a transport over the process's stdin and stdout.
// Only WithLogger, WithFraming and WithMaxFrameSize apply.
func NewStdioTransport(opts ...Option) Transport {
	options := applyOptions(opts)

	return transport.NewStdio(options.Logger, transport.NewFramer(options.Framing, options.MaxFrameSize))
}

// NewStreamTransport returns a transport reading frames from r and writing
// frames to w. Closing the transport closes w, and r if it is an io.Closer.
func NewStreamTransport(r io.Reader, w io.WriteCloser, opts ...Option) Transport {
	options := applyOptions(opts)

	return transport.NewStream(options.Logger, r, w, transport.NewFramer(options.Framing, options.MaxFrameSize))
}

// Pipe returns two transports connected to each other through in-process
// pipes. Closing either end is observed by the other as end of stream.
func Pipe(opts ...Option) (Transport, Transport) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()

	return NewStreamTransport(ar, aw, opts...), NewStreamTransport(br, bw, opts...)
}

// InMemoryTransports returns two connected transports backed by the MCP SDK
// in-memory transport.
func InMemoryTransports(opts ...Option) (Transport, Transport) {
	options := applyOptions(opts)

	return transport.InMemoryPair(options.Logger)
}

// NewProcessTransport returns a transport that spawns the agent binary on
// Start. WithAgentPath, WithAgentArgs, WithCwd, WithEnv and WithStderr
// configure the child.
func NewProcessTransport(opts ...Option) Transport {
	options := applyOptions(opts)

	return subprocess.NewProcess(options.Logger, options)
}

// NewWebSocketTransport wraps an established WebSocket connection. Each
// frame is one text message.
func NewWebSocketTransport(conn *websocket.Conn, opts ...Option) Transport {
	options := applyOptions(opts)

	return transport.NewWebSocket(options.Logger, conn, options.MaxFrameSize)
}

// DialWebSocket connects to an agent listening at url.
func DialWebSocket(ctx context.Context, url string, opts ...Option) (Transport, error) {
	options := applyOptions(opts)

	ws, err := transport.DialWebSocket(ctx, options.Logger, url, options.MaxFrameSize)
	if err != nil {
		return nil, err
	}

	return ws, nil
}

// UpgradeWebSocket upgrades an HTTP request to a WebSocket transport.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request, opts ...Option) (Transport, error) {
	options := applyOptions(opts)

	ws, err := transport.UpgradeWebSocket(w, r, options.Logger, options.MaxFrameSize)
	if err != nil {
		return nil, err
	}

	return ws, nil
}
