package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
)

// closeWriteTimeout bounds the close handshake sent by Close.
const closeWriteTimeout = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebSocket implements Transport over a WebSocket connection. Each frame is
// one text message.
type WebSocket struct {
	log  *slog.Logger
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  atomic.Bool
}

// Compile-time verification that WebSocket implements the Transport interface.
var _ config.Transport = (*WebSocket)(nil)

// NewWebSocket wraps an established connection.
// Non-positive maxFrameSize selects config.DefaultMaxFrameSize.
func NewWebSocket(log *slog.Logger, conn *websocket.Conn, maxFrameSize int) *WebSocket {
	conn.SetReadLimit(int64(limitOrDefault(maxFrameSize)))

	return &WebSocket{
		log:  log.With("component", "websocket_transport", "remote_addr", conn.RemoteAddr().String()),
		conn: conn,
	}
}

// DialWebSocket connects to an agent listening at url.
func DialWebSocket(ctx context.Context, log *slog.Logger, url string, maxFrameSize int) (*WebSocket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, &errors.TransportError{Err: fmt.Errorf("dial %s: %w", url, err)}
	}

	return NewWebSocket(log, conn, maxFrameSize), nil
}

// UpgradeWebSocket upgrades an HTTP request to a WebSocket transport.
func UpgradeWebSocket(
	w http.ResponseWriter,
	r *http.Request,
	log *slog.Logger,
	maxFrameSize int,
) (*WebSocket, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, &errors.TransportError{Err: fmt.Errorf("upgrade: %w", err)}
	}

	return NewWebSocket(log, conn, maxFrameSize), nil
}

// Start implements Transport. The connection is established on construction.
func (t *WebSocket) Start(context.Context) error {
	return nil
}

// ReadFrames reads one frame per data message until the connection closes.
// A normal close by either side ends the stream without an error.
func (t *WebSocket) ReadFrames(ctx context.Context) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(frames)
		defer t.log.Debug("ReadFrames goroutine stopped")

		for {
			kind, data, err := t.conn.ReadMessage()
			if err != nil {
				if t.closed.Load() || websocket.IsCloseError(err,
					websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}

				t.log.Error("WebSocket read failed", "error", err)

				errs <- &errors.TransportError{Err: err}

				return
			}

			if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
				continue
			}

			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, errs
}

// SendFrame writes one frame as a text message.
// The context deadline, if any, bounds the write.
func (t *WebSocket) SendFrame(ctx context.Context, frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed.Load() {
		return errors.ErrTransportClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return &errors.TransportError{Err: err}
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return &errors.TransportError{Err: fmt.Errorf("write message: %w", err)}
	}

	return nil
}

// Close sends a normal close message and closes the connection.
func (t *WebSocket) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	closeErr := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	t.writeMu.Unlock()

	err := t.conn.Close()
	if closeErr != nil && !stderrors.Is(closeErr, websocket.ErrCloseSent) {
		t.log.Debug("WebSocket close handshake failed", "error", closeErr)
	}

	return err
}
