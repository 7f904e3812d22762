package transport

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pipePair returns two streams wired back to back.
func pipePair(framing config.Framing, maxFrameSize int) (*Stream, *Stream) {
	aR, bW := io.Pipe()
	bR, aW := io.Pipe()

	a := NewStream(nopLogger(), aR, aW, NewFramer(framing, maxFrameSize))
	b := NewStream(nopLogger(), bR, bW, NewFramer(framing, maxFrameSize))

	return a, b
}

func receive(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()

	select {
	case frame, ok := <-frames:
		require.True(t, ok, "frame channel closed")

		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")

		return nil
	}
}

func TestStream_SendAndReceive(t *testing.T) {
	for _, framing := range []config.Framing{config.FramingLine, config.FramingHeader} {
		t.Run(string(framing), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a, b := pipePair(framing, 0)
			defer a.Close()
			defer b.Close()

			frames, _ := b.ReadFrames(ctx)

			go func() {
				_ = a.SendFrame(ctx, []byte(`{"jsonrpc":"2.0","method":"initialized"}`))
				_ = a.SendFrame(ctx, []byte(`{"jsonrpc":"2.0","method":"exit"}`))
			}()

			require.JSONEq(t, `{"jsonrpc":"2.0","method":"initialized"}`, string(receive(t, frames)))
			require.JSONEq(t, `{"jsonrpc":"2.0","method":"exit"}`, string(receive(t, frames)))
		})
	}
}

func TestStream_PeerCloseEndsReadCleanly(t *testing.T) {
	a, b := pipePair(config.FramingLine, 0)
	defer b.Close()

	frames, errs := b.ReadFrames(context.Background())

	require.NoError(t, a.Close())

	select {
	case _, ok := <-frames:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("frame channel not closed after peer close")
	}

	err, ok := <-errs
	require.False(t, ok, "unexpected error: %v", err)
}

func TestStream_OversizedFrameIsTransportError(t *testing.T) {
	a, b := pipePair(config.FramingLine, 16)
	defer a.Close()
	defer b.Close()

	frames, errs := b.ReadFrames(context.Background())

	go func() {
		_ = a.SendFrame(context.Background(), []byte(`{"padding":"xxxxxxxxxxxxxxxxxxxxxxxxxx"}`))
	}()

	for range frames {
		t.Fatal("oversized frame delivered")
	}

	err := <-errs
	require.ErrorIs(t, err, errors.ErrFrameTooLarge)

	_, isTransport := err.(*errors.TransportError)
	require.True(t, isTransport)
}

func TestStream_SendAfterClose(t *testing.T) {
	a, b := pipePair(config.FramingLine, 0)
	defer b.Close()

	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "close is idempotent")
	require.ErrorIs(t, a.SendFrame(context.Background(), []byte(`{}`)), errors.ErrTransportClosed)
}

func TestStream_SendRespectsCancellation(t *testing.T) {
	// Nobody reads from b, so the write blocks on the pipe.
	a, b := pipePair(config.FramingLine, 0)
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := a.SendFrame(ctx, []byte(`{"jsonrpc":"2.0","method":"stuck"}`))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	err = a.SendFrame(context.Background(), []byte(`{}`))
	require.Error(t, err, "writer is unusable after a cancelled write")
}

// cancelOnWrite completes every write and then cancels the sender's context,
// as a peer hanging up right after receiving exit does.
type cancelOnWrite struct {
	cancel context.CancelFunc
}

func (w *cancelOnWrite) Write(p []byte) (int, error) {
	w.cancel()

	return len(p), nil
}

func (w *cancelOnWrite) Close() error { return nil }

func TestStream_CompletedWriteWinsOverCancellation(t *testing.T) {
	for range 50 {
		ctx, cancel := context.WithCancel(context.Background())

		r, _ := io.Pipe()
		s := NewStream(nopLogger(), r, &cancelOnWrite{cancel: cancel}, NewFramer(config.FramingLine, 0))

		require.NoError(t, s.SendFrame(ctx, []byte(`{"jsonrpc":"2.0","method":"exit"}`)))
		require.NoError(t, s.Close())
	}
}
