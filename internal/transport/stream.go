package transport

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
)

// readBufferSize is the initial buffer for framed reads; frames larger than
// this are assembled across reads.
const readBufferSize = 64 * 1024

// Stream implements Transport over a reader/writer pair.
type Stream struct {
	log    *slog.Logger
	r      io.Reader
	w      io.WriteCloser
	framer Framer

	closed atomic.Bool

	mu          sync.Mutex // Protects writes and writeClosed
	writeClosed bool
}

// Compile-time verification that Stream implements the Transport interface.
var _ config.Transport = (*Stream)(nil)

// NewStream creates a transport reading frames from r and writing frames to w.
// If r also implements io.Closer it is closed by Close.
func NewStream(log *slog.Logger, r io.Reader, w io.WriteCloser, framer Framer) *Stream {
	if framer == nil {
		framer = NewFramer(config.FramingLine, 0)
	}

	return &Stream{
		log:    log.With("component", "stream_transport"),
		r:      r,
		w:      w,
		framer: framer,
	}
}

// NewStdio creates a transport over the process's stdin and stdout.
func NewStdio(log *slog.Logger, framer Framer) *Stream {
	return NewStream(log, os.Stdin, os.Stdout, framer)
}

// Start implements Transport. Streams are connected on construction.
func (s *Stream) Start(context.Context) error {
	return nil
}

// ReadFrames reads frames until the stream ends.
//
// A clean end of stream, or an error after Close, closes both channels
// without an error. Any other read failure, including an oversized or
// corrupt frame, is delivered as a *errors.TransportError first.
func (s *Stream) ReadFrames(ctx context.Context) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(frames)
		defer s.log.Debug("ReadFrames goroutine stopped")

		reader := bufio.NewReaderSize(s.r, readBufferSize)
		frameCount := 0

		for {
			frame, err := s.framer.ReadFrame(reader)
			if err != nil {
				if stderrors.Is(err, io.EOF) || s.isClosed() {
					s.log.Debug("Stream ended", "frame_count", frameCount)

					return
				}

				s.log.Error("Stream read failed", "error", err)

				errs <- &errors.TransportError{Err: err}

				return
			}

			frameCount++

			select {
			case frames <- frame:
			case <-ctx.Done():
				s.log.Debug("Context cancelled during frame delivery", "error", ctx.Err())

				return
			}
		}
	}()

	return frames, errs
}

// SendFrame writes one frame.
//
// This method is safe for concurrent use and respects context cancellation
// even during blocking writes. If the context is cancelled mid-write the
// writer is closed to unblock it, since a partial frame corrupts the stream.
func (s *Stream) SendFrame(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return errors.ErrTransportClosed
	}

	if s.writeClosed {
		return &errors.TransportError{Err: stderrors.New("writer closed after cancelled write")}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)

	go func() {
		done <- s.framer.WriteFrame(s.w, frame)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &errors.TransportError{Err: fmt.Errorf("write frame: %w", err)}
		}

		return nil

	case <-ctx.Done():
		// The write may have finished at the same moment.
		select {
		case err := <-done:
			if err != nil {
				return &errors.TransportError{Err: fmt.Errorf("write frame: %w", err)}
			}

			return nil
		default:
		}

		s.log.Debug("Context cancelled during write, closing writer")

		_ = s.w.Close()
		s.writeClosed = true

		select {
		case err := <-done:
			if err == nil {
				return nil
			}
		case <-time.After(time.Second):
			s.log.Warn("Write goroutine did not exit after writer close")
		}

		return ctx.Err()
	}
}

// Close closes both directions of the stream.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	var errs []error

	// Closing the writer unblocks a concurrent SendFrame before taking the lock.
	if err := s.w.Close(); err != nil && !stderrors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}

	s.mu.Lock()
	s.writeClosed = true
	s.mu.Unlock()

	if rc, ok := s.r.(io.Closer); ok {
		if err := rc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader: %w", err))
		}
	}

	return stderrors.Join(errs...)
}

func (s *Stream) isClosed() bool {
	return s.closed.Load()
}
