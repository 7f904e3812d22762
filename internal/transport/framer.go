package transport

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
)

// Framer delimits frame bodies on a byte stream.
type Framer interface {
	// ReadFrame returns the next frame body. The returned slice is owned by
	// the caller. io.EOF is returned only on a clean end of stream.
	ReadFrame(r *bufio.Reader) ([]byte, error)

	// WriteFrame writes one frame body with a single Write call.
	WriteFrame(w io.Writer, frame []byte) error
}

// NewFramer returns the framer for the given framing.
// Non-positive maxFrameSize selects config.DefaultMaxFrameSize.
func NewFramer(framing config.Framing, maxFrameSize int) Framer {
	if maxFrameSize <= 0 {
		maxFrameSize = config.DefaultMaxFrameSize
	}

	if framing == config.FramingHeader {
		return &HeaderFramer{MaxFrameSize: maxFrameSize}
	}

	return &LineFramer{MaxFrameSize: maxFrameSize}
}

// LineFramer delimits frames with '\n'. Blank lines are skipped and a
// trailing '\r' is stripped.
type LineFramer struct {
	MaxFrameSize int
}

// Compile-time verification that both framers implement Framer.
var (
	_ Framer = (*LineFramer)(nil)
	_ Framer = (*HeaderFramer)(nil)
)

// ReadFrame implements Framer.
func (f *LineFramer) ReadFrame(r *bufio.Reader) ([]byte, error) {
	limit := limitOrDefault(f.MaxFrameSize)

	for {
		var line []byte

		for {
			chunk, err := r.ReadSlice('\n')
			line = append(line, chunk...)

			if len(line) > limit+2 {
				return nil, fmt.Errorf("%w: line exceeds %d bytes", errors.ErrFrameTooLarge, limit)
			}

			if err == nil {
				break
			}

			if stderrors.Is(err, bufio.ErrBufferFull) {
				continue
			}

			// An unterminated final line still carries a frame.
			if stderrors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0 {
				break
			}

			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		return line, nil
	}
}

// WriteFrame implements Framer.
func (f *LineFramer) WriteFrame(w io.Writer, frame []byte) error {
	if bytes.IndexByte(frame, '\n') >= 0 {
		return stderrors.New("line framing: frame contains a newline")
	}

	buf := make([]byte, len(frame)+1)
	copy(buf, frame)
	buf[len(frame)] = '\n'

	_, err := w.Write(buf)

	return err
}

// HeaderFramer prefixes frames with a "Content-Length: N\r\n\r\n" header block.
// Headers other than Content-Length are ignored.
type HeaderFramer struct {
	MaxFrameSize int
}

// ReadFrame implements Framer.
func (f *HeaderFramer) ReadFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	sawHeader := false

	for {
		raw, err := r.ReadSlice('\n')
		if err != nil {
			switch {
			case stderrors.Is(err, io.EOF) && !sawHeader && len(bytes.TrimSpace(raw)) == 0:
				return nil, io.EOF
			case stderrors.Is(err, io.EOF):
				return nil, io.ErrUnexpectedEOF
			case stderrors.Is(err, bufio.ErrBufferFull):
				return nil, stderrors.New("header framing: header line too long")
			default:
				return nil, err
			}
		}

		line := strings.TrimRight(string(raw), "\r\n")
		if line == "" {
			if !sawHeader {
				continue
			}

			break
		}

		sawHeader = true

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("header framing: malformed header %q", line)
		}

		if !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("header framing: invalid Content-Length %q", strings.TrimSpace(value))
		}

		length = n
	}

	if length < 0 {
		return nil, stderrors.New("header framing: missing Content-Length")
	}

	if limit := limitOrDefault(f.MaxFrameSize); length > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", errors.ErrFrameTooLarge, length, limit)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if stderrors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return nil, fmt.Errorf("header framing: read body: %w", err)
	}

	return body, nil
}

// WriteFrame implements Framer.
func (f *HeaderFramer) WriteFrame(w io.Writer, frame []byte) error {
	header := "Content-Length: " + strconv.Itoa(len(frame)) + "\r\n\r\n"

	buf := make([]byte, 0, len(header)+len(frame))
	buf = append(buf, header...)
	buf = append(buf, frame...)

	_, err := w.Write(buf)

	return err
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return config.DefaultMaxFrameSize
	}

	return n
}
