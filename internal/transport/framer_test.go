package transport

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
)

func readAll(t *testing.T, f Framer, input string) ([][]byte, error) {
	t.Helper()

	r := bufio.NewReaderSize(strings.NewReader(input), 64)

	var frames [][]byte

	for {
		frame, err := f.ReadFrame(r)
		if err != nil {
			if err == io.EOF {
				return frames, nil
			}

			return frames, err
		}

		frames = append(frames, frame)
	}
}

func TestLineFramer_ReadFrame(t *testing.T) {
	f := &LineFramer{MaxFrameSize: 1024}

	frames, err := readAll(t, f, "{\"a\":1}\n\n  \r\n{\"b\":2}\r\n{\"c\":3}")
	require.NoError(t, err)
	require.Len(t, frames, 3)
	require.Equal(t, `{"a":1}`, string(frames[0]))
	require.Equal(t, `{"b":2}`, string(frames[1]))
	require.Equal(t, `{"c":3}`, string(frames[2]), "unterminated final line is a frame")
}

func TestLineFramer_LongLinesSpanBuffers(t *testing.T) {
	f := &LineFramer{MaxFrameSize: 4096}
	long := `{"data":"` + strings.Repeat("x", 1000) + `"}`

	frames, err := readAll(t, f, long+"\n")
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, long, string(frames[0]))
}

func TestLineFramer_TooLarge(t *testing.T) {
	f := &LineFramer{MaxFrameSize: 32}

	_, err := readAll(t, f, strings.Repeat("x", 100)+"\n")
	require.ErrorIs(t, err, errors.ErrFrameTooLarge)
}

func TestLineFramer_WriteFrame(t *testing.T) {
	var buf bytes.Buffer

	f := &LineFramer{}
	require.NoError(t, f.WriteFrame(&buf, []byte(`{"a":1}`)))
	require.Equal(t, "{\"a\":1}\n", buf.String())

	require.Error(t, f.WriteFrame(&buf, []byte("two\nlines")))
}

func TestHeaderFramer_RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	f := &HeaderFramer{MaxFrameSize: 1024}
	require.NoError(t, f.WriteFrame(&buf, []byte(`{"a":1}`)))
	require.NoError(t, f.WriteFrame(&buf, []byte("{\"multi\":\n\"line\"}")))
	require.Equal(t, "Content-Length: 7\r\n\r\n{\"a\":1}", buf.String()[:28])

	frames, err := readAll(t, f, buf.String())
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, `{"a":1}`, string(frames[0]))
	require.Equal(t, "{\"multi\":\n\"line\"}", string(frames[1]))
}

func TestHeaderFramer_IgnoresOtherHeaders(t *testing.T) {
	f := &HeaderFramer{}
	input := "Content-Type: application/json\r\ncontent-length: 2\r\n\r\n{}"

	frames, err := readAll(t, f, input)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, "{}", string(frames[0]))
}

func TestHeaderFramer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "missing length", input: "Content-Type: x\r\n\r\n{}"},
		{name: "malformed header", input: "garbage\r\n\r\n{}"},
		{name: "bad length", input: "Content-Length: abc\r\n\r\n{}"},
		{name: "truncated body", input: "Content-Length: 10\r\n\r\n{}"},
		{name: "truncated header", input: "Content-Length: 2\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readAll(t, &HeaderFramer{}, tt.input)
			require.Error(t, err)
		})
	}

	_, err := readAll(t, &HeaderFramer{MaxFrameSize: 4}, "Content-Length: 5\r\n\r\nhello")
	require.ErrorIs(t, err, errors.ErrFrameTooLarge)
}

func TestNewFramer(t *testing.T) {
	require.IsType(t, &LineFramer{}, NewFramer(config.FramingLine, 0))
	require.IsType(t, &HeaderFramer{}, NewFramer(config.FramingHeader, 0))
	require.Equal(t, config.DefaultMaxFrameSize, NewFramer("", 0).(*LineFramer).MaxFrameSize)
}
