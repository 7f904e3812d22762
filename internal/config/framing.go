package config

import (
	"fmt"
	"strings"
)

// Framing selects how frame bodies are delimited on a byte stream.
type Framing string

const (
	// FramingLine delimits frames with a newline. This is the default.
	FramingLine Framing = "line"
	// FramingHeader prefixes each frame with a Content-Length header block.
	FramingHeader Framing = "header"
)

// ParseFraming maps a framing name to a Framing value.
//
// Accepted aliases:
//   - "" and "ndjson" -> "line"
//   - "content-length" and "lsp" -> "header"
func ParseFraming(name string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "line", "ndjson":
		return FramingLine, nil
	case "header", "content-length", "lsp":
		return FramingHeader, nil
	default:
		return "", fmt.Errorf("unknown framing %q", name)
	}
}
