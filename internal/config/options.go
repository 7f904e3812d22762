package config

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultHandshakeTimeout bounds initialize + initialized on the client side.
	DefaultHandshakeTimeout = 10 * time.Second
	// DefaultCancelGracePeriod bounds the wait for the peer's answer after a cancel.
	DefaultCancelGracePeriod = 5 * time.Second
	// DefaultMaxFrameSize is the largest frame body a stream transport accepts.
	DefaultMaxFrameSize = 8 << 20
)

// InitializeFunc produces the initialize result for a connecting client.
// Returning an error rejects the handshake; the client may retry.
type InitializeFunc func(ctx context.Context, client ClientInfo) (ServerInfo, error)

// Metrics receives engine events. Implementations must be safe for concurrent use.
type Metrics interface {
	// ObserveRequest records a completed request. Direction is "inbound"
	// or "outbound"; outcome is "ok" or the error kind.
	ObserveRequest(direction, method, outcome string, elapsed time.Duration)
	// PendingChanged adjusts the number of outbound requests awaiting a response.
	PendingChanged(delta int)
	// ObserveNotification records a notification sent or received.
	ObserveNotification(direction, method string)
	// ObserveProtocolError records a dropped ill-formed frame.
	ObserveProtocolError()
	// SessionStateChanged records a lifecycle transition.
	SessionStateChanged(from, to string)
}

// NopMetrics discards all events.
type NopMetrics struct{}

// Compile-time verification that NopMetrics implements Metrics.
var _ Metrics = NopMetrics{}

func (NopMetrics) ObserveRequest(string, string, string, time.Duration) {}
func (NopMetrics) PendingChanged(int)                                  {}
func (NopMetrics) ObserveNotification(string, string)                  {}
func (NopMetrics) ObserveProtocolError()                               {}
func (NopMetrics) SessionStateChanged(string, string)                  {}

// Options configures a protocol session.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// HandshakeTimeout bounds the client-side initialize/initialized exchange.
	// If zero, DefaultHandshakeTimeout is used.
	HandshakeTimeout time.Duration

	// CancelGracePeriod is how long a cancelled outbound request keeps waiting
	// for the peer's response before a local RequestCancelled error is returned.
	// If zero, DefaultCancelGracePeriod is used.
	CancelGracePeriod time.Duration

	// MaxConcurrentHandlers bounds concurrently executing inbound request
	// handlers. Zero means unbounded.
	MaxConcurrentHandlers int

	// Framing selects the stream framing for stdio and process transports.
	Framing Framing

	// MaxFrameSize limits a single frame body on stream transports.
	// If zero, DefaultMaxFrameSize is used.
	MaxFrameSize int

	// ServerInfo is returned from initialize when OnInitialize is nil.
	// If Name is empty, DefaultServerInfo is used.
	ServerInfo ServerInfo

	// OnInitialize is called when a client sends initialize (server role).
	OnInitialize InitializeFunc

	// Metrics receives engine events. If nil, events are discarded.
	Metrics Metrics

	// AgentPath is the explicit path to the agent binary for process transports.
	// If empty, the binary is searched in PATH.
	AgentPath string

	// AgentArgs overrides the arguments passed to the agent binary.
	// If nil, the agent is started in jsonrpc mode.
	AgentArgs []string

	// Cwd sets the working directory for the agent process.
	Cwd string

	// Env provides additional environment variables for the agent process.
	Env map[string]string

	// Stderr is a callback function for handling agent stderr output.
	Stderr func(string)

	// Transport allows injecting a custom transport implementation.
	// If nil, callers that spawn an agent create a process transport.
	Transport Transport `json:"-"`
}

// WithDefaults returns a copy of o with every unset field defaulted.
func (o *Options) WithDefaults() *Options {
	out := Options{}
	if o != nil {
		out = *o
	}

	if out.Logger == nil {
		out.Logger = NopLogger()
	}

	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if out.CancelGracePeriod <= 0 {
		out.CancelGracePeriod = DefaultCancelGracePeriod
	}

	if out.MaxConcurrentHandlers < 0 {
		out.MaxConcurrentHandlers = 0
	}

	if out.Framing == "" {
		out.Framing = FramingLine
	}

	if out.MaxFrameSize <= 0 {
		out.MaxFrameSize = DefaultMaxFrameSize
	}

	if out.ServerInfo.Name == "" {
		out.ServerInfo = DefaultServerInfo()
	}

	if out.Metrics == nil {
		out.Metrics = NopMetrics{}
	}

	return &out
}

// NopLogger returns a logger that discards all output.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func splitPath(path string) iter.Seq[string] {
	return strings.SplitSeq(path, ".")
}
