package agentrpc

import (
	"log/slog"
	"time"

	"github.com/wagiedev/agentrpc-go/internal/config"
)

// Options configures sessions and transports.
type Options = config.Options

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options and fills in defaults.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options.WithDefaults()
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics sets the receiver of engine events. See NewPrometheusMetrics.
func WithMetrics(metrics Metrics) Option {
	return func(o *Options) {
		o.Metrics = metrics
	}
}

// WithOptions copies every field of base. Later options override it.
func WithOptions(base Options) Option {
	return func(o *Options) {
		*o = base
	}
}

// ===== Lifecycle =====

// WithHandshakeTimeout bounds the client-side initialize/initialized exchange.
// Defaults to 10 seconds.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.HandshakeTimeout = timeout
	}
}

// WithServerInfo sets the initialize result of a server session.
func WithServerInfo(info ServerInfo) Option {
	return func(o *Options) {
		o.ServerInfo = info
	}
}

// WithOnInitialize sets the hook that answers initialize on a server
// session. An error rejects the handshake and the client may retry.
func WithOnInitialize(fn InitializeFunc) Option {
	return func(o *Options) {
		o.OnInitialize = fn
	}
}

// ===== Requests =====

// WithCancelGracePeriod sets how long a cancelled request waits for the
// peer's answer before failing locally. Defaults to 5 seconds.
func WithCancelGracePeriod(d time.Duration) Option {
	return func(o *Options) {
		o.CancelGracePeriod = d
	}
}

// WithMaxConcurrentHandlers bounds concurrently executing inbound request
// handlers. Zero means unbounded.
func WithMaxConcurrentHandlers(n int) Option {
	return func(o *Options) {
		o.MaxConcurrentHandlers = n
	}
}

// ===== Framing =====

// WithFraming selects the frame delimiting of stream transports.
func WithFraming(framing Framing) Option {
	return func(o *Options) {
		o.Framing = framing
	}
}

// WithMaxFrameSize limits a single frame body in bytes. Defaults to 8 MiB.
func WithMaxFrameSize(n int) Option {
	return func(o *Options) {
		o.MaxFrameSize = n
	}
}

// ===== Agent Process =====

// WithAgentPath sets the explicit path to the agent binary.
// If not set, the binary will be searched in PATH.
func WithAgentPath(path string) Option {
	return func(o *Options) {
		o.AgentPath = path
	}
}

// WithAgentArgs overrides the arguments passed to the agent binary.
func WithAgentArgs(args ...string) Option {
	return func(o *Options) {
		o.AgentArgs = args
	}
}

// WithCwd sets the working directory for the agent process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithEnv provides additional environment variables for the agent process.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// WithStderr sets a callback receiving each stderr line of the agent process.
func WithStderr(handler func(string)) Option {
	return func(o *Options) {
		o.Stderr = handler
	}
}

// WithTransport injects a custom transport for Spawn and WithClient.
// This is primarily useful for testing and mocking.
func WithTransport(t Transport) Option {
	return func(o *Options) {
		o.Transport = t
	}
}
