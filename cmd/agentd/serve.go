package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/agentrpc-go/internal/agent"
	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/metrics"
	"github.com/wagiedev/agentrpc-go/internal/protocol"
	"github.com/wagiedev/agentrpc-go/internal/transport"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	webSocketPath     = "/ws"
)

// serve runs the agent until the stdio client exits, or until ctx is
// cancelled in listen mode.
func serve(ctx context.Context, cfg *config.File, stdin io.Reader, stdout io.WriteCloser, stderr io.Writer) error {
	log := newLogger(cfg, stderr)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	opts := &config.Options{Logger: log, Metrics: collector}
	if err := cfg.Apply(opts); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// The metrics listener lives as long as the sessions it reports on.
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

		g.Go(func() error {
			return listenAndServe(metricsCtx, log, cfg.MetricsAddr, mux)
		})
	}

	g.Go(func() error {
		defer stopMetrics()

		if cfg.Listen != "" {
			return serveWebSocket(ctx, log, cfg.Listen, opts)
		}

		return serveStdio(ctx, log, stdin, stdout, opts)
	})

	return g.Wait()
}

// serveStdio serves one client over stdin and stdout.
func serveStdio(ctx context.Context, log *slog.Logger, stdin io.Reader, stdout io.WriteCloser, opts *config.Options) error {
	framer := transport.NewFramer(opts.Framing, opts.MaxFrameSize)

	return serveSession(ctx, log, transport.NewStream(log, stdin, stdout, framer), opts)
}

// serveSession runs one server session with the built-in handlers attached.
func serveSession(ctx context.Context, log *slog.Logger, t config.Transport, base *config.Options) error {
	opts := *base

	a := agent.New(log, opts.WithDefaults().ServerInfo)
	opts.OnInitialize = a.Initialize

	session := protocol.NewServerSession(t, &opts)
	if err := a.Attach(session); err != nil {
		return err
	}

	if err := session.Start(ctx); err != nil {
		return err
	}

	log.Info("Agent session started", "session_id", session.ID())

	if err := session.Wait(); err != nil {
		return err
	}

	if err := session.Err(); err != nil {
		return err
	}

	if !session.CleanExit() {
		return errUncleanExit
	}

	log.Info("Agent session ended", "session_id", session.ID())

	return nil
}

// serveWebSocket accepts WebSocket clients on addr. Every connection gets
// its own session and agent state.
func serveWebSocket(ctx context.Context, log *slog.Logger, addr string, opts *config.Options) error {
	var sessions sync.WaitGroup

	mux := http.NewServeMux()
	mux.HandleFunc(webSocketPath, func(w http.ResponseWriter, r *http.Request) {
		ws, err := transport.UpgradeWebSocket(w, r, log, opts.MaxFrameSize)
		if err != nil {
			log.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)

			return
		}

		sessions.Go(func() {
			if err := serveSession(ctx, log, ws, opts); err != nil {
				log.Info("WebSocket session ended", "remote_addr", r.RemoteAddr, "error", err)
			}
		})
	})

	err := listenAndServe(ctx, log, addr, mux)

	sessions.Wait()

	return err
}

// listenAndServe serves handler on addr until ctx is cancelled.
func listenAndServe(ctx context.Context, log *slog.Logger, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("HTTP server listening", "addr", ln.Addr().String())

		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}

// newLogger writes JSON or text logs to w at the configured level.
func newLogger(cfg *config.File, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.Level()}

	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}

	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}
