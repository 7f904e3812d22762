package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/wagiedev/agentrpc-go/internal/config"
)

func version() string {
	return config.Version
}

// parseFlags loads the layered configuration and applies the jsonrpc flags
// on top. Only flags given on the command line override the loaded values.
func parseFlags(args []string, stderr io.Writer) (*config.File, error) {
	fs := flag.NewFlagSet("jsonrpc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath   = fs.String("config", "", "path to a YAML or TOML config file")
		framing      = fs.String("framing", "", "stdio framing: line or header")
		maxFrameSize = fs.Int("max-frame-size", 0, "largest accepted frame in bytes")
		listen       = fs.String("listen", "", "serve WebSocket clients on this address instead of stdio")
		metricsAddr  = fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
		logLevel     = fs.String("log-level", "", "debug, info, warn or error")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "framing":
			cfg.Framing = *framing
		case "max-frame-size":
			cfg.MaxFrameSize = *maxFrameSize
		case "listen":
			cfg.Listen = *listen
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	return cfg, nil
}
