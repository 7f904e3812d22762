// Command agentd is the long-lived agent process.
//
// Usage:
//
//	agentd jsonrpc [flags]   serve one client over stdin/stdout, or WebSocket
//	                         clients when --listen is set
//	agentd version           print the version
//
// Configuration is layered: built-in defaults, the file named by --config or
// AGENTRPC_CONFIG (YAML or TOML), AGENTRPC_* environment variables, then
// flags. Logs are written to stderr; stdout carries the protocol.
//
// In stdio mode agentd exits 0 after shutdown followed by exit, and 1 when
// the client exits without shutdown or the connection is lost.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// errUncleanExit is returned when the stdio client did not shut down first.
var errUncleanExit = fmt.Errorf("client exited without shutdown")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "agentd: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches a subcommand.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.WriteCloser, stderr io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: agentd <jsonrpc|version> [flags]")
	}

	switch args[0] {
	case "jsonrpc":
		cfg, err := parseFlags(args[1:], stderr)
		if err != nil {
			return err
		}

		return serve(ctx, cfg, stdin, stdout, stderr)

	case "version":
		_, err := fmt.Fprintf(stdout, "agentd %s\n", version())

		return err

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
