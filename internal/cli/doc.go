// Package cli locates the agent binary and builds the command line used to
// run it as a child process.
//
// # Discovery
//
// The Discoverer interface locates the agent binary:
//
//	discoverer := cli.NewDiscoverer(&cli.Config{
//	    AgentPath: "",           // Optional explicit path
//	    Logger:    slog.Default(),
//	})
//	agentPath, err := discoverer.Discover(ctx)
//
// Discovery searches in the following order:
//  1. Explicit path in Config.AgentPath (if provided)
//  2. System PATH
//  3. Common installation directories (/usr/local/bin, /usr/bin, ~/.local/bin)
//
// During discovery the agent version is compared with MinimumVersion and a
// warning is logged when it is older. AGENTRPC_SKIP_VERSION_CHECK disables
// the check.
//
// # Command Building
//
//	args := cli.BuildArgs(options)
//	env := cli.BuildEnvironment(options)
package cli
