package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/wagiedev/agentrpc-go/internal/config"
)

// Environment variables set on every spawned agent.
const (
	EnvClientVersion = "AGENTRPC_CLIENT_VERSION"
	EnvEntrypoint    = "AGENTRPC_ENTRYPOINT"
)

// BuildArgs constructs the agent command arguments. Explicit AgentArgs are
// used verbatim; otherwise the agent is started in jsonrpc mode with the
// configured framing.
func BuildArgs(options *config.Options) []string {
	if options.AgentArgs != nil {
		return append([]string(nil), options.AgentArgs...)
	}

	framing := options.Framing
	if framing == "" {
		framing = config.FramingLine
	}

	args := []string{"jsonrpc", "--framing", string(framing)}

	if options.MaxFrameSize > 0 {
		args = append(args, "--max-frame-size", fmt.Sprint(options.MaxFrameSize))
	}

	return args
}

// BuildEnvironment constructs the environment of the agent process: the
// current environment, the client markers, then options.Env in key order.
func BuildEnvironment(options *config.Options) []string {
	env := os.Environ()

	env = append(env,
		EnvClientVersion+"="+config.Version,
		EnvEntrypoint+"=sdk-go",
	)

	keys := make([]string, 0, len(options.Env))
	for key := range options.Env {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		env = append(env, key+"="+options.Env[key])
	}

	return env
}
