package cli

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/errors"
)

// TestDiscoverer_NotFound tests that a missing explicit path returns AgentNotFoundError.
func TestDiscoverer_NotFound(t *testing.T) {
	discoverer := NewDiscoverer(&Config{
		AgentPath:        "/nonexistent/path/to/agentd",
		SkipVersionCheck: true,
	})

	_, err := discoverer.Discover(context.Background())

	require.Error(t, err)
	require.IsType(t, &errors.AgentNotFoundError{}, err)
	require.Contains(t, err.Error(), "/nonexistent/path/to/agentd")
}

// TestDiscoverer_ExplicitPath tests discovery with an explicit path.
func TestDiscoverer_ExplicitPath(t *testing.T) {
	fakeAgent := filepath.Join(t.TempDir(), BinaryName)

	err := os.WriteFile(fakeAgent, []byte("#!/bin/sh\necho agentd 0.1.0\n"), 0o755)
	require.NoError(t, err)

	// An old version only logs a warning.
	path, err := NewDiscoverer(&Config{AgentPath: fakeAgent}).Discover(context.Background())

	require.NoError(t, err)
	require.Equal(t, fakeAgent, path)
}

// TestDiscoverer_SearchesPath tests that the binary is found through PATH.
func TestDiscoverer_SearchesPath(t *testing.T) {
	dir := t.TempDir()
	fakeAgent := filepath.Join(dir, BinaryName)

	require.NoError(t, os.WriteFile(fakeAgent, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	t.Setenv("PATH", dir)
	t.Setenv(EnvSkipVersionCheck, "1")

	path, err := NewDiscoverer(nil).Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, fakeAgent, path)
}

func TestBuildArgs_Defaults(t *testing.T) {
	require.Equal(t, []string{"jsonrpc", "--framing", "line"}, BuildArgs(&config.Options{}))
}

func TestBuildArgs_FramingAndFrameSize(t *testing.T) {
	args := BuildArgs(&config.Options{Framing: config.FramingHeader, MaxFrameSize: 1024})

	require.Equal(t, []string{"jsonrpc", "--framing", "header", "--max-frame-size", "1024"}, args)
}

func TestBuildArgs_ExplicitArgs(t *testing.T) {
	custom := []string{"serve", "--stdio"}
	options := &config.Options{AgentArgs: custom, Framing: config.FramingHeader}

	args := BuildArgs(options)
	require.Equal(t, custom, args)

	args[0] = "mutated"
	require.Equal(t, "serve", options.AgentArgs[0])
}

func TestBuildEnvironment_EnvVarsPassedToSubprocess(t *testing.T) {
	env := BuildEnvironment(&config.Options{
		Env: map[string]string{"B_VAR": "2", "A_VAR": "1"},
	})

	require.Contains(t, env, EnvClientVersion+"="+config.Version)
	require.Contains(t, env, EnvEntrypoint+"=sdk-go")

	a := slices.Index(env, "A_VAR=1")
	b := slices.Index(env, "B_VAR=2")

	require.NotEqual(t, -1, a)
	require.Less(t, a, b)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"0.3.0", "0.3.0", 0},
		{"0.2.9", "0.3.0", -1},
		{"1.0.0", "0.9.9", 1},
		{"0.3", "0.3.0", 0},
		{"0.10.0", "0.9.0", 1},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, compareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}
