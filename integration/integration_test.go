//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	agentrpc "github.com/wagiedev/agentrpc-go"
)

// handshakeTimeout is the bound a front-end allows the agent to initialize.
const handshakeTimeout = 10 * time.Second

// pushes records the notifications an agent sends to one client.
type pushes struct {
	mu      sync.Mutex
	webview []agentrpc.WebviewMessageParams
	shown   []agentrpc.ShowMessageParams
}

func (p *pushes) webviewCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.webview)
}

func (p *pushes) shownCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.shown)
}

// spawnAgent starts agentd and returns a client session that has not yet
// sent initialize. The test is skipped when agentd is not installed.
// AGENTRPC_AGENT_PATH selects a specific binary.
func spawnAgent(t *testing.T, ctx context.Context, opts ...agentrpc.Option) (*agentrpc.Session, *pushes) {
	t.Helper()

	if path := os.Getenv("AGENTRPC_AGENT_PATH"); path != "" {
		opts = append(opts, agentrpc.WithAgentPath(path))
	}

	opts = append(opts,
		agentrpc.WithHandshakeTimeout(handshakeTimeout),
		agentrpc.WithStderr(func(line string) { t.Log("agentd:", line) }),
	)

	transport := agentrpc.NewProcessTransport(opts...)
	client := agentrpc.NewClient(transport, opts...)

	recorded := &pushes{}

	require.NoError(t, agentrpc.HandleNotification(client, agentrpc.MethodWebviewPostMessage,
		func(_ context.Context, p agentrpc.WebviewMessageParams) error {
			recorded.mu.Lock()
			recorded.webview = append(recorded.webview, p)
			recorded.mu.Unlock()

			return nil
		}))

	require.NoError(t, agentrpc.HandleRequest(client, agentrpc.MethodShowMessage,
		func(_ context.Context, p agentrpc.ShowMessageParams) (any, error) {
			recorded.mu.Lock()
			recorded.shown = append(recorded.shown, p)
			recorded.mu.Unlock()

			return nil, nil
		}))

	if err := client.Start(ctx); err != nil {
		skipIfAgentNotInstalled(t, err)
		t.Fatalf("start agent: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })

	return client, recorded
}

// skipIfAgentNotInstalled skips the test if the error indicates agentd is not found.
func skipIfAgentNotInstalled(t *testing.T, err error) {
	t.Helper()

	if _, ok := errors.AsType[*agentrpc.AgentNotFoundError](err); ok {
		t.Skip("agentd not installed")
	}
}
