//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	agentrpc "github.com/wagiedev/agentrpc-go"
)

func TestAgent_DuplicateConfigurationChanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, recorded := spawnAgent(t, ctx)

	_, err := client.Initialize(ctx, agentrpc.ClientInfo{
		Name:                   "jetbrains",
		ExtensionConfiguration: &agentrpc.ExtensionConfiguration{ServerEndpoint: "https://example.com/"},
	})
	require.NoError(t, err)

	unauthenticated := agentrpc.ExtensionConfiguration{
		ServerEndpoint:  "https://example.com/",
		AnonymousUserID: "abcde1234",
	}
	authenticated := unauthenticated
	authenticated.AccessToken = "token"

	require.NoError(t, client.Notify(ctx, agentrpc.MethodConfigurationDidChange, unauthenticated))
	require.NoError(t, client.Notify(ctx, agentrpc.MethodConfigurationDidChange, authenticated))

	require.Eventually(t, func() bool { return recorded.webviewCount() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, client.ShutdownAndExit(ctx))
}

func TestAgent_DocumentNotifications(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, recorded := spawnAgent(t, ctx)

	_, err := client.Initialize(ctx, agentrpc.ClientInfo{
		Name:         "vscode",
		Capabilities: map[string]any{"textDocument": map[string]any{"sync": true}},
	})
	require.NoError(t, err)

	content := "export function sum(a: number, b: number): number {\n    \n}\n"
	require.NoError(t, client.Notify(ctx, agentrpc.MethodDocumentDidOpen, agentrpc.Document{
		URI:     "file:///workspace/src/sum.ts",
		Content: &content,
		Selection: &agentrpc.Range{
			Start: agentrpc.Position{Line: 1, Character: 3},
			End:   agentrpc.Position{Line: 1, Character: 3},
		},
	}))

	require.NoError(t, client.Notify(ctx, agentrpc.MethodDocumentDidFocus,
		agentrpc.Document{URI: "file:///workspace/src/animal.ts"}))

	require.Eventually(t, func() bool { return recorded.shownCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, client.ShutdownAndExit(ctx))
}
