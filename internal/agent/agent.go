package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/editor"
	"github.com/wagiedev/agentrpc-go/internal/protocol"
)

// ConfigWebviewID is the webview id of configuration pushes.
const ConfigWebviewID = "config"

// ConfigMessage is the webview/postMessage payload sent after every
// configuration change.
type ConfigMessage struct {
	Type          string                        `json:"type"`
	Config        config.ExtensionConfiguration `json:"config"`
	Authenticated bool                          `json:"authenticated"`
}

// Agent holds the per-session state of the built-in handlers.
type Agent struct {
	log    *slog.Logger
	server config.ServerInfo

	mu       sync.RWMutex
	session  *protocol.Session
	client   config.ClientInfo
	editor   editor.Editor
	configs  []config.ExtensionConfiguration
	attached bool
}

// New creates an Agent that reports server as its identity.
func New(log *slog.Logger, server config.ServerInfo) *Agent {
	if log == nil {
		log = config.NopLogger()
	}

	if server.Name == "" {
		server = config.DefaultServerInfo()
	}

	return &Agent{
		log:    log.With("component", "agent"),
		server: server,
		editor: editor.Nop{},
	}
}

// Initialize answers initialize. Install it as Options.OnInitialize of the
// session passed to Attach.
func (a *Agent) Initialize(_ context.Context, client config.ClientInfo) (config.ServerInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.client = client
	a.configs = a.configs[:0]

	if client.ExtensionConfiguration != nil {
		a.configs = append(a.configs, *client.ExtensionConfiguration)
	}

	if a.session != nil {
		a.editor = editor.New(a.log, a.session, client)
	}

	a.log.Info("Client initialized",
		"client", client.Name,
		"document_sync", client.HasCapability(editor.CapabilitySync),
	)

	server := a.server
	authenticated := a.authenticatedLocked()
	server.Authenticated = &authenticated

	return server, nil
}

// Attach registers the built-in handlers on session. It must be called
// before the session starts.
func (a *Agent) Attach(session *protocol.Session) error {
	a.mu.Lock()
	if a.attached {
		a.mu.Unlock()

		return fmt.Errorf("agent already attached to session %s", a.session.ID())
	}

	a.session = session
	a.attached = true
	a.mu.Unlock()

	return stderrors.Join(
		protocol.HandleNotification(session, protocol.MethodConfigurationDidChange, a.configurationDidChange),
		protocol.HandleNotification(session, protocol.MethodDocumentDidOpen, a.didOpen),
		protocol.HandleNotification(session, protocol.MethodDocumentDidChange, a.didChange),
		protocol.HandleNotification(session, protocol.MethodDocumentDidFocus, a.didFocus),
		protocol.HandleNotification(session, protocol.MethodDocumentDidClose, a.didClose),
	)
}

// Configuration returns the configuration in effect.
func (a *Agent) Configuration() (config.ExtensionConfiguration, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.configs) == 0 {
		return config.ExtensionConfiguration{}, false
	}

	return a.configs[len(a.configs)-1], true
}

// ConfigurationChanges returns the number of configurations applied since
// initialize, including the one sent with it.
func (a *Agent) ConfigurationChanges() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.configs)
}

// Editor returns the editor selected for the connected client.
func (a *Agent) Editor() editor.Editor {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.editor
}

// configurationDidChange applies every change in arrival order, duplicates
// included, and pushes the result to the config webview.
func (a *Agent) configurationDidChange(ctx context.Context, cfg config.ExtensionConfiguration) error {
	a.mu.Lock()
	a.configs = append(a.configs, cfg)
	authenticated := a.authenticatedLocked()
	session := a.session
	a.mu.Unlock()

	a.log.Debug("Configuration changed",
		"server_endpoint", cfg.ServerEndpoint,
		"authenticated", authenticated,
	)

	return session.PostWebviewMessage(ctx, ConfigWebviewID, ConfigMessage{
		Type:          "config",
		Config:        cfg.Redacted(),
		Authenticated: authenticated,
	})
}

func (a *Agent) authenticatedLocked() bool {
	if len(a.configs) == 0 {
		return false
	}

	return a.configs[len(a.configs)-1].AccessToken != ""
}

func (a *Agent) didOpen(ctx context.Context, doc editor.Document) error {
	return a.Editor().Open(ctx, doc)
}

func (a *Agent) didChange(ctx context.Context, doc editor.Document) error {
	return a.Editor().Change(ctx, doc)
}

func (a *Agent) didFocus(ctx context.Context, doc editor.Document) error {
	return a.Editor().Focus(ctx, doc.URI)
}

func (a *Agent) didClose(ctx context.Context, doc editor.Document) error {
	return a.Editor().Close(ctx, doc.URI)
}
