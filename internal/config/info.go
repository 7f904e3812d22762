package config

// Version is the semantic version reported in the default server info.
const Version = "0.3.0"

// DefaultServerName is the server name reported when none is configured.
const DefaultServerName = "core-agent"

// ClientInfo is the params object of the initialize request.
type ClientInfo struct {
	Name                   string         `json:"name"`
	Version                string         `json:"version,omitempty"`
	WorkspaceRootURI       string         `json:"workspaceRootUri,omitempty"`
	WorkspaceRootPath      string         `json:"workspaceRootPath,omitempty"`
	Capabilities           map[string]any `json:"capabilities,omitempty"`
	ExtensionConfiguration *ExtensionConfiguration `json:"extensionConfiguration,omitempty"`
}

// ExtensionConfiguration is the client's extension settings. It is sent with
// initialize and again with every extensionConfiguration/didChange.
type ExtensionConfiguration struct {
	ServerEndpoint      string            `json:"serverEndpoint,omitempty"`
	Proxy               string            `json:"proxy,omitempty"`
	AccessToken         string            `json:"accessToken,omitempty"`
	AnonymousUserID     string            `json:"anonymousUserID,omitempty"`
	CustomHeaders       map[string]string `json:"customHeaders,omitempty"`
	Codebase            string            `json:"codebase,omitempty"`
	Debug               bool              `json:"debug,omitempty"`
	VerboseDebug        bool              `json:"verboseDebug,omitempty"`
	CustomConfiguration map[string]any    `json:"customConfiguration,omitempty"`
}

// Redacted returns a copy with the access token masked, suitable for logs
// and webview pushes.
func (c ExtensionConfiguration) Redacted() ExtensionConfiguration {
	if c.AccessToken != "" {
		c.AccessToken = "REDACTED"
	}

	return c
}

// ServerInfo is the result of the initialize request.
type ServerInfo struct {
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	Authenticated *bool          `json:"authenticated,omitempty"`
	Capabilities  map[string]any `json:"capabilities,omitempty"`
}

// DefaultServerInfo returns the server info reported by an unconfigured server.
func DefaultServerInfo() ServerInfo {
	return ServerInfo{Name: DefaultServerName, Version: Version}
}

// HasCapability reports whether the client advertised a truthy capability.
// Nested capabilities use dotted paths such as "textDocument.sync".
func (c ClientInfo) HasCapability(path string) bool {
	var cur any = c.Capabilities

	for part := range splitPath(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}

		cur, ok = m[part]
		if !ok {
			return false
		}
	}

	switch v := cur.(type) {
	case bool:
		return v
	case nil:
		return false
	default:
		return true
	}
}
