package protocol

import (
	"encoding/json"

	"github.com/wagiedev/agentrpc-go/internal/jsonrpc"
)

// Lifecycle and engine methods.
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "initialized"
	MethodShutdown      = "shutdown"
	MethodExit          = "exit"
	MethodCancelRequest = "$/cancelRequest"
)

// Server-initiated pushes.
const (
	MethodDebugMessage       = "debug/message"
	MethodWebviewPostMessage = "webview/postMessage"
	MethodShowMessage        = "window/showMessage"
)

// Client-initiated editor and configuration notifications.
const (
	MethodConfigurationDidChange = "extensionConfiguration/didChange"
	MethodDocumentDidOpen        = "textDocument/didOpen"
	MethodDocumentDidChange      = "textDocument/didChange"
	MethodDocumentDidFocus       = "textDocument/didFocus"
	MethodDocumentDidClose       = "textDocument/didClose"
)

// Metric labels for message direction.
const (
	directionInbound  = "inbound"
	directionOutbound = "outbound"
)

// CancelParams is the params object of $/cancelRequest.
type CancelParams struct {
	ID jsonrpc.ID `json:"id"`
}

// DebugMessageParams is the params object of debug/message.
type DebugMessageParams struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

// WebviewMessageParams is the params object of webview/postMessage.
type WebviewMessageParams struct {
	ID      string          `json:"id"`
	Message json.RawMessage `json:"message"`
}

// isLifecycleMethod reports whether method drives the session state machine.
func isLifecycleMethod(method string) bool {
	switch method {
	case MethodInitialize, MethodInitialized, MethodShutdown, MethodExit:
		return true
	default:
		return false
	}
}
