package agentrpc

import (
	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/editor"
	"github.com/wagiedev/agentrpc-go/internal/jsonrpc"
	"github.com/wagiedev/agentrpc-go/internal/protocol"
)

// Session is one end of a connection. See the package documentation.
type Session = protocol.Session

// State is the lifecycle state of a Session.
type State = protocol.State

// Lifecycle states.
const (
	StateUninitialized = protocol.StateUninitialized
	StateInitializing  = protocol.StateInitializing
	StateReady         = protocol.StateReady
	StateShuttingDown  = protocol.StateShuttingDown
	StateClosed        = protocol.StateClosed
)

// Role identifies which end of the handshake a Session plays.
type Role = protocol.Role

// Session roles.
const (
	RoleServer = protocol.RoleServer
	RoleClient = protocol.RoleClient
)

// RequestHandler answers an inbound request with a result or an error.
// Returning *Error sends its code; any other error is sent as an internal error.
type RequestHandler = protocol.RequestHandler

// NotificationHandler handles an inbound notification.
type NotificationHandler = protocol.NotificationHandler

// Registrar is implemented by Session.
type Registrar = protocol.Registrar

// Caller is implemented by Session.
type Caller = protocol.Caller

// ClientInfo is the params object of initialize.
type ClientInfo = config.ClientInfo

// ServerInfo is the result of initialize.
type ServerInfo = config.ServerInfo

// ExtensionConfiguration is the client's extension settings.
type ExtensionConfiguration = config.ExtensionConfiguration

// InitializeFunc produces the initialize result for a connecting client.
type InitializeFunc = config.InitializeFunc

// Metrics receives engine events.
type Metrics = config.Metrics

// Error is the error object of a failed request.
type Error = jsonrpc.Error

// ErrorCode is the code of an Error.
type ErrorCode = jsonrpc.ErrorCode

// Well-known error codes.
const (
	CodeParseError       = jsonrpc.CodeParseError
	CodeInvalidRequest   = jsonrpc.CodeInvalidRequest
	CodeMethodNotFound   = jsonrpc.CodeMethodNotFound
	CodeInvalidParams    = jsonrpc.CodeInvalidParams
	CodeInternalError    = jsonrpc.CodeInternalError
	CodeNotInitialized   = jsonrpc.CodeNotInitialized
	CodeConnectionClosed = jsonrpc.CodeConnectionClosed
	CodeRequestCancelled = jsonrpc.CodeRequestCancelled
)

// NewError creates an Error that a handler can return to send code.
func NewError(code ErrorCode, message string) *Error {
	return jsonrpc.NewError(code, message)
}

// ID is a request id: an integer or a string.
type ID = jsonrpc.ID

// Int64ID returns an integer request id.
func Int64ID(n int64) ID { return jsonrpc.Int64ID(n) }

// StringID returns a string request id.
func StringID(s string) ID { return jsonrpc.StringID(s) }

// Params objects of the built-in methods.
type (
	CancelParams         = protocol.CancelParams
	DebugMessageParams   = protocol.DebugMessageParams
	WebviewMessageParams = protocol.WebviewMessageParams
	ShowMessageParams    = editor.ShowMessageParams
	Document             = editor.Document
	Position             = editor.Position
	Range                = editor.Range
)

// Method names.
const (
	MethodInitialize             = protocol.MethodInitialize
	MethodInitialized            = protocol.MethodInitialized
	MethodShutdown               = protocol.MethodShutdown
	MethodExit                   = protocol.MethodExit
	MethodCancelRequest          = protocol.MethodCancelRequest
	MethodDebugMessage           = protocol.MethodDebugMessage
	MethodWebviewPostMessage     = protocol.MethodWebviewPostMessage
	MethodShowMessage            = protocol.MethodShowMessage
	MethodConfigurationDidChange = protocol.MethodConfigurationDidChange
	MethodDocumentDidOpen        = protocol.MethodDocumentDidOpen
	MethodDocumentDidChange      = protocol.MethodDocumentDidChange
	MethodDocumentDidFocus       = protocol.MethodDocumentDidFocus
	MethodDocumentDidClose       = protocol.MethodDocumentDidClose
)

// Framing selects how frames are delimited on a byte stream.
type Framing = config.Framing

// Supported framings.
const (
	FramingLine   = config.FramingLine
	FramingHeader = config.FramingHeader
)
