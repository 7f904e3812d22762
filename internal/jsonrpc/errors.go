package jsonrpc

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/wagiedev/agentrpc-go/internal/errors"
)

// ErrorCode is a protocol error code carried in error responses.
type ErrorCode int

const (
	// CodeParseError indicates the frame was not valid JSON.
	CodeParseError ErrorCode = -32700
	// CodeInvalidRequest indicates the message is not legal in the current state.
	CodeInvalidRequest ErrorCode = -32600
	// CodeMethodNotFound indicates no handler is registered for the method.
	CodeMethodNotFound ErrorCode = -32601
	// CodeInvalidParams indicates invalid method parameters.
	CodeInvalidParams ErrorCode = -32602
	// CodeInternalError indicates the handler failed without a specific code.
	CodeInternalError ErrorCode = -32603
	// CodeNotInitialized indicates the method was invoked before the handshake.
	CodeNotInitialized ErrorCode = -32002
	// CodeConnectionClosed indicates the session closed with the request pending.
	CodeConnectionClosed ErrorCode = -32097
	// CodeRequestCancelled indicates the handler observed cancellation.
	CodeRequestCancelled ErrorCode = -32800
)

// sentinels maps codes with a well-known meaning to the matching sentinel error.
var sentinels = map[ErrorCode]error{
	CodeInvalidRequest:   errors.ErrInvalidRequest,
	CodeMethodNotFound:   errors.ErrMethodNotFound,
	CodeInvalidParams:    errors.ErrInvalidParams,
	CodeInternalError:    errors.ErrInternal,
	CodeNotInitialized:   errors.ErrNotInitialized,
	CodeConnectionClosed: errors.ErrConnectionClosed,
	CodeRequestCancelled: errors.ErrRequestCancelled,
}

// Error is the error object of a Response. It doubles as the Go error a
// failed request surfaces to its caller.
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Compile-time verification that Error implements AgentRPCError.
var _ errors.AgentRPCError = (*Error)(nil)

// NewError creates an error object with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates an error object with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithData returns a copy of e carrying data marshalled as the data member.
// Data that cannot be marshalled is dropped.
func (e *Error) WithData(data any) *Error {
	out := *e

	if raw, err := json.Marshal(data); err == nil {
		out.Data = raw
	}

	return &out
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Is matches the sentinel error registered for the error code.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Code]

	return ok && sentinel == target
}

// IsAgentRPCError implements AgentRPCError.
func (e *Error) IsAgentRPCError() bool { return true }

// ErrorFrom converts an error returned by a handler into an error object.
//
// An *Error anywhere in the chain is used as is, so handlers can supply their
// own code. Cancellation and the well-known sentinels map to their codes;
// anything else becomes an internal error carrying err's message.
func ErrorFrom(err error) *Error {
	if err == nil {
		return nil
	}

	if rpcErr, ok := stderrors.AsType[*Error](err); ok {
		return rpcErr
	}

	if stderrors.Is(err, context.Canceled) {
		return NewError(CodeRequestCancelled, errors.ErrRequestCancelled.Error())
	}

	for code, sentinel := range sentinels {
		if stderrors.Is(err, sentinel) {
			return NewError(code, err.Error())
		}
	}

	return NewError(CodeInternalError, err.Error())
}
