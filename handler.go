package agentrpc

import (
	"context"

	"github.com/wagiedev/agentrpc-go/internal/protocol"
)

// HandleRequest registers a typed request handler on r. Params are
// validated against the JSON Schema inferred from P; invalid params are
// answered with an InvalidParams error without calling fn.
func HandleRequest[P, R any](r Registrar, method string, fn func(ctx context.Context, params P) (R, error)) error {
	return protocol.HandleRequest(r, method, fn)
}

// HandleNotification registers a typed notification handler on r.
// Notifications with invalid params are dropped.
func HandleNotification[P any](r Registrar, method string, fn func(ctx context.Context, params P) error) error {
	return protocol.HandleNotification(r, method, fn)
}

// Call sends a request and decodes the result into R.
func Call[R any](ctx context.Context, c Caller, method string, params any) (R, error) {
	return protocol.Call[R](ctx, c, method, params)
}
