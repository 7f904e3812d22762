package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/wagiedev/agentrpc-go/internal/jsonrpc"
)

// paramsSchema validates raw params against the schema inferred from P.
type paramsSchema struct {
	resolved *jsonschema.Resolved
}

// inferOptions maps json.RawMessage to the empty schema, so raw fields accept
// any JSON value instead of being inferred as a byte slice.
var inferOptions = &jsonschema.ForOptions{
	TypeSchemas: map[reflect.Type]*jsonschema.Schema{
		reflect.TypeFor[json.RawMessage](): {},
	},
}

// newParamsSchema infers a schema for P. Unknown properties are allowed so
// that peers may send newer payloads.
func newParamsSchema[P any]() (*paramsSchema, error) {
	schema, err := jsonschema.For[P](inferOptions)
	if err != nil {
		return nil, fmt.Errorf("infer params schema: %w", err)
	}

	allowAdditionalProperties(schema)

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve params schema: %w", err)
	}

	return &paramsSchema{resolved: resolved}, nil
}

func allowAdditionalProperties(s *jsonschema.Schema) {
	if s == nil {
		return
	}

	s.AdditionalProperties = nil

	for _, prop := range s.Properties {
		allowAdditionalProperties(prop)
	}

	allowAdditionalProperties(s.Items)
}

// decode validates raw and unmarshals it into P. Absent or null params are
// validated as an empty object.
func decodeParams[P any](schema *paramsSchema, raw json.RawMessage) (P, error) {
	var params P

	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return params, jsonrpc.NewErrorf(jsonrpc.CodeInvalidParams, "invalid params: %v", err)
	}

	if err := schema.resolved.Validate(instance); err != nil {
		return params, jsonrpc.NewErrorf(jsonrpc.CodeInvalidParams, "invalid params: %v", err)
	}

	if err := json.Unmarshal(raw, &params); err != nil {
		return params, jsonrpc.NewErrorf(jsonrpc.CodeInvalidParams, "invalid params: %v", err)
	}

	return params, nil
}

// HandleRequest registers a typed request handler. Params are validated
// against the JSON Schema inferred from P before fn runs; invalid params are
// answered with an InvalidParams error.
func HandleRequest[P, R any](
	r Registrar,
	method string,
	fn func(ctx context.Context, params P) (R, error),
) error {
	schema, err := newParamsSchema[P]()
	if err != nil {
		return fmt.Errorf("register %s: %w", method, err)
	}

	r.RegisterRequestHandler(method, func(ctx context.Context, raw json.RawMessage) (any, error) {
		params, err := decodeParams[P](schema, raw)
		if err != nil {
			return nil, err
		}

		return fn(ctx, params)
	})

	return nil
}

// HandleNotification registers a typed notification handler. Notifications
// with invalid params are dropped and the validation error is logged.
func HandleNotification[P any](
	r Registrar,
	method string,
	fn func(ctx context.Context, params P) error,
) error {
	schema, err := newParamsSchema[P]()
	if err != nil {
		return fmt.Errorf("register %s: %w", method, err)
	}

	r.RegisterNotificationHandler(method, func(ctx context.Context, raw json.RawMessage) error {
		params, err := decodeParams[P](schema, raw)
		if err != nil {
			return err
		}

		return fn(ctx, params)
	})

	return nil
}

// Caller sends requests to the peer.
type Caller interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Call sends a request and unmarshals the result into R.
func Call[R any](ctx context.Context, c Caller, method string, params any) (R, error) {
	var result R

	raw, err := c.Request(ctx, method, params)
	if err != nil {
		return result, err
	}

	if len(raw) == 0 || string(raw) == "null" {
		return result, nil
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("decode %s result: %w", method, err)
	}

	return result, nil
}
