package jsonrpc

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/wagiedev/agentrpc-go/internal/errors"
)

// ProtocolVersion is the version tag written on every frame.
const ProtocolVersion = "2.0"

// Kind identifies which of the three message shapes a frame carries.
type Kind int

const (
	// KindRequest is a message with an id and a method; it expects a response.
	KindRequest Kind = iota + 1
	// KindNotification is a message with a method and no id.
	KindNotification
	// KindResponse echoes a request id with a result or an error.
	KindResponse
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Message is one of *Request, *Notification or *Response.
type Message interface {
	Kind() Kind
	isMessage()
}

// Request asks the peer to run a method and answer with a Response.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

// Notification asks the peer to run a method; no response is sent.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Response answers the Request with the same ID. Exactly one of Result and
// Error is meaningful: a nil Error means success.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *Error
}

// Kind implements Message.
func (*Request) Kind() Kind { return KindRequest }

// Kind implements Message.
func (*Notification) Kind() Kind { return KindNotification }

// Kind implements Message.
func (*Response) Kind() Kind { return KindResponse }

func (*Request) isMessage()      {}
func (*Notification) isMessage() {}
func (*Response) isMessage()     {}

// NewRequest builds a request, marshalling params unless they are already raw JSON.
func NewRequest(id ID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	return &Request{ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification, marshalling params unless they are already raw JSON.
func NewNotification(method string, params any) (*Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	return &Notification{Method: method, Params: raw}, nil
}

// NewResultResponse builds a successful response.
func NewResultResponse(id ID, result any) (*Response, error) {
	var raw json.RawMessage

	switch r := result.(type) {
	case nil:
		raw = json.RawMessage("null")
	case json.RawMessage:
		raw = r
	default:
		b, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}

		raw = b
	}

	return &Response{ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id ID, rpcErr *Error) *Response {
	return &Response{ID: id, Error: rpcErr}
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}

		return b, nil
	}
}

// wireMessage is the envelope shared by all three shapes.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Encode serializes a message into one frame body.
func Encode(msg Message) ([]byte, error) {
	wire := wireMessage{JSONRPC: ProtocolVersion}

	switch m := msg.(type) {
	case *Request:
		if !m.ID.IsValid() {
			return nil, stderrors.New("encode request: missing id")
		}

		id := m.ID
		wire.ID = &id
		wire.Method = m.Method
		wire.Params = m.Params

	case *Notification:
		wire.Method = m.Method
		wire.Params = m.Params

	case *Response:
		id := m.ID
		wire.ID = &id

		if m.Error != nil {
			wire.Error = m.Error
		} else {
			wire.Result = m.Result
			if len(wire.Result) == 0 {
				wire.Result = json.RawMessage("null")
			}
		}

	default:
		return nil, fmt.Errorf("encode: unsupported message type %T", msg)
	}

	if wire.Method == "" && msg.Kind() != KindResponse {
		return nil, stderrors.New("encode: missing method")
	}

	return json.Marshal(wire)
}

// Decode parses one frame body into a message. Ill-formed frames yield an
// *errors.ProtocolError.
func Decode(frame []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(frame, &wire); err != nil {
		return nil, protocolError(frame, fmt.Errorf("invalid JSON: %w", err))
	}

	if wire.JSONRPC != "" && wire.JSONRPC != ProtocolVersion {
		return nil, protocolError(frame, fmt.Errorf("unsupported version %q", wire.JSONRPC))
	}

	hasID := wire.ID != nil && wire.ID.IsValid()
	hasResult := wire.Result != nil
	hasError := wire.Error != nil

	if wire.Method != "" {
		if hasResult || hasError {
			return nil, protocolError(frame, stderrors.New("request cannot carry result or error"))
		}

		if hasID {
			return &Request{ID: *wire.ID, Method: wire.Method, Params: wire.Params}, nil
		}

		return &Notification{Method: wire.Method, Params: wire.Params}, nil
	}

	if !hasID {
		return nil, protocolError(frame, stderrors.New("message has neither method nor id"))
	}

	if hasResult == hasError {
		return nil, protocolError(frame, stderrors.New("response must carry exactly one of result or error"))
	}

	return &Response{ID: *wire.ID, Result: wire.Result, Error: wire.Error}, nil
}

func protocolError(frame []byte, err error) error {
	return &errors.ProtocolError{Raw: string(frame), Err: err}
}
