// Package protocol defines the JSON-RPC surface shared by every transport:
// envelope types, the published tool descriptor with its argument schema,
// and the Content-Length framing used on the local pipe transport.
package protocol

import "encoding/json"

const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and therefore
// must not receive a response.
func (r Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response always carries an id field; it is null when the request id could
// not be recovered (parse failures).
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *ErrorObj `json:"error,omitempty"`
}

type ErrorObj struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// DecodeID extracts the request id as a generic value for echoing back.
// The bool is false when no usable id was present.
func DecodeID(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false
	}
	if generic == nil {
		return nil, false
	}
	return generic, true
}

// NewResult builds a success response echoing the given id.
func NewResult(id any, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewError builds an error response echoing the given id (null if unknown).
func NewError(id any, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &ErrorObj{Code: code, Message: message}}
}
