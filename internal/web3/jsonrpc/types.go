package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

// Version is the only protocol version spoken.
const Version = "2.0"

// Error codes used by the provider.
const (
	CodeUserRejected   = 4001
	CodeUnauthorized   = 4100
	CodeServerError    = -32000
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
)

// Error is a JSON-RPC error object. Handlers return one to send its code
// and message to the page verbatim.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates an Error.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Common errors.
var (
	ErrMethodNotImplemented = NewError(CodeMethodNotFound, "Method not implemented")
	ErrInvalidParams        = NewError(CodeInvalidParams, "Invalid params")
	ErrUserRejected         = NewError(CodeUserRejected, "User rejected the request.")
	ErrUnauthorized         = NewError(CodeUnauthorized, "Unauthorized")
	ErrNotHandled           = NewError(CodeInternal, "Method not handled")
)

// ServerError is the -32000 rejection carrying message.
func ServerError(message string) *Error {
	return NewError(CodeServerError, message)
}

// Request is a page-originated call. ID and Params stay raw so the id is
// echoed back byte for byte.
type Request struct {
	ID      json.RawMessage `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ParamsArray decodes Params as a positional array. A missing or null
// params field yields an empty slice.
func (r *Request) ParamsArray() ([]json.RawMessage, error) {
	if len(r.Params) == 0 || gjson.ParseBytes(r.Params).Type == gjson.Null {
		return nil, nil
	}
	var out []json.RawMessage
	if err := sonic.Unmarshal(r.Params, &out); err != nil {
		return nil, fmt.Errorf("params is not an array: %w", err)
	}
	return out, nil
}

// Response is built up by middleware. Exactly one of result and error is
// written on the wire; a nil result is a valid result.
type Response struct {
	ID      json.RawMessage
	JSONRPC string
	Error   *Error

	result    any
	hasResult bool
}

// NewResponse starts the response for req.
func NewResponse(req *Request) *Response {
	return &Response{ID: req.ID, JSONRPC: Version}
}

// SetResult stores v as the result, clearing any error.
func (r *Response) SetResult(v any) {
	r.result = v
	r.hasResult = true
	r.Error = nil
}

// SetError stores err, clearing any result.
func (r *Response) SetError(err *Error) {
	r.Error = err
	r.result = nil
	r.hasResult = false
}

// Result returns the result and whether one was set.
func (r *Response) Result() (any, bool) {
	return r.result, r.hasResult
}

// Empty reports a response nobody wrote to.
func (r *Response) Empty() bool {
	return !r.hasResult && r.Error == nil
}

type resultEnvelope struct {
	ID      json.RawMessage `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result"`
}

type errorEnvelope struct {
	ID      json.RawMessage `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Error   *Error          `json:"error"`
}

// MarshalJSON writes the result form or the error form, never both.
func (r *Response) MarshalJSON() ([]byte, error) {
	id := r.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	if r.Error != nil {
		return sonic.Marshal(errorEnvelope{ID: id, JSONRPC: r.JSONRPC, Error: r.Error})
	}
	return sonic.Marshal(resultEnvelope{ID: id, JSONRPC: r.JSONRPC, Result: r.result})
}

// IsRequest reports whether raw has the shape of a JSON-RPC request: a
// truthy id plus string jsonrpc and method members.
func IsRequest(raw []byte) bool {
	if !gjson.ValidBytes(raw) {
		return false
	}
	res := gjson.GetManyBytes(raw, "id", "jsonrpc", "method")
	return truthy(res[0]) && res[1].Type == gjson.String && res[2].Type == gjson.String
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True, gjson.JSON:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		return false
	}
}

// ParseRequest decodes raw after checking its shape.
func ParseRequest(raw []byte) (*Request, error) {
	if !IsRequest(raw) {
		return nil, NewError(CodeInvalidRequest, "Invalid request")
	}
	var req Request
	if err := sonic.Unmarshal(raw, &req); err != nil {
		return nil, NewError(CodeParseError, "Parse error")
	}
	return &req, nil
}
