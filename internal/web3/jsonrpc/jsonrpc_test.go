package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/monitoring"
)

func TestIsRequest(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`{"id":1,"jsonrpc":"2.0","method":"eth_chainId"}`, true},
		{`{"id":"a1","jsonrpc":"2.0","method":"eth_accounts","params":[]}`, true},
		{`{"id":0,"jsonrpc":"2.0","method":"eth_chainId"}`, false},
		{`{"id":"","jsonrpc":"2.0","method":"eth_chainId"}`, false},
		{`{"id":null,"jsonrpc":"2.0","method":"eth_chainId"}`, false},
		{`{"id":1,"jsonrpc":2,"method":"eth_chainId"}`, false},
		{`{"id":1,"jsonrpc":"2.0"}`, false},
		{`{"type":"WINDOW_INFO","payload":{}}`, false},
		{`not json`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRequest([]byte(tt.raw)), tt.raw)
	}
}

func TestParseRequestKeepsRawID(t *testing.T) {
	req, err := ParseRequest([]byte(`{"id":"abc-1","jsonrpc":"2.0","method":"eth_chainId","params":["x"]}`))
	require.NoError(t, err)
	assert.Equal(t, `"abc-1"`, string(req.ID))

	params, err := req.ParamsArray()
	require.NoError(t, err)
	assert.Len(t, params, 1)

	_, err = ParseRequest([]byte(`{"foo":1}`))
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidRequest, rpcErr.Code)
}

func TestParamsArray(t *testing.T) {
	params, err := (&Request{}).ParamsArray()
	require.NoError(t, err)
	assert.Empty(t, params)

	params, err = (&Request{Params: json.RawMessage(`null`)}).ParamsArray()
	require.NoError(t, err)
	assert.Empty(t, params)

	_, err = (&Request{Params: json.RawMessage(`{"a":1}`)}).ParamsArray()
	assert.Error(t, err)
}

func TestResponseWireForm(t *testing.T) {
	req := &Request{ID: json.RawMessage(`7`), JSONRPC: Version, Method: "wallet_switchEthereumChain"}

	res := NewResponse(req)
	res.SetResult(nil)
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"jsonrpc":"2.0","result":null}`, string(data))

	res.SetError(ErrUserRejected)
	data, err = json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"jsonrpc":"2.0","error":{"code":4001,"message":"User rejected the request."}}`, string(data))
}

func request(method string) *Request {
	return &Request{ID: json.RawMessage(`1`), JSONRPC: Version, Method: method}
}

func TestEngineEmptyChain(t *testing.T) {
	res := NewEngine(nil).Handle(context.Background(), request("eth_chainId"))
	assert.Equal(t, ErrNotHandled, res.Error)
}

func TestEngineLastMiddlewareMayCallNext(t *testing.T) {
	e := NewEngine(nil)
	e.Push(func(ctx context.Context, req *Request, res *Response, next Next) error {
		res.SetResult("0x1")
		return next(ctx)
	})

	res := e.Handle(context.Background(), request("eth_chainId"))
	require.Nil(t, res.Error)
	v, ok := res.Result()
	assert.True(t, ok)
	assert.Equal(t, "0x1", v)
}

func TestEngineOrder(t *testing.T) {
	var order []string
	e := NewEngine(nil)
	for _, name := range []string{"a", "b", "c"} {
		name := name
		e.Push(func(ctx context.Context, req *Request, res *Response, next Next) error {
			order = append(order, name)
			err := next(ctx)
			order = append(order, name+"-after")
			return err
		})
	}
	e.Handle(context.Background(), request("x"))
	assert.Equal(t, []string{"a", "b", "c", "c-after", "b-after", "a-after"}, order)
	assert.Equal(t, 3, e.Len())
}

func TestEngineErrors(t *testing.T) {
	tests := []struct {
		name string
		mw   Middleware
		want *Error
	}{
		{
			name: "rpc error forwarded",
			mw: func(ctx context.Context, req *Request, res *Response, next Next) error {
				return ServerError("nope")
			},
			want: ServerError("nope"),
		},
		{
			name: "internal error hidden",
			mw: func(ctx context.Context, req *Request, res *Response, next Next) error {
				return errors.New("db is down at 10.0.0.3")
			},
			want: ErrNotHandled,
		},
		{
			name: "panic recovered",
			mw: func(ctx context.Context, req *Request, res *Response, next Next) error {
				panic("boom")
			},
			want: ErrNotHandled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(nil)
			e.Push(tt.mw)
			res := e.Handle(context.Background(), request("eth_chainId"))
			assert.Equal(t, tt.want, res.Error)
		})
	}
}

func TestLoggerMiddlewareDoesNotMutate(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	e := NewEngine(nil)
	e.Push(func(ctx context.Context, req *Request, res *Response, next Next) error {
		res.SetResult([]string{"0xabc"})
		return next(ctx)
	})
	e.Push(Logger(zap.New(core)))

	res := e.Handle(context.Background(), request("eth_accounts"))
	v, ok := res.Result()
	require.True(t, ok)
	assert.Equal(t, []string{"0xabc"}, v)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "eth_accounts", entry.ContextMap()["method"])
	assert.Equal(t, OutcomeResult, entry.ContextMap()["outcome"])
}

func TestMetricsMiddleware(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())

	e := NewEngine(nil)
	e.Push(Metrics(m))
	e.Push(func(ctx context.Context, req *Request, res *Response, next Next) error {
		if req.Method == "eth_chainId" {
			res.SetResult("0x1")
		} else {
			res.SetError(ErrMethodNotImplemented)
		}
		return next(ctx)
	})

	e.Handle(context.Background(), request("eth_chainId"))
	e.Handle(context.Background(), request("made_up_method"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("eth_chainId", OutcomeResult)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("unknown", OutcomeError)))
}
