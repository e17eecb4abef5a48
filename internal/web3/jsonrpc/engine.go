package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Next continues the chain. It is never nil; past the last middleware it
// returns nil without doing anything.
type Next func(ctx context.Context) error

// Middleware handles a request or passes it on. It writes its outcome into
// res. Returning a *Error sets it on an empty response; any other error is
// logged and the page sees a generic internal error.
type Middleware func(ctx context.Context, req *Request, res *Response, next Next) error

// Engine runs requests through an ordered middleware chain.
type Engine struct {
	mu          sync.RWMutex
	middlewares []Middleware
	logger      *zap.Logger
}

// NewEngine creates an engine with no middleware.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger.Named("jsonrpc")}
}

// Push appends mw to the chain.
func (e *Engine) Push(mw Middleware) {
	e.mu.Lock()
	e.middlewares = append(e.middlewares, mw)
	e.mu.Unlock()
}

// Len is the number of middleware in the chain.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.middlewares)
}

// Handle runs req through the chain and always returns a response with
// either a result or an error.
func (e *Engine) Handle(ctx context.Context, req *Request) *Response {
	e.mu.RLock()
	chain := append([]Middleware(nil), e.middlewares...)
	e.mu.RUnlock()

	res := NewResponse(req)
	if err := run(ctx, chain, req, res); err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			if res.Empty() {
				res.SetError(rpcErr)
			}
		} else {
			e.logger.Error("Middleware failed",
				zap.String("method", req.Method),
				zap.ByteString("id", req.ID),
				zap.Error(err))
		}
	}

	if res.Empty() {
		res.SetError(ErrNotHandled)
	}
	return res
}

func run(ctx context.Context, chain []Middleware, req *Request, res *Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in middleware: %v", r)
		}
	}()

	var step func(i int) Next
	step = func(i int) Next {
		return func(ctx context.Context) error {
			if i >= len(chain) {
				return nil
			}
			return chain[i](ctx, req, res, step(i+1))
		}
	}
	return step(0)(ctx)
}
