package jsonrpc

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/monitoring"
)

// Outcome labels for metrics.
const (
	OutcomeResult = "result"
	OutcomeError  = "error"
	OutcomeEmpty  = "empty"
)

// OutcomeOf classifies a response.
func OutcomeOf(res *Response) string {
	switch {
	case res.Error != nil:
		return OutcomeError
	case res.Empty():
		return OutcomeEmpty
	default:
		return OutcomeResult
	}
}

// Logger logs each request with whatever earlier middleware wrote into the
// response. Push it after the terminal middleware.
func Logger(logger *zap.Logger) Middleware {
	return func(ctx context.Context, req *Request, res *Response, next Next) error {
		fields := []zap.Field{
			zap.ByteString("id", req.ID),
			zap.String("method", req.Method),
			zap.ByteString("params", req.Params),
			zap.String("outcome", OutcomeOf(res)),
		}
		if res.Error != nil {
			fields = append(fields, zap.Int("code", res.Error.Code), zap.String("message", res.Error.Message))
		} else if v, ok := res.Result(); ok {
			fields = append(fields, zap.Any("result", v))
		}
		logger.Debug("JSON-RPC", fields...)
		return next(ctx)
	}
}

// Metrics times the rest of the chain and records the outcome. Push it
// first so the timer covers the terminal middleware.
func Metrics(metrics *monitoring.Metrics) Middleware {
	return func(ctx context.Context, req *Request, res *Response, next Next) error {
		timer := monitoring.NewTimer(metrics)
		err := next(ctx)
		if metrics != nil {
			outcome := OutcomeOf(res)
			if err != nil && outcome == OutcomeEmpty {
				outcome = OutcomeError
			}
			method := req.Method
			// Pages choose method names; keep unknown ones out of the label set.
			if res.Error != nil && res.Error.Code == CodeMethodNotFound {
				method = "unknown"
			}
			timer.Stop(method, outcome)
		}
		return err
	}
}
