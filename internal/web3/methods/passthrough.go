package methods

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/upstream"
	"github.com/GriffinCanCode/dappbridge/internal/web3/jsonrpc"
)

// passThrough lists read-only methods answered by the chain node, with the
// number of positional params each needs.
var passThrough = map[string]int{
	"eth_blockNumber":           0,
	"eth_gasPrice":              0,
	"eth_call":                  1,
	"eth_estimateGas":           1,
	"eth_getBalance":            1,
	"eth_getBlockByNumber":      1,
	"eth_getCode":               1,
	"eth_getTransactionCount":   1,
	"eth_getTransactionByHash":  1,
	"eth_getTransactionReceipt": 1,
}

func (t *Table) forward(method string, minParams int) Handler {
	return func(ctx context.Context, req *jsonrpc.Request, h Helper) (any, error) {
		params, err := req.ParamsArray()
		if err != nil || len(params) < minParams {
			return nil, jsonrpc.ErrInvalidParams
		}
		if t.deps.Upstream == nil {
			return nil, jsonrpc.ServerError("Chain node unavailable")
		}

		chain := t.preferredChain(h.Origin())
		raw := req.Params
		if len(params) == 0 {
			raw = json.RawMessage("[]")
		}
		result, err := t.deps.Upstream.Call(ctx, chain, method, raw)
		if err != nil {
			var nodeErr *upstream.RPCError
			if errors.As(err, &nodeErr) {
				return nil, jsonrpc.ServerError(nodeErr.Message)
			}
			t.logger.Warn("Upstream call failed",
				zap.String("method", method),
				zap.String("chain", chain.IDHex()),
				zap.Error(err))
			return nil, jsonrpc.ServerError("Chain node request failed")
		}
		return result, nil
	}
}
