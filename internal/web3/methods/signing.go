package methods

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	"github.com/GriffinCanCode/dappbridge/internal/web3/jsonrpc"
)

// ErrRejected is returned by a Signer when the user declines.
var ErrRejected = errors.New("user rejected the request")

var errSigningFailed = jsonrpc.ServerError("Signing failed")

// SignRequest is everything a signing backend needs to show and perform
// one request.
type SignRequest struct {
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	Account string            `json:"account"`
	ChainID string            `json:"chain_id"`
	Origin  string            `json:"origin"`
}

// Signer approves and performs signing requests. Keys never pass through
// this package.
type Signer interface {
	Sign(ctx context.Context, req SignRequest) (any, error)
}

var signingMethods = []string{
	"eth_sendTransaction",
	"eth_sign",
	"personal_sign",
	"eth_signTypedData",
	"eth_signTypedData_v3",
	"eth_signTypedData_v4",
}

func (t *Table) sign(ctx context.Context, req *jsonrpc.Request, h Helper) (any, error) {
	originKey := h.Origin()
	sess, ok := t.deps.Sessions.GetByOrigin(originKey)
	if !ok || !sess.IsActive() {
		return nil, jsonrpc.ErrUnauthorized
	}

	params, err := req.ParamsArray()
	if err != nil || len(params) == 0 {
		return nil, jsonrpc.ErrInvalidParams
	}
	if req.Method == "eth_sendTransaction" {
		tx, err := renameGas(params[0])
		if err != nil {
			return nil, jsonrpc.ErrInvalidParams
		}
		params[0] = tx
	}

	if t.deps.Signer == nil {
		return nil, jsonrpc.ServerError("Signing unavailable")
	}

	result, err := t.deps.Signer.Sign(ctx, SignRequest{
		Method:  req.Method,
		Params:  params,
		Account: sess.SelectedAccount,
		ChainID: t.preferredChain(originKey).IDHex(),
		Origin:  originKey,
	})
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, ErrRejected),
		errors.Is(err, wallet.ErrSelectionCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		t.logger.Info("Signing rejected", zap.String("origin", originKey), zap.String("method", req.Method))
		return nil, jsonrpc.ErrUserRejected
	default:
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		t.logger.Warn("Signing failed", zap.String("origin", originKey), zap.String("method", req.Method), zap.Error(err))
		return nil, errSigningFailed
	}
}

// renameGas moves a transaction's "gas" field to "gasPrice", which is how
// the wallet's transaction screen reads it.
func renameGas(raw json.RawMessage) (json.RawMessage, error) {
	var tx map[string]any
	if err := sonic.Unmarshal(raw, &tx); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errors.New("transaction is null")
	}
	if gas, ok := tx["gas"]; ok && gas != nil && gas != "" {
		tx["gasPrice"] = gas
		delete(tx, "gas")
	}
	return sonic.Marshal(tx)
}
