package methods

import (
	"context"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/web3/jsonrpc"
)

// switchChain sends the user to the wallet's network settings. The site's
// session is left as it is; a chain change made there reaches the page
// through the tab's chainChanged event.
func (t *Table) switchChain(ctx context.Context, req *jsonrpc.Request, h Helper) (any, error) {
	if t.deps.Navigator != nil {
		if err := t.deps.Navigator.OpenNetworkSettings(ctx, h.Origin()); err != nil {
			t.logger.Warn("Failed to open network settings", zap.String("origin", h.Origin()), zap.Error(err))
		}
	}
	return nil, nil
}

// IsEthereumChainParams reports whether raw looks like an EIP-3085
// AddEthereumChainParameter.
func IsEthereumChainParams(raw []byte) bool {
	res := gjson.GetManyBytes(raw, "chainId", "chainName", "rpcUrls")
	return res[0].Exists() && res[1].Exists() && res[2].IsArray()
}

func (t *Table) addChain(_ context.Context, req *jsonrpc.Request, h Helper) (any, error) {
	params, err := req.ParamsArray()
	if err != nil || len(params) == 0 || !IsEthereumChainParams(params[0]) {
		return nil, jsonrpc.ErrInvalidParams
	}
	p := gjson.ParseBytes(params[0])
	t.logger.Info("Site suggested a chain",
		zap.String("origin", h.Origin()),
		zap.String("chain_id", p.Get("chainId").String()),
		zap.String("chain_name", p.Get("chainName").String()))
	return nil, nil
}
