package methods

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/domain/origin"
	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	"github.com/GriffinCanCode/dappbridge/internal/upstream"
	"github.com/GriffinCanCode/dappbridge/internal/web3/jsonrpc"
)

// Helper is the tab-side view a handler gets: which origin is calling and
// the tab operations a handler may trigger.
type Helper interface {
	Origin() string
	DisconnectAccount(ctx context.Context) error
	ChangeChainID(ctx context.Context, chainIDHex string) error
	NotifyAccounts(ctx context.Context, accounts []string)
}

// Sessions is the part of the origin store handlers use.
type Sessions interface {
	GetByOrigin(origin string) (*origin.Session, bool)
	Create(ctx context.Context, origin string, fields origin.Fields) (*origin.Session, error)
	Update(ctx context.Context, origin string, patch origin.Patch) (*origin.Session, error)
}

// Navigator opens wallet screens on behalf of a site.
type Navigator interface {
	OpenNetworkSettings(ctx context.Context, origin string) error
}

// Handler implements one provider method. A *jsonrpc.Error return is sent
// to the page as is.
type Handler func(ctx context.Context, req *jsonrpc.Request, h Helper) (any, error)

// Deps are the collaborators handlers consult.
type Deps struct {
	Sessions  Sessions
	Wallet    wallet.State
	Picker    wallet.AccountPicker
	Signer    Signer
	Navigator Navigator
	Upstream  upstream.Caller

	WalletName    string
	WalletVersion string

	Now    func() time.Time
	Logger *zap.Logger
}

// Table maps method names to handlers.
type Table struct {
	deps     Deps
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewTable builds the provider method table.
func NewTable(deps Deps) *Table {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.WalletName == "" {
		deps.WalletName = "HAQQ Wallet"
	}

	t := &Table{deps: deps, logger: deps.Logger.Named("methods")}
	t.handlers = map[string]Handler{
		"eth_requestAccounts":        t.requestAccounts,
		"eth_accounts":               t.accounts,
		"eth_coinbase":               t.accounts,
		"metamask_getProviderState":  t.providerState,
		"eth_chainId":                t.chainID,
		"net_version":                t.netVersion,
		"wallet_switchEthereumChain": t.switchChain,
		"wallet_addEthereumChain":    t.addChain,
		"eth_hashrate":               constant("0x00"),
		"eth_mining":                 constant(false),
		"net_listening":              constant(true),
		"web3_clientVersion":         t.clientVersion,
	}
	for method, minParams := range passThrough {
		t.handlers[method] = t.forward(method, minParams)
	}
	for _, method := range signingMethods {
		t.handlers[method] = t.sign
	}
	return t
}

// Lookup returns the handler for method.
func (t *Table) Lookup(method string) (Handler, bool) {
	h, ok := t.handlers[method]
	return h, ok
}

// Methods lists the supported methods in order.
func (t *Table) Methods() []string {
	out := make([]string, 0, len(t.handlers))
	for m := range t.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Terminal is the middleware that answers requests from the table. It
// always continues the chain so observers pushed after it see the result.
func (t *Table) Terminal(h Helper) jsonrpc.Middleware {
	return func(ctx context.Context, req *jsonrpc.Request, res *jsonrpc.Response, next jsonrpc.Next) error {
		t.dispatch(ctx, req, res, h)
		return next(ctx)
	}
}

func (t *Table) dispatch(ctx context.Context, req *jsonrpc.Request, res *jsonrpc.Response, h Helper) {
	handler, ok := t.handlers[req.Method]
	if !ok {
		t.logger.Info("Method not implemented",
			zap.String("method", req.Method),
			zap.ByteString("params", req.Params))
		res.SetError(jsonrpc.ErrMethodNotImplemented)
		return
	}

	result, err := handler(ctx, req, h)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			res.SetError(rpcErr)
			return
		}
		t.logger.Error("Handler failed",
			zap.String("method", req.Method),
			zap.String("origin", h.Origin()),
			zap.Error(err))
		return
	}
	res.SetResult(result)

	if req.Method == "eth_requestAccounts" {
		if accounts, ok := result.([]string); ok {
			h.NotifyAccounts(ctx, append([]string(nil), accounts...))
		}
	}
}

func constant(v any) Handler {
	return func(context.Context, *jsonrpc.Request, Helper) (any, error) {
		return v, nil
	}
}

// preferredChain is the connected chain of an active session, else the
// wallet's selected chain.
func (t *Table) preferredChain(originKey string) wallet.Chain {
	if sess, ok := t.deps.Sessions.GetByOrigin(originKey); ok && sess.IsActive() && sess.SelectedChainIDHex != "" {
		if chain, err := t.deps.Wallet.Chains().GetHex(sess.SelectedChainIDHex); err == nil {
			return chain
		}
		t.logger.Warn("Session chain not in registry",
			zap.String("origin", originKey),
			zap.String("chain", sess.SelectedChainIDHex))
	}
	return t.deps.Wallet.SelectedChain()
}

func (t *Table) visibleAccounts() []string {
	accounts := t.deps.Wallet.VisibleAccounts()
	if accounts == nil {
		return []string{}
	}
	return accounts
}

func (t *Table) accounts(context.Context, *jsonrpc.Request, Helper) (any, error) {
	return t.visibleAccounts(), nil
}

// ProviderState is the metamask_getProviderState result.
type ProviderState struct {
	ChainID        string   `json:"chainId"`
	NetworkVersion string   `json:"networkVersion"`
	WalletName     string   `json:"walletName"`
	Accounts       []string `json:"accounts"`
	IsUnlocked     bool     `json:"isUnlocked"`
}

func (t *Table) providerState(_ context.Context, _ *jsonrpc.Request, h Helper) (any, error) {
	chain := t.preferredChain(h.Origin())
	return ProviderState{
		ChainID:        chain.IDHex(),
		NetworkVersion: chain.NetworkVersion(),
		WalletName:     t.deps.WalletName,
		Accounts:       t.visibleAccounts(),
		IsUnlocked:     t.deps.Wallet.IsUnlocked(),
	}, nil
}

func (t *Table) chainID(_ context.Context, _ *jsonrpc.Request, h Helper) (any, error) {
	return t.preferredChain(h.Origin()).IDHex(), nil
}

func (t *Table) netVersion(_ context.Context, _ *jsonrpc.Request, h Helper) (any, error) {
	return t.preferredChain(h.Origin()).NetworkVersion(), nil
}

func (t *Table) clientVersion(context.Context, *jsonrpc.Request, Helper) (any, error) {
	name := t.deps.WalletName
	if fields := strings.Fields(name); len(fields) > 0 {
		name = fields[0]
	}
	version := t.deps.WalletVersion
	if version == "" {
		version = "0.0.0"
	}
	return name + "/" + version + "/Wallet", nil
}
