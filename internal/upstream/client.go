package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	"github.com/GriffinCanCode/dappbridge/internal/shared/httpclient"
)

// ErrNoEndpoint is returned for chains without an RPC URL.
var ErrNoEndpoint = errors.New("chain has no rpc endpoint")

// Caller forwards read-only calls to a chain node.
type Caller interface {
	Call(ctx context.Context, chain wallet.Chain, method string, params json.RawMessage) (json.RawMessage, error)
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("node error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	ID      uint64          `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client is a Caller over HTTP with one breaker per chain.
type Client struct {
	opts   httpclient.Options
	nextID atomic.Uint64

	mu      sync.Mutex
	clients map[uint64]*httpclient.Client

	logger *zap.Logger
}

// NewClient creates a client; opts.Name is used as a prefix for breaker
// names.
func NewClient(opts httpclient.Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Logger = logger
	return &Client{
		opts:    opts,
		clients: make(map[uint64]*httpclient.Client),
		logger:  logger.Named("upstream"),
	}
}

func (c *Client) forChain(chain wallet.Chain) *httpclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clients[chain.ID]; ok {
		return hc
	}
	opts := c.opts
	opts.Name = c.opts.Name + "-" + strconv.FormatUint(chain.ID, 10)
	hc := httpclient.New(opts)
	c.clients[chain.ID] = hc
	return hc
}

// Call sends method with params to the chain's first RPC URL.
func (c *Client) Call(ctx context.Context, chain wallet.Chain, method string, params json.RawMessage) (json.RawMessage, error) {
	endpoint := chain.RPCURL()
	if endpoint == "" {
		return nil, fmt.Errorf("%s: %w", chain.Name, ErrNoEndpoint)
	}
	if len(params) == 0 {
		params = json.RawMessage("[]")
	}

	body := rpcRequest{ID: c.nextID.Add(1), JSONRPC: "2.0", Method: method, Params: params}
	resp, err := c.forChain(chain).Do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(endpoint)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("failed to call %s: status %d", method, resp.StatusCode())
	}

	var out rpcResponse
	if err := sonic.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if out.Error != nil {
		return nil, out.Error
	}
	if len(out.Result) == 0 {
		return json.RawMessage("null"), nil
	}

	c.logger.Debug("Upstream call",
		zap.String("chain", chain.IDHex()),
		zap.String("method", method))
	return out.Result, nil
}
