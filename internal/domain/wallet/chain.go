package wallet

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// ErrUnknownChain is returned when a chain id is not in the registry.
var ErrUnknownChain = errors.New("unknown chain")

// Chain is one network the wallet can connect a site to.
type Chain struct {
	ID       uint64   `json:"id" yaml:"id" toml:"id"`
	Name     string   `json:"name" yaml:"name" toml:"name"`
	Currency string   `json:"currency,omitempty" yaml:"currency" toml:"currency"`
	RPCURLs  []string `json:"rpc_urls,omitempty" yaml:"rpc_urls" toml:"rpc_urls"`
	Explorer string   `json:"explorer,omitempty" yaml:"explorer" toml:"explorer"`
}

// IDHex is the EIP-695 form returned by eth_chainId.
func (c Chain) IDHex() string {
	return hexutil.EncodeUint64(c.ID)
}

// NetworkVersion is the decimal form returned by net_version.
func (c Chain) NetworkVersion() string {
	return strconv.FormatUint(c.ID, 10)
}

// RPCURL returns the first configured endpoint, or "".
func (c Chain) RPCURL() string {
	if len(c.RPCURLs) == 0 {
		return ""
	}
	return c.RPCURLs[0]
}

// ParseChainID accepts "0x2be3", "0X2BE3" or "11235".
func ParseChainID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty chain id")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
		}
		return v, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	return v, nil
}

// NormalizeChainID returns the canonical lowercase hex form.
func NormalizeChainID(s string) (string, error) {
	v, err := ParseChainID(s)
	if err != nil {
		return "", err
	}
	return hexutil.EncodeUint64(v), nil
}

// Registry is the set of chains known to the wallet.
type Registry struct {
	chains map[uint64]Chain
}

type registryFile struct {
	Chains []Chain `yaml:"chains" toml:"chains"`
}

// NewRegistry builds a registry from chains; later duplicates win.
func NewRegistry(chains ...Chain) *Registry {
	r := &Registry{chains: make(map[uint64]Chain, len(chains))}
	for _, c := range chains {
		r.chains[c.ID] = c
	}
	return r
}

// DefaultRegistry covers the networks the wallet ships with.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Chain{ID: 11235, Name: "HAQQ Mainnet", Currency: "ISLM", RPCURLs: []string{"https://rpc.eth.haqq.network"}, Explorer: "https://explorer.haqq.network"},
		Chain{ID: 54211, Name: "HAQQ Testedge 2", Currency: "ISLMT", RPCURLs: []string{"https://rpc.eth.testedge2.haqq.network"}},
		Chain{ID: 1, Name: "Ethereum Mainnet", Currency: "ETH", RPCURLs: []string{"https://cloudflare-eth.com"}, Explorer: "https://etherscan.io"},
	)
}

// LoadRegistry reads a chain list from a YAML or TOML file, chosen by
// extension.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains file: %w", err)
	}

	var file registryFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&file)
	default:
		return nil, fmt.Errorf("unsupported chains file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse chains file: %w", err)
	}

	if len(file.Chains) == 0 {
		return nil, fmt.Errorf("chains file %s defines no chains", path)
	}
	for i, c := range file.Chains {
		if c.ID == 0 {
			return nil, fmt.Errorf("chain %d (%q) has no id", i, c.Name)
		}
	}
	return NewRegistry(file.Chains...), nil
}

// Get looks a chain up by id.
func (r *Registry) Get(id uint64) (Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// GetHex looks a chain up by any accepted id form.
func (r *Registry) GetHex(s string) (Chain, error) {
	id, err := ParseChainID(s)
	if err != nil {
		return Chain{}, err
	}
	c, ok := r.chains[id]
	if !ok {
		return Chain{}, fmt.Errorf("%s: %w", s, ErrUnknownChain)
	}
	return c, nil
}

// All returns every chain ordered by id.
func (r *Registry) All() []Chain {
	out := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
