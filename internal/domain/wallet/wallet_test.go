package wallet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0x52908400098527886E0F7030069857D2E4169EE7"
	addrB = "0x8617E340B3D01FA5F11F306F4090FD50E238070D"
)

func TestParseChainID(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0x1", 1, false},
		{"0X2BE3", 11235, false},
		{"11235", 11235, false},
		{" 0x38 ", 56, false},
		{"", 0, true},
		{"0xzz", 0, true},
		{"mainnet", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChainID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChainForms(t *testing.T) {
	c := Chain{ID: 11235, RPCURLs: []string{"https://a", "https://b"}}
	assert.Equal(t, "0x2be3", c.IDHex())
	assert.Equal(t, "11235", c.NetworkVersion())
	assert.Equal(t, "https://a", c.RPCURL())
	assert.Equal(t, "", Chain{}.RPCURL())

	norm, err := NormalizeChainID("0X2BE3")
	require.NoError(t, err)
	assert.Equal(t, "0x2be3", norm)
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()

	c, err := r.GetHex("0x2be3")
	require.NoError(t, err)
	assert.Equal(t, "HAQQ Mainnet", c.Name)

	_, err = r.GetHex("0x999999")
	assert.ErrorIs(t, err, ErrUnknownChain)

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, uint64(1), all[0].ID)
}

func TestLoadRegistryYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chains:
  - id: 1
    name: Ethereum
    currency: ETH
    rpc_urls: ["https://eth.example"]
  - id: 56
    name: BNB Smart Chain
    rpc_urls: ["https://bsc.example"]
`), 0o600))

	r, err := LoadRegistry(path)
	require.NoError(t, err)

	c, ok := r.Get(56)
	require.True(t, ok)
	assert.Equal(t, "BNB Smart Chain", c.Name)
	assert.Equal(t, "https://bsc.example", c.RPCURL())
}

func TestLoadRegistryTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[chains]]
id = 11235
name = "HAQQ Mainnet"
rpc_urls = ["https://rpc.example"]
`), 0o600))

	r, err := LoadRegistry(path)
	require.NoError(t, err)

	c, err := r.GetHex("0x2be3")
	require.NoError(t, err)
	assert.Equal(t, "HAQQ Mainnet", c.Name)
}

func TestLoadRegistryErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadRegistry(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "chains.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x"), 0o600))
	_, err = LoadRegistry(ini)
	assert.ErrorContains(t, err, "unsupported")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("chains: []\n"), 0o600))
	_, err = LoadRegistry(empty)
	assert.ErrorContains(t, err, "no chains")

	noID := filepath.Join(dir, "noid.toml")
	require.NoError(t, os.WriteFile(noID, []byte("[[chains]]\nname = \"x\"\n"), 0o600))
	_, err = LoadRegistry(noID)
	assert.ErrorContains(t, err, "no id")
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress(addrA)
	require.NoError(t, err)
	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", got)

	_, err = NormalizeAddress("0x1234")
	assert.Error(t, err)

	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", Checksum(got))
}

func TestWalletAccounts(t *testing.T) {
	w, err := New(DefaultRegistry(), "0x2be3", []string{addrA, addrB, addrA})
	require.NoError(t, err)

	accounts := w.VisibleAccounts()
	require.Len(t, accounts, 2)
	assert.True(t, w.HasAccount(addrB))

	accounts[0] = "mutated"
	assert.NotEqual(t, "mutated", w.VisibleAccounts()[0])

	w.RemoveAccount(addrB)
	assert.False(t, w.HasAccount(addrB))
	assert.Len(t, w.VisibleAccounts(), 1)

	_, err = New(DefaultRegistry(), "0x2be3", []string{"not-an-address"})
	assert.Error(t, err)
}

func TestWalletChainSelection(t *testing.T) {
	w, err := New(DefaultRegistry(), "0x2be3", nil)
	require.NoError(t, err)
	assert.Equal(t, "0x2be3", w.SelectedChain().IDHex())

	c, err := w.SelectChain("0x1")
	require.NoError(t, err)
	assert.Equal(t, "Ethereum Mainnet", c.Name)
	assert.Equal(t, uint64(1), w.SelectedChain().ID)

	_, err = w.SelectChain("0x777")
	assert.ErrorIs(t, err, ErrUnknownChain)

	_, err = New(DefaultRegistry(), "0x777", nil)
	assert.Error(t, err)
}

func TestWalletLock(t *testing.T) {
	w, err := New(DefaultRegistry(), "0x1", nil)
	require.NoError(t, err)
	assert.True(t, w.IsUnlocked())
	w.SetUnlocked(false)
	assert.False(t, w.IsUnlocked())
}
