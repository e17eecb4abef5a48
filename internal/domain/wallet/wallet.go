package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrSelectionCancelled means the user dismissed the account picker.
// The provider turns it into an empty account list, never an error.
var ErrSelectionCancelled = errors.New("account selection cancelled")

// State is the read side of the wallet that provider methods consult.
type State interface {
	VisibleAccounts() []string
	SelectedChain() Chain
	Chains() *Registry
	IsUnlocked() bool
}

// AccountPicker asks the user which account to expose to origin. It blocks
// until the user answers or ctx ends.
type AccountPicker interface {
	SelectAccount(ctx context.Context, origin string, accounts []string) (string, error)
}

// NormalizeAddress validates a hex address and returns it lowercased, the
// form dApps compare against.
func NormalizeAddress(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return strings.ToLower(common.HexToAddress(s).Hex()), nil
}

// Checksum returns the EIP-55 mixed-case form of a valid address.
func Checksum(s string) string {
	return common.HexToAddress(s).Hex()
}

// Wallet is an in-process State backed by a fixed account list. The server
// uses it when no external wallet service is attached.
type Wallet struct {
	registry *Registry

	mu       sync.RWMutex
	accounts []string
	selected Chain
	unlocked bool
}

// New creates a wallet over accounts on the chain selected by chainID.
func New(registry *Registry, chainID string, accounts []string) (*Wallet, error) {
	chain, err := registry.GetHex(chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to select default chain: %w", err)
	}

	w := &Wallet{registry: registry, selected: chain, unlocked: true}
	for _, a := range accounts {
		if err := w.AddAccount(a); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// AddAccount makes an address visible; duplicates are ignored.
func (w *Wallet) AddAccount(addr string) error {
	norm, err := NormalizeAddress(addr)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range w.accounts {
		if a == norm {
			return nil
		}
	}
	w.accounts = append(w.accounts, norm)
	return nil
}

// RemoveAccount hides an address.
func (w *Wallet) RemoveAccount(addr string) {
	norm := strings.ToLower(addr)

	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.accounts[:0]
	for _, a := range w.accounts {
		if a != norm {
			kept = append(kept, a)
		}
	}
	w.accounts = kept
}

// HasAccount reports whether addr is currently visible.
func (w *Wallet) HasAccount(addr string) bool {
	norm := strings.ToLower(addr)

	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, a := range w.accounts {
		if a == norm {
			return true
		}
	}
	return false
}

// VisibleAccounts returns a copy of the account list.
func (w *Wallet) VisibleAccounts() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.accounts...)
}

// SelectedChain returns the wallet-wide default chain.
func (w *Wallet) SelectedChain() Chain {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.selected
}

// SelectChain switches the wallet-wide default chain.
func (w *Wallet) SelectChain(chainID string) (Chain, error) {
	chain, err := w.registry.GetHex(chainID)
	if err != nil {
		return Chain{}, err
	}
	w.mu.Lock()
	w.selected = chain
	w.mu.Unlock()
	return chain, nil
}

// Chains exposes the registry.
func (w *Wallet) Chains() *Registry {
	return w.registry
}

// IsUnlocked reports the lock state.
func (w *Wallet) IsUnlocked() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.unlocked
}

// SetUnlocked changes the lock state.
func (w *Wallet) SetUnlocked(v bool) {
	w.mu.Lock()
	w.unlocked = v
	w.mu.Unlock()
}
