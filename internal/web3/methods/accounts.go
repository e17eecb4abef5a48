package methods

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/domain/origin"
	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	"github.com/GriffinCanCode/dappbridge/internal/web3/jsonrpc"
)

var (
	errSelectionFailed  = jsonrpc.ServerError("Account selection failed")
	errInvalidSelection = jsonrpc.ServerError("Invalid account selected")
)

// requestAccounts connects the calling origin to one wallet account.
//
//	no session                 -> pick, create           -> [account]
//	account, connected         -> touch OnlineAt         -> [account]
//	no account, disconnected   -> pick, reconnect        -> [account]
//	account, disconnected      -> disconnect tab, clear  -> []  (next call picks)
//	no account, connected      -> nothing                -> []
func (t *Table) requestAccounts(ctx context.Context, _ *jsonrpc.Request, h Helper) (any, error) {
	originKey := h.Origin()
	sess, ok := t.deps.Sessions.GetByOrigin(originKey)

	switch {
	case !ok:
		account, err := t.pick(ctx, originKey)
		if err != nil || account == "" {
			return []string{}, err
		}
		if _, err := t.deps.Sessions.Create(ctx, originKey, origin.Fields{
			SelectedAccount:    account,
			SelectedChainIDHex: t.deps.Wallet.SelectedChain().IDHex(),
		}); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		t.logger.Info("Origin connected", zap.String("origin", originKey), zap.String("account", account))
		return []string{account}, nil

	case sess.SelectedAccount != "" && !sess.Disconnected:
		now := t.deps.Now()
		if _, err := t.deps.Sessions.Update(ctx, originKey, origin.Patch{OnlineAt: &now}); err != nil {
			return nil, fmt.Errorf("failed to touch session: %w", err)
		}
		return []string{sess.SelectedAccount}, nil

	case sess.SelectedAccount == "" && sess.Disconnected:
		account, err := t.pick(ctx, originKey)
		if err != nil || account == "" {
			return []string{}, err
		}
		chain := t.deps.Wallet.SelectedChain().IDHex()
		now := t.deps.Now()
		if _, err := t.deps.Sessions.Update(ctx, originKey, origin.Patch{
			SelectedAccount:    &account,
			SelectedChainIDHex: &chain,
			Disconnected:       origin.Ptr(false),
			OnlineAt:           &now,
		}); err != nil {
			return nil, fmt.Errorf("failed to reconnect session: %w", err)
		}
		t.logger.Info("Origin reconnected", zap.String("origin", originKey), zap.String("account", account))
		return []string{account}, nil

	case sess.SelectedAccount != "" && sess.Disconnected:
		if err := h.DisconnectAccount(ctx); err != nil {
			t.logger.Warn("Tab disconnect failed", zap.String("origin", originKey), zap.Error(err))
		}
		if _, err := t.deps.Sessions.Update(ctx, originKey, origin.Patch{
			SelectedAccount:    origin.Ptr(""),
			SelectedChainIDHex: origin.Ptr(""),
			Disconnected:       origin.Ptr(true),
		}); err != nil {
			return nil, fmt.Errorf("failed to clear session: %w", err)
		}
		return []string{}, nil

	default:
		t.logger.Warn("Unexpected session state for eth_requestAccounts",
			zap.String("origin", originKey),
			zap.Bool("disconnected", sess.Disconnected))
		return []string{}, nil
	}
}

// pick asks the user for an account. A dismissed picker is an empty
// answer, not an error.
func (t *Table) pick(ctx context.Context, originKey string) (string, error) {
	if t.deps.Picker == nil {
		return "", jsonrpc.ServerError("Account selection unavailable")
	}

	account, err := t.deps.Picker.SelectAccount(ctx, originKey, t.visibleAccounts())
	switch {
	case err == nil:
	case errors.Is(err, wallet.ErrSelectionCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		t.logger.Debug("Account selection cancelled", zap.String("origin", originKey))
		return "", nil
	default:
		t.logger.Warn("Account selection failed", zap.String("origin", originKey), zap.Error(err))
		return "", errSelectionFailed
	}

	if account == "" {
		return "", nil
	}
	norm, err := wallet.NormalizeAddress(account)
	if err != nil {
		t.logger.Warn("Picker returned an invalid address", zap.String("origin", originKey), zap.Error(err))
		return "", errInvalidSelection
	}
	return norm, nil
}
