// Package transfer moves assets in and out of custody without callers having
// to care whether the asset is native currency or a token.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vreid/wager/internal/pkg/asset"
	wcommon "github.com/vreid/wager/internal/pkg/common"
	"github.com/vreid/wager/internal/pkg/ledger"
)

// Pull collects Amount of Asset from From into To. Native value must arrive
// attached to the call; tokens are taken through Operator's allowance.
type Pull struct {
	Asset    asset.Asset
	Operator common.Address
	From     common.Address
	To       common.Address
	Amount   *uint256.Int
	Attached *uint256.Int
}

// Push pays Amount of Asset out of From's custody.
type Push struct {
	Asset  asset.Asset
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

type Adapter struct {
	ledger *ledger.Ledger
}

func New(l *ledger.Ledger) *Adapter {
	return &Adapter{ledger: l}
}

func (a *Adapter) Pull(ctx context.Context, p Pull) error {
	attached := p.Attached
	if attached == nil {
		attached = new(uint256.Int)
	}

	if p.Asset.IsNative() {
		if !attached.Eq(p.Amount) {
			return fmt.Errorf("%w: attached %s, required %s", wcommon.ErrPaymentMismatch, attached.Dec(), p.Amount.Dec())
		}

		err := a.ledger.TransferNative(ctx, p.From, p.To, p.Amount)
		if err != nil {
			return fmt.Errorf("failed to pull native: %w", err)
		}

		return nil
	}

	if !attached.IsZero() {
		return fmt.Errorf("%w: %s is a token, no value may be attached", wcommon.ErrPaymentMismatch, p.Asset)
	}

	err := a.ledger.TransferFrom(ctx, p.Asset.Token, p.Operator, p.From, p.To, p.Amount)
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", p.Asset, err)
	}

	return nil
}

// Push is issued only after the caller committed its own state changes. Any
// rejection surfaces as ErrTransferFailure.
func (a *Adapter) Push(ctx context.Context, p Push) error {
	var err error

	if p.Asset.IsNative() {
		err = a.ledger.TransferNative(ctx, p.From, p.To, p.Amount)
	} else {
		err = a.ledger.Transfer(ctx, p.Asset.Token, p.From, p.To, p.Amount)
	}

	if err == nil {
		return nil
	}

	if errors.Is(err, wcommon.ErrTransferFailure) {
		return fmt.Errorf("failed to push %s to %s: %w", p.Asset, p.To.Hex(), err)
	}

	return fmt.Errorf("%w: push %s to %s: %w", wcommon.ErrTransferFailure, p.Asset, p.To.Hex(), err)
}
