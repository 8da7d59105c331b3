// Package factory opens matches. It collects the protocol fee, places the
// creator's stake in a fresh escrow account and keeps every creator's match
// history. The factory also fronts role administration and the fee table.
package factory

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vreid/wager/internal/pkg/access"
	"github.com/vreid/wager/internal/pkg/asset"
	"github.com/vreid/wager/internal/pkg/chain"
	wcommon "github.com/vreid/wager/internal/pkg/common"
	"github.com/vreid/wager/internal/pkg/escrow"
	"github.com/vreid/wager/internal/pkg/fees"
	"github.com/vreid/wager/internal/pkg/ledger"
	"github.com/vreid/wager/internal/pkg/transfer"
)

type Factory struct {
	rt       *chain.Runtime
	ledger   *ledger.Ledger
	transfer *transfer.Adapter
	roles    *access.Registry
	fees     *fees.Registry

	address common.Address

	initialized bool
	feeReceiver common.Address
	version     string

	matches map[common.Address]*escrow.Escrow
	records map[common.Address][]MatchRecord
	count   int
}

// Deploy places an uninitialized factory at the next address of deployer.
func Deploy(ctx context.Context, l *ledger.Ledger, deployer common.Address) (*Factory, error) {
	var f *Factory

	rt := l.Runtime()

	err := rt.Execute(ctx, func(ctx context.Context) error {
		addr := l.Deploy(ctx, deployer)
		roles := access.New(rt, addr)

		f = &Factory{
			rt:       rt,
			ledger:   l,
			transfer: transfer.New(l),
			roles:    roles,
			fees:     fees.New(rt, roles, addr),
			address:  addr,
			matches:  map[common.Address]*escrow.Escrow{},
			records:  map[common.Address][]MatchRecord{},
		}

		chain.Emit(ctx, chain.Event{
			Name:       "FactoryDeployed",
			Emitter:    addr,
			Attributes: map[string]string{"deployer": deployer.Hex()},
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deploy factory: %w", err)
	}

	return f, nil
}

// Initialize binds the fee receiver and hands every role to deployer. It
// succeeds exactly once.
func (f *Factory) Initialize(ctx context.Context, deployer, feeReceiver common.Address) error {
	return f.rt.Execute(ctx, func(ctx context.Context) error {
		if f.initialized {
			return wcommon.ErrAlreadyInitialized
		}

		if feeReceiver == (common.Address{}) {
			return fmt.Errorf("%w: fee receiver must not be zero", wcommon.ErrInvalidArgument)
		}

		chain.Set(ctx, &f.initialized, true)
		chain.Set(ctx, &f.feeReceiver, feeReceiver)

		err := f.roles.Initialize(ctx, deployer)
		if err != nil {
			return fmt.Errorf("failed to initialize roles: %w", err)
		}

		chain.Emit(ctx, chain.Event{
			Name:    "Initialized",
			Emitter: f.address,
			Attributes: map[string]string{
				"deployer":     deployer.Hex(),
				"fee_receiver": feeReceiver.Hex(),
			},
		})

		return nil
	})
}

func (f *Factory) UpdateFeeToken(ctx context.Context, caller common.Address, a asset.Asset, enabled bool, fee *uint256.Int) error {
	return f.fees.UpdateFeeToken(ctx, caller, a, enabled, fee)
}

// NewMatch opens a match for caller. The native value attached to the call
// must cover exactly the native parts of fee and bet; token parts are taken
// through allowances granted to the factory.
//
//nolint:funlen
func (f *Factory) NewMatch(
	ctx context.Context,
	caller common.Address,
	feeAsset, betAsset asset.Asset,
	betAmount, attached *uint256.Int,
) (common.Address, error) {
	var handle common.Address

	err := f.rt.Execute(ctx, func(ctx context.Context) error {
		if !f.initialized {
			return wcommon.ErrNotInitialized
		}

		if betAmount == nil {
			betAmount = new(uint256.Int)
		}

		if attached == nil {
			attached = new(uint256.Int)
		}

		fee, err := f.fees.FeeOf(feeAsset)
		if err != nil {
			return err
		}

		feeValue, betValue := nativePortion(feeAsset, fee), nativePortion(betAsset, betAmount)

		required, overflow := new(uint256.Int).AddOverflow(feeValue, betValue)
		if overflow {
			return wcommon.ErrOverflow
		}

		if !attached.Eq(required) {
			return fmt.Errorf("%w: attached %s, native portion is %s", wcommon.ErrPaymentMismatch, attached.Dec(), required.Dec())
		}

		err = f.transfer.Pull(ctx, transfer.Pull{
			Asset:    feeAsset,
			Operator: f.address,
			From:     caller,
			To:       f.feeReceiver,
			Amount:   fee,
			Attached: feeValue,
		})
		if err != nil {
			return fmt.Errorf("failed to collect fee: %w", err)
		}

		handle = f.ledger.Deploy(ctx, f.address)

		err = f.transfer.Pull(ctx, transfer.Pull{
			Asset:    betAsset,
			Operator: f.address,
			From:     caller,
			To:       handle,
			Amount:   betAmount,
			Attached: betValue,
		})
		if err != nil {
			return fmt.Errorf("failed to collect bet: %w", err)
		}

		chain.Put(ctx, f.matches, handle, escrow.New(f.rt, f.transfer, escrow.Params{
			Address:   handle,
			Creator:   caller,
			BetAsset:  betAsset,
			BetAmount: betAmount,
		}))

		records := f.records[caller]
		chain.Put(ctx, f.records, caller, append(records[:len(records):len(records)], MatchRecord{
			Creator: caller,
			Escrow:  handle,
		}))
		chain.Set(ctx, &f.count, f.count+1)

		chain.Emit(ctx, chain.Event{
			Name:    "MatchCreated",
			Emitter: f.address,
			Attributes: map[string]string{
				"creator":    caller.Hex(),
				"escrow":     handle.Hex(),
				"fee_asset":  feeAsset.String(),
				"fee":        fee.Dec(),
				"bet_asset":  betAsset.String(),
				"bet_amount": betAmount.Dec(),
			},
		})

		return nil
	})
	if err != nil {
		return common.Address{}, err
	}

	return handle, nil
}

func nativePortion(a asset.Asset, amount *uint256.Int) *uint256.Int {
	if a.IsNative() {
		return amount.Clone()
	}

	return new(uint256.Int)
}

// MatchOf returns the index-th escrow user created, oldest first.
func (f *Factory) MatchOf(user common.Address, index int) (common.Address, error) {
	records := f.records[user]
	if index < 0 || index >= len(records) {
		return common.Address{}, fmt.Errorf("%w: %s has no match %d", wcommon.ErrNotFound, user.Hex(), index)
	}

	return records[index].Escrow, nil
}

func (f *Factory) MatchCount(user common.Address) int {
	return len(f.records[user])
}

func (f *Factory) Records(user common.Address) []MatchRecord {
	return append([]MatchRecord(nil), f.records[user]...)
}

func (f *Factory) Match(handle common.Address) (*escrow.Escrow, error) {
	e, ok := f.matches[handle]
	if !ok {
		return nil, fmt.Errorf("%w: match %s", wcommon.ErrNotFound, handle.Hex())
	}

	return e, nil
}

func (f *Factory) FeeReceiver() common.Address {
	return f.feeReceiver
}

func (f *Factory) UpdateFeeReceiver(ctx context.Context, caller, feeReceiver common.Address) error {
	return f.rt.Execute(ctx, func(ctx context.Context) error {
		err := f.roles.CheckRole(caller, access.AdminRole)
		if err != nil {
			return err
		}

		if feeReceiver == (common.Address{}) {
			return fmt.Errorf("%w: fee receiver must not be zero", wcommon.ErrInvalidArgument)
		}

		chain.Set(ctx, &f.feeReceiver, feeReceiver)
		chain.Emit(ctx, chain.Event{
			Name:    "FeeReceiverUpdated",
			Emitter: f.address,
			Attributes: map[string]string{
				"fee_receiver": feeReceiver.Hex(),
				"sender":       caller.Hex(),
			},
		})

		return nil
	})
}

// AuthorizeUpgrade records a new implementation version. Only Upgrader may
// authorize one; the running code does not change.
func (f *Factory) AuthorizeUpgrade(ctx context.Context, caller common.Address, version string) error {
	return f.rt.Execute(ctx, func(ctx context.Context) error {
		err := f.roles.CheckRole(caller, access.UpgraderRole)
		if err != nil {
			return err
		}

		if version == "" {
			return fmt.Errorf("%w: version is empty", wcommon.ErrInvalidArgument)
		}

		chain.Set(ctx, &f.version, version)
		chain.Emit(ctx, chain.Event{
			Name:    "Upgraded",
			Emitter: f.address,
			Attributes: map[string]string{
				"version": version,
				"sender":  caller.Hex(),
			},
		})

		return nil
	})
}

func (f *Factory) Version() string {
	return f.version
}

func (f *Factory) GrantRole(ctx context.Context, caller common.Address, role access.Role, account common.Address) error {
	return f.roles.GrantRole(ctx, caller, role, account)
}

func (f *Factory) RevokeRole(ctx context.Context, caller common.Address, role access.Role, account common.Address) error {
	return f.roles.RevokeRole(ctx, caller, role, account)
}

func (f *Factory) RenounceRole(ctx context.Context, caller common.Address, role access.Role, account common.Address) error {
	return f.roles.RenounceRole(ctx, caller, role, account)
}

func (f *Factory) HasRole(role access.Role, account common.Address) bool {
	return f.roles.HasRole(role, account)
}

func (f *Factory) AdminOf(role access.Role) access.Role {
	return f.roles.AdminOf(role)
}

func (f *Factory) FeeTokens() []fees.Entry {
	return f.fees.Entries()
}

func (f *Factory) Address() common.Address {
	return f.address
}

func (f *Factory) Ledger() *ledger.Ledger {
	return f.ledger
}

func (f *Factory) Info() Info {
	return Info{
		Address:     f.address,
		Initialized: f.initialized,
		FeeReceiver: f.feeReceiver,
		Version:     f.version,
		Matches:     f.count,
	}
}
