// Package ledger holds account state: native balances, fungible tokens with
// balances and allowances, and per-account deployment nonces.
package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/vreid/wager/internal/pkg/asset"
	"github.com/vreid/wager/internal/pkg/chain"
	wcommon "github.com/vreid/wager/internal/pkg/common"
)

type Ledger struct {
	rt *chain.Runtime

	native map[common.Address]*uint256.Int
	nonces map[common.Address]uint64
	tokens map[common.Address]*token
}

func New(rt *chain.Runtime) *Ledger {
	return &Ledger{
		rt:     rt,
		native: map[common.Address]*uint256.Int{},
		nonces: map[common.Address]uint64{},
		tokens: map[common.Address]*token{},
	}
}

func (l *Ledger) Runtime() *chain.Runtime {
	return l.rt
}

// Deploy reserves a fresh account address derived from deployer and its nonce.
func (l *Ledger) Deploy(ctx context.Context, deployer common.Address) common.Address {
	nonce := l.nonces[deployer]
	chain.Put(ctx, l.nonces, deployer, nonce+1)

	return crypto.CreateAddress(deployer, nonce)
}

func (l *Ledger) DeployToken(ctx context.Context, deployer common.Address, symbol string, decimals uint8) (common.Address, error) {
	var addr common.Address

	err := l.rt.Execute(ctx, func(ctx context.Context) error {
		if symbol == "" {
			return fmt.Errorf("%w: token symbol is empty", wcommon.ErrInvalidArgument)
		}

		addr = l.Deploy(ctx, deployer)
		chain.Put(ctx, l.tokens, addr, &token{
			owner:      deployer,
			symbol:     symbol,
			decimals:   decimals,
			supply:     new(uint256.Int),
			balances:   map[common.Address]*uint256.Int{},
			allowances: map[allowanceKey]*uint256.Int{},
		})

		chain.Emit(ctx, chain.Event{
			Name:    "TokenDeployed",
			Emitter: addr,
			Attributes: map[string]string{
				"deployer": deployer.Hex(),
				"symbol":   symbol,
				"decimals": fmt.Sprint(decimals),
			},
		})

		return nil
	})

	return addr, err
}

// SetHook installs a transfer hook on a token; nil removes it.
func (l *Ledger) SetHook(addr common.Address, hook TransferHook) error {
	t, err := l.token(addr)
	if err != nil {
		return err
	}

	t.hook = hook

	return nil
}

// Faucet credits native currency out of thin air. Genesis and dev use only.
func (l *Ledger) Faucet(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return l.rt.Execute(ctx, func(ctx context.Context) error {
		balance, err := add(l.NativeBalance(to), amount)
		if err != nil {
			return err
		}

		chain.Put(ctx, l.native, to, balance)
		chain.Emit(ctx, chain.Event{
			Name:       "Faucet",
			Attributes: map[string]string{"to": to.Hex(), "amount": amount.Dec()},
		})

		return nil
	})
}

// Mint creates new supply; only the token's deployer may mint.
func (l *Ledger) Mint(ctx context.Context, addr common.Address, minter, to common.Address, amount *uint256.Int) error {
	return l.rt.Execute(ctx, func(ctx context.Context) error {
		t, err := l.token(addr)
		if err != nil {
			return err
		}

		if minter != t.owner {
			return fmt.Errorf("%w: %s is not the minter of %s", wcommon.ErrUnauthorized, minter.Hex(), t.symbol)
		}

		supply, err := add(t.supply, amount)
		if err != nil {
			return err
		}

		balance, err := add(t.balanceOf(to), amount)
		if err != nil {
			return err
		}

		chain.Set(ctx, &t.supply, supply)
		chain.Put(ctx, t.balances, to, balance)
		chain.Emit(ctx, transferEvent(addr, common.Address{}, to, amount))

		return nil
	})
}

func (l *Ledger) Approve(ctx context.Context, addr common.Address, owner, spender common.Address, amount *uint256.Int) error {
	return l.rt.Execute(ctx, func(ctx context.Context) error {
		t, err := l.token(addr)
		if err != nil {
			return err
		}

		chain.Put(ctx, t.allowances, allowanceKey{owner, spender}, amount.Clone())
		chain.Emit(ctx, chain.Event{
			Name:    "Approval",
			Emitter: addr,
			Attributes: map[string]string{
				"owner":   owner.Hex(),
				"spender": spender.Hex(),
				"amount":  amount.Dec(),
			},
		})

		return nil
	})
}

func (l *Ledger) TransferNative(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	return l.rt.Execute(ctx, func(ctx context.Context) error {
		err := move(ctx, l.native, from, to, amount)
		if err != nil {
			return fmt.Errorf("native transfer from %s: %w", from.Hex(), err)
		}

		chain.Emit(ctx, transferEvent(common.Address{}, from, to, amount))

		return nil
	})
}

// Transfer moves tokens owned by from.
func (l *Ledger) Transfer(ctx context.Context, addr common.Address, from, to common.Address, amount *uint256.Int) error {
	return l.rt.Execute(ctx, func(ctx context.Context) error {
		t, err := l.token(addr)
		if err != nil {
			return err
		}

		return l.transfer(ctx, addr, t, from, to, amount)
	})
}

// TransferFrom moves tokens on behalf of from, spending spender's allowance.
func (l *Ledger) TransferFrom(ctx context.Context, addr common.Address, spender, from, to common.Address, amount *uint256.Int) error {
	return l.rt.Execute(ctx, func(ctx context.Context) error {
		t, err := l.token(addr)
		if err != nil {
			return err
		}

		key := allowanceKey{owner: from, spender: spender}

		allowance := t.allowanceOf(from, spender)
		if allowance.Lt(amount) {
			return fmt.Errorf("%w: %s allows %s to spend %s of %s, need %s",
				wcommon.ErrInsufficientAllowance, from.Hex(), spender.Hex(), allowance.Dec(), t.symbol, amount.Dec())
		}

		if !allowance.Eq(maxAllowance) {
			chain.Put(ctx, t.allowances, key, new(uint256.Int).Sub(allowance, amount))
		}

		return l.transfer(ctx, addr, t, from, to, amount)
	})
}

func (l *Ledger) transfer(ctx context.Context, addr common.Address, t *token, from, to common.Address, amount *uint256.Int) error {
	err := move(ctx, t.balances, from, to, amount)
	if err != nil {
		return fmt.Errorf("%s transfer from %s: %w", t.symbol, from.Hex(), err)
	}

	chain.Emit(ctx, transferEvent(addr, from, to, amount))

	if t.hook != nil {
		err = t.hook(ctx, from, to, amount)
		if err != nil {
			return fmt.Errorf("%w: %s rejected transfer: %w", wcommon.ErrTransferFailure, t.symbol, err)
		}
	}

	return nil
}

func (l *Ledger) NativeBalance(who common.Address) *uint256.Int {
	if v, ok := l.native[who]; ok {
		return v.Clone()
	}

	return new(uint256.Int)
}

func (l *Ledger) TokenBalance(addr common.Address, who common.Address) *uint256.Int {
	t, ok := l.tokens[addr]
	if !ok {
		return new(uint256.Int)
	}

	return t.balanceOf(who).Clone()
}

// Balance dispatches on the asset kind.
func (l *Ledger) Balance(a asset.Asset, who common.Address) *uint256.Int {
	if a.IsNative() {
		return l.NativeBalance(who)
	}

	return l.TokenBalance(a.Token, who)
}

func (l *Ledger) Allowance(addr common.Address, owner, spender common.Address) *uint256.Int {
	t, ok := l.tokens[addr]
	if !ok {
		return new(uint256.Int)
	}

	return t.allowanceOf(owner, spender).Clone()
}

func (l *Ledger) TokenInfo(addr common.Address) (TokenInfo, error) {
	t, err := l.token(addr)
	if err != nil {
		return TokenInfo{}, err
	}

	return TokenInfo{
		Address:  addr,
		Owner:    t.owner,
		Symbol:   t.symbol,
		Decimals: t.decimals,
		Supply:   t.supply.Dec(),
	}, nil
}

// Decimals reports the unit scale of an asset.
func (l *Ledger) Decimals(a asset.Asset) (uint8, error) {
	if a.IsNative() {
		return asset.NativeDecimals, nil
	}

	t, err := l.token(a.Token)
	if err != nil {
		return 0, err
	}

	return t.decimals, nil
}

func (l *Ledger) token(addr common.Address) (*token, error) {
	t, ok := l.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", wcommon.ErrNotFound, addr.Hex())
	}

	return t, nil
}

var maxAllowance = new(uint256.Int).SetAllOne()

func (t *token) balanceOf(who common.Address) *uint256.Int {
	if v, ok := t.balances[who]; ok {
		return v
	}

	return new(uint256.Int)
}

func (t *token) allowanceOf(owner, spender common.Address) *uint256.Int {
	if v, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return v
	}

	return new(uint256.Int)
}

// move debits from and credits to in balances. Values are replaced, never
// mutated in place, so journal entries keep the previous pointers intact.
func move(ctx context.Context, balances map[common.Address]*uint256.Int, from, to common.Address, amount *uint256.Int) error {
	fromBalance := balances[from]
	if fromBalance == nil {
		fromBalance = new(uint256.Int)
	}

	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", wcommon.ErrInsufficientBalance, fromBalance.Dec(), amount.Dec())
	}

	chain.Put(ctx, balances, from, new(uint256.Int).Sub(fromBalance, amount))

	toBalance := balances[to]
	if toBalance == nil {
		toBalance = new(uint256.Int)
	}

	credited, err := add(toBalance, amount)
	if err != nil {
		return err
	}

	chain.Put(ctx, balances, to, credited)

	return nil
}

func add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, wcommon.ErrOverflow
	}

	return sum, nil
}

func transferEvent(emitter, from, to common.Address, amount *uint256.Int) chain.Event {
	return chain.Event{
		Name:    "Transfer",
		Emitter: emitter,
		Attributes: map[string]string{
			"from":   from.Hex(),
			"to":     to.Hex(),
			"amount": amount.Dec(),
		},
	}
}
