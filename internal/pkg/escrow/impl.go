// Package escrow holds the stake of one two-party match and settles it
// through the step protocol.
//
// A match is Open until a counterparty joins, Active while both sides play,
// and Settled once a side submits TerminalMove. Rounds start at 1. In each
// round every participant submits once; a submission must name the current
// round as its progress and may repeat or advance its own previous move by
// one. The round advances when both sides have submitted.
package escrow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vreid/wager/internal/pkg/asset"
	"github.com/vreid/wager/internal/pkg/chain"
	wcommon "github.com/vreid/wager/internal/pkg/common"
	"github.com/vreid/wager/internal/pkg/transfer"
)

type Escrow struct {
	rt       *chain.Runtime
	transfer *transfer.Adapter

	address   common.Address
	creator   common.Address
	betAsset  asset.Asset
	betAmount *uint256.Int

	counterparty common.Address
	pot          *uint256.Int
	round        uint64
	isActive     bool
	winner       Side
	status       Status

	creatorHistory      []Submission
	counterpartyHistory []Submission
}

func New(rt *chain.Runtime, t *transfer.Adapter, p Params) *Escrow {
	bet := p.BetAmount
	if bet == nil {
		bet = new(uint256.Int)
	}

	return &Escrow{
		rt:        rt,
		transfer:  t,
		address:   p.Address,
		creator:   p.Creator,
		betAsset:  p.BetAsset,
		betAmount: bet.Clone(),
		pot:       bet.Clone(),
		round:     1,
		isActive:  true,
		status:    StatusOpen,
	}
}

// Join binds caller as the counterparty and collects the matching stake,
// with the escrow itself as the token operator.
func (e *Escrow) Join(ctx context.Context, caller common.Address, attached *uint256.Int) error {
	return e.rt.Execute(ctx, func(ctx context.Context) error {
		if e.status != StatusOpen {
			return fmt.Errorf("%w: cannot join a match that is %s", wcommon.ErrInvalidState, e.status)
		}

		if caller == e.creator {
			return fmt.Errorf("%w: creator cannot join own match", wcommon.ErrUnauthorized)
		}

		pot, overflow := new(uint256.Int).AddOverflow(e.pot, e.betAmount)
		if overflow {
			return wcommon.ErrOverflow
		}

		chain.Set(ctx, &e.counterparty, caller)
		chain.Set(ctx, &e.pot, pot)
		chain.Set(ctx, &e.status, StatusActive)

		chain.Emit(ctx, chain.Event{
			Name:    "MatchJoined",
			Emitter: e.address,
			Attributes: map[string]string{
				"counterparty": caller.Hex(),
				"pot":          pot.Dec(),
			},
		})

		err := e.transfer.Pull(ctx, transfer.Pull{
			Asset:    e.betAsset,
			Operator: e.address,
			From:     caller,
			To:       e.address,
			Amount:   e.betAmount,
			Attached: attached,
		})
		if err != nil {
			return fmt.Errorf("failed to collect stake: %w", err)
		}

		return nil
	})
}

// Step records one submission of caller. A move of TerminalMove or more
// settles the match in caller's favour; the pot is paid only after the
// escrow's own state is final.
//
//nolint:cyclop,funlen
func (e *Escrow) Step(ctx context.Context, caller common.Address, progress, move uint64) error {
	return e.rt.Execute(ctx, func(ctx context.Context) error {
		if e.status != StatusActive {
			return fmt.Errorf("%w: cannot step a match that is %s", wcommon.ErrInvalidState, e.status)
		}

		side := e.sideOf(caller)
		if side == SideNone {
			return fmt.Errorf("%w: %s is not a participant", wcommon.ErrUnauthorized, caller.Hex())
		}

		if progress != e.round {
			return fmt.Errorf("%w: progress %d, current round is %d", wcommon.ErrInvalidStep, progress, e.round)
		}

		history := e.historyPtr(side)

		var previous uint64

		if n := len(*history); n > 0 {
			last := (*history)[n-1]
			if last.Round == e.round {
				return fmt.Errorf("%w: %s already submitted for round %d", wcommon.ErrInvalidStep, side, e.round)
			}

			previous = last.Move
		}

		if move != previous && move != previous+1 {
			return fmt.Errorf("%w: move %d does not follow %d", wcommon.ErrInvalidStep, move, previous)
		}

		submission := Submission{Round: e.round, Progress: progress, Move: move}
		chain.Set(ctx, history, append((*history)[:len(*history):len(*history)], submission))

		chain.Emit(ctx, chain.Event{
			Name:    "StepRecorded",
			Emitter: e.address,
			Attributes: map[string]string{
				"participant": caller.Hex(),
				"side":        side.String(),
				"round":       strconv.FormatUint(e.round, 10),
				"progress":    strconv.FormatUint(progress, 10),
				"move":        strconv.FormatUint(move, 10),
			},
		})

		if move >= TerminalMove {
			return e.settle(ctx, side, caller)
		}

		if e.submitted(SideCreator) && e.submitted(SideCounterparty) {
			chain.Set(ctx, &e.round, e.round+1)
		}

		return nil
	})
}

func (e *Escrow) settle(ctx context.Context, winner Side, account common.Address) error {
	payout := e.pot

	chain.Set(ctx, &e.winner, winner)
	chain.Set(ctx, &e.isActive, false)
	chain.Set(ctx, &e.status, StatusSettled)
	chain.Set(ctx, &e.pot, new(uint256.Int))

	chain.Emit(ctx, chain.Event{
		Name:    "MatchSettled",
		Emitter: e.address,
		Attributes: map[string]string{
			"winner":  winner.String(),
			"account": account.Hex(),
			"payout":  payout.Dec(),
		},
	})

	err := e.transfer.Push(ctx, transfer.Push{
		Asset:  e.betAsset,
		From:   e.address,
		To:     account,
		Amount: payout,
	})
	if err != nil {
		return fmt.Errorf("failed to pay out: %w", err)
	}

	return nil
}

func (e *Escrow) sideOf(account common.Address) Side {
	switch {
	case account == e.creator:
		return SideCreator
	case e.status != StatusOpen && account == e.counterparty:
		return SideCounterparty
	default:
		return SideNone
	}
}

func (e *Escrow) historyPtr(side Side) *[]Submission {
	if side == SideCreator {
		return &e.creatorHistory
	}

	return &e.counterpartyHistory
}

func (e *Escrow) submitted(side Side) bool {
	history := *e.historyPtr(side)

	return len(history) > 0 && history[len(history)-1].Round == e.round
}

func (e *Escrow) Address() common.Address {
	return e.address
}

func (e *Escrow) Creator() common.Address {
	return e.creator
}

// Counterparty is absent (false) until the match was joined.
func (e *Escrow) Counterparty() (common.Address, bool) {
	if e.status == StatusOpen {
		return common.Address{}, false
	}

	return e.counterparty, true
}

func (e *Escrow) BetAsset() asset.Asset {
	return e.betAsset
}

func (e *Escrow) BetAmount() *uint256.Int {
	return e.betAmount.Clone()
}

func (e *Escrow) Pot() *uint256.Int {
	return e.pot.Clone()
}

func (e *Escrow) IsActive() bool {
	return e.isActive
}

func (e *Escrow) Winner() Side {
	return e.winner
}

func (e *Escrow) Status() Status {
	return e.status
}

func (e *Escrow) Round() uint64 {
	return e.round
}

func (e *Escrow) History(side Side) []Submission {
	if side == SideNone {
		return nil
	}

	history := *e.historyPtr(side)

	return append([]Submission(nil), history...)
}

func (e *Escrow) Snapshot() Snapshot {
	s := Snapshot{
		Address:             e.address,
		Creator:             e.creator,
		BetAsset:            e.betAsset,
		BetAmount:           e.betAmount.Dec(),
		Pot:                 e.pot.Dec(),
		Round:               e.round,
		IsActive:            e.isActive,
		Winner:              e.winner,
		Status:              e.status,
		CreatorHistory:      e.History(SideCreator),
		CounterpartyHistory: e.History(SideCounterparty),
	}

	if counterparty, ok := e.Counterparty(); ok {
		s.Counterparty = &counterparty
	}

	return s
}

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusActive:
		return "active"
	case StatusSettled:
		return "settled"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Side) String() string {
	switch s {
	case SideCreator:
		return "creator"
	case SideCounterparty:
		return "counterparty"
	default:
		return "none"
	}
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
