package escrow

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vreid/wager/internal/pkg/asset"
)

// TerminalMove is the move value that wins a match for whoever submits it.
const TerminalMove uint64 = 5

type Status uint8

const (
	StatusOpen Status = iota
	StatusActive
	StatusSettled
)

// Side names a participant relative to the match, not by address.
type Side uint8

const (
	SideNone Side = iota
	SideCreator
	SideCounterparty
)

// Submission is one step a participant made.
type Submission struct {
	Round    uint64 `json:"round"`
	Progress uint64 `json:"progress"`
	Move     uint64 `json:"move"`
}

// Params fix a match at creation. The bet must already be in the custody of
// Address when the escrow is created.
type Params struct {
	Address   common.Address
	Creator   common.Address
	BetAsset  asset.Asset
	BetAmount *uint256.Int
}

type Snapshot struct {
	Address      common.Address  `json:"address"`
	Creator      common.Address  `json:"creator"`
	Counterparty *common.Address `json:"counterparty"`
	BetAsset     asset.Asset     `json:"bet_asset"`
	BetAmount    string          `json:"bet_amount"`
	Pot          string          `json:"pot"`
	Round        uint64          `json:"round"`
	IsActive     bool            `json:"is_active"`
	Winner       Side            `json:"winner"`
	Status       Status          `json:"status"`

	CreatorHistory      []Submission `json:"creator_history"`
	CounterpartyHistory []Submission `json:"counterparty_history"`
}
