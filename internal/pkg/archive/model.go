package archive

import (
	"github.com/vreid/wager/internal/pkg/chain"
)

// Record is a committed event as stored in the archive.
type Record struct {
	ID    string      `json:"id"`
	Event chain.Event `json:"event"`
}

// MatchSummary is folded from the events of one match.
type MatchSummary struct {
	Escrow       string `json:"escrow"`
	Creator      string `json:"creator"`
	Counterparty string `json:"counterparty,omitempty"`
	FeeAsset     string `json:"fee_asset"`
	Fee          string `json:"fee"`
	BetAsset     string `json:"bet_asset"`
	BetAmount    string `json:"bet_amount"`
	Status       string `json:"status"`
	Steps        int    `json:"steps"`
	Winner       string `json:"winner,omitempty"`
	Payout       string `json:"payout,omitempty"`

	CreatedSeq uint64 `json:"created_seq"`
	SettledSeq uint64 `json:"settled_seq,omitempty"`
}

type MatchHistory struct {
	Summary MatchSummary `json:"summary"`
	Events  []Record     `json:"events"`
}
