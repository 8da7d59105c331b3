package factory

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/vreid/wager/internal/pkg/asset"
)

// MatchRecord links a creator to one escrow it opened.
type MatchRecord struct {
	Creator common.Address `json:"creator"`
	Escrow  common.Address `json:"escrow"`
}

type Info struct {
	Address     common.Address `json:"address"`
	Initialized bool           `json:"initialized"`
	FeeReceiver common.Address `json:"fee_receiver"`
	Version     string         `json:"version"`
	Matches     int            `json:"matches"`
}

type initializeRequest struct {
	FeeReceiver string `json:"fee_receiver"`
}

type newMatchRequest struct {
	FeeAsset  asset.Asset `json:"fee_asset"`
	BetAsset  asset.Asset `json:"bet_asset"`
	BetAmount string      `json:"bet_amount"`
	Value     string      `json:"value"`
}

type newMatchResponse struct {
	Escrow common.Address `json:"escrow"`
	Index  int            `json:"index"`
}

type feeReceiverRequest struct {
	FeeReceiver string `json:"fee_receiver"`
}

type feeTokenRequest struct {
	Asset   asset.Asset `json:"asset"`
	Enabled bool        `json:"enabled"`
	Fee     string      `json:"fee"`
}

type feeTokenResponse struct {
	Asset   asset.Asset `json:"asset"`
	Enabled bool        `json:"enabled"`
	Fee     string      `json:"fee"`
}

type roleRequest struct {
	Role    string `json:"role"`
	Account string `json:"account"`
}

type roleResponse struct {
	Role    string `json:"role"`
	Account string `json:"account"`
	HasRole bool   `json:"has_role"`
	Admin   string `json:"admin"`
}

type upgradeRequest struct {
	Version string `json:"version"`
}

type joinRequest struct {
	Value string `json:"value"`
}

type stepRequest struct {
	Progress uint64 `json:"progress"`
	Move     uint64 `json:"move"`
}
