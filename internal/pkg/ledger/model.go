package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TransferHook runs after a token balance moved and may call back into any
// component (it receives the frame's ctx). A returned error rejects the
// transfer.
type TransferHook func(ctx context.Context, from, to common.Address, amount *uint256.Int) error

type TokenInfo struct {
	Address  common.Address `json:"address"`
	Owner    common.Address `json:"owner"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Supply   string         `json:"supply"`
}

type token struct {
	owner    common.Address
	symbol   string
	decimals uint8
	supply   *uint256.Int

	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int

	hook TransferHook
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

type deployTokenRequest struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type amountRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type balanceResponse struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}
