package asset

import "github.com/ethereum/go-ethereum/common"

type Kind uint8

const (
	KindNative Kind = 0 // chain currency, paid as attached value
	KindToken  Kind = 1 // fungible token, paid via allowance
)

// Asset identifies what a fee or a bet is denominated in. Token is only
// meaningful for KindToken.
type Asset struct {
	Kind  Kind
	Token common.Address
}

// NativeDecimals is the unit scale of the chain currency.
const NativeDecimals uint8 = 18
