package genesis

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/vreid/wager/internal/pkg/factory"
)

// Config is the YAML genesis document. Amounts are human-readable decimals
// scaled by the decimals of their asset.
type Config struct {
	Deployer    string     `yaml:"deployer"`
	FeeReceiver string     `yaml:"fee_receiver"`
	Version     string     `yaml:"version"`
	Accounts    []Account  `yaml:"accounts"`
	Tokens      []Token    `yaml:"tokens"`
	FeeTokens   []FeeToken `yaml:"fee_tokens"`
}

type Account struct {
	Address string `yaml:"address"`
	Native  string `yaml:"native"`
}

type Token struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Owner    string `yaml:"owner"`
	Mints    []Mint `yaml:"mints"`
}

type Mint struct {
	To     string `yaml:"to"`
	Amount string `yaml:"amount"`
}

// FeeToken names its asset as "native", a symbol from Tokens, or an address.
type FeeToken struct {
	Asset   string `yaml:"asset"`
	Enabled bool   `yaml:"enabled"`
	Fee     string `yaml:"fee"`
}

type Result struct {
	Factory *factory.Factory
	Tokens  map[string]common.Address
}
