package asset

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	wcommon "github.com/vreid/wager/internal/pkg/common"
)

const (
	nativeText  = "native"
	tokenPrefix = "token:"
)

func Native() Asset {
	return Asset{Kind: KindNative}
}

func Token(addr common.Address) Asset {
	return Asset{Kind: KindToken, Token: addr}
}

func (a Asset) IsNative() bool {
	return a.Kind == KindNative
}

func (a Asset) String() string {
	if a.IsNative() {
		return nativeText
	}

	return tokenPrefix + a.Token.Hex()
}

// Parse accepts "native", "token:0x…" or a bare token address.
func Parse(s string) (Asset, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, nativeText) {
		return Native(), nil
	}

	raw := strings.TrimPrefix(s, tokenPrefix)
	if !common.IsHexAddress(raw) {
		return Asset{}, fmt.Errorf("%w: unknown asset %q", wcommon.ErrInvalidArgument, s)
	}

	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return Asset{}, fmt.Errorf("%w: token address must not be zero", wcommon.ErrInvalidArgument)
	}

	return Token(addr), nil
}

func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Asset) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

// ParseUnits converts a human amount such as "1.5" into base units. An empty
// amount is zero.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	if strings.TrimSpace(s) == "" {
		return new(uint256.Int), nil
	}

	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %w", wcommon.ErrInvalidArgument, s, err)
	}

	if d.IsNegative() {
		return nil, fmt.Errorf("%w: amount %q is negative", wcommon.ErrInvalidArgument, s)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: amount %q has more than %d decimals", wcommon.ErrInvalidArgument, s, decimals)
	}

	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: amount %q", wcommon.ErrOverflow, s)
	}

	return v, nil
}

func FormatUnits(v *uint256.Int, decimals uint8) string {
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).String()
}

// ParseAmount parses a base-10 base-unit amount as carried by the HTTP API.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}

	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %w", wcommon.ErrInvalidArgument, s, err)
	}

	return v, nil
}
