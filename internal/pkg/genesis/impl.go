// Package genesis builds the initial ledger state and the factory from a YAML
// document.
package genesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/do/v2"
	"github.com/vreid/wager/internal/pkg/asset"
	wcommon "github.com/vreid/wager/internal/pkg/common"
	"github.com/vreid/wager/internal/pkg/factory"
	"github.com/vreid/wager/internal/pkg/ledger"
	"gopkg.in/yaml.v3"
)

// NewFactory applies the genesis file named "genesis" (if any) to the ledger
// and returns the resulting factory.
func NewFactory(i do.Injector) (*factory.Factory, error) {
	l := do.MustInvoke[*ledger.Ledger](i)
	path := do.MustInvokeNamed[string](i, "genesis")

	cfg := &Config{}

	if path != "" {
		var err error

		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	result, err := Apply(context.Background(), l, cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("genesis applied",
		"path", path,
		"factory", result.Factory.Address().Hex(),
		"initialized", result.Factory.Info().Initialized,
		"tokens", len(result.Tokens))

	return result.Factory, nil
}

func Load(path string) (*Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis: %w", err)
	}

	return Parse(data)
}

// Parse decodes a genesis document; unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}

	return cfg, nil
}

// Apply deploys the factory and seeds the ledger in a single frame: either
// the whole document takes effect or nothing does. Without a deployer the
// factory is deployed by the zero account; without a fee receiver it is
// left uninitialized.
//
//nolint:cyclop,funlen
func Apply(ctx context.Context, l *ledger.Ledger, cfg *Config) (*Result, error) {
	result := &Result{Tokens: map[string]common.Address{}}

	err := l.Runtime().Execute(ctx, func(ctx context.Context) error {
		deployer, err := optionalAddress(cfg.Deployer)
		if err != nil {
			return fmt.Errorf("deployer: %w", err)
		}

		f, err := factory.Deploy(ctx, l, deployer)
		if err != nil {
			return err
		}

		result.Factory = f

		if cfg.FeeReceiver != "" {
			feeReceiver, err := wcommon.ParseAddress(cfg.FeeReceiver)
			if err != nil {
				return fmt.Errorf("fee_receiver: %w", err)
			}

			err = f.Initialize(ctx, deployer, feeReceiver)
			if err != nil {
				return err
			}
		}

		for _, account := range cfg.Accounts {
			addr, err := wcommon.ParseAddress(account.Address)
			if err != nil {
				return fmt.Errorf("accounts: %w", err)
			}

			amount, err := asset.ParseUnits(account.Native, asset.NativeDecimals)
			if err != nil {
				return fmt.Errorf("accounts %s: %w", addr.Hex(), err)
			}

			err = l.Faucet(ctx, addr, amount)
			if err != nil {
				return fmt.Errorf("accounts %s: %w", addr.Hex(), err)
			}
		}

		for _, token := range cfg.Tokens {
			if _, ok := result.Tokens[token.Symbol]; ok {
				return fmt.Errorf("%w: duplicate token %s", wcommon.ErrInvalidArgument, token.Symbol)
			}

			owner := deployer
			if token.Owner != "" {
				owner, err = wcommon.ParseAddress(token.Owner)
				if err != nil {
					return fmt.Errorf("tokens %s: %w", token.Symbol, err)
				}
			}

			addr, err := l.DeployToken(ctx, owner, token.Symbol, token.Decimals)
			if err != nil {
				return fmt.Errorf("tokens %s: %w", token.Symbol, err)
			}

			result.Tokens[token.Symbol] = addr

			for _, mint := range token.Mints {
				to, err := wcommon.ParseAddress(mint.To)
				if err != nil {
					return fmt.Errorf("tokens %s: %w", token.Symbol, err)
				}

				amount, err := asset.ParseUnits(mint.Amount, token.Decimals)
				if err != nil {
					return fmt.Errorf("tokens %s: %w", token.Symbol, err)
				}

				err = l.Mint(ctx, addr, owner, to, amount)
				if err != nil {
					return fmt.Errorf("tokens %s: %w", token.Symbol, err)
				}
			}
		}

		for _, entry := range cfg.FeeTokens {
			a, err := result.resolve(entry.Asset)
			if err != nil {
				return fmt.Errorf("fee_tokens: %w", err)
			}

			decimals, err := l.Decimals(a)
			if err != nil {
				return fmt.Errorf("fee_tokens %s: %w", a, err)
			}

			fee, err := asset.ParseUnits(entry.Fee, decimals)
			if err != nil {
				return fmt.Errorf("fee_tokens %s: %w", a, err)
			}

			err = f.UpdateFeeToken(ctx, deployer, a, entry.Enabled, fee)
			if err != nil {
				return fmt.Errorf("fee_tokens %s: %w", a, err)
			}
		}

		if cfg.Version != "" {
			err = f.AuthorizeUpgrade(ctx, deployer, cfg.Version)
			if err != nil {
				return fmt.Errorf("version: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply genesis: %w", err)
	}

	return result, nil
}

func (r *Result) resolve(name string) (asset.Asset, error) {
	if addr, ok := r.Tokens[name]; ok {
		return asset.Token(addr), nil
	}

	return asset.Parse(name)
}

func optionalAddress(raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, nil
	}

	return wcommon.ParseAddress(raw)
}
