package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/wager/internal/pkg/asset"
	"github.com/vreid/wager/internal/pkg/chain"
	"github.com/vreid/wager/internal/pkg/common"
)

type LedgerService struct {
	Ledger *Ledger

	Faucet bool
}

// NewLedger builds the ledger on a fresh runtime that publishes committed
// events to the named "event-sink". Numbering continues after the last
// archived event so a restart never reuses a sequence number.
func NewLedger(i do.Injector) (*Ledger, error) {
	sink := do.MustInvokeNamed[chan<- chain.Event](i, "event-sink")
	databaseService := do.MustInvoke[*common.DatabaseService](i)

	seq, err := databaseService.LastEventSeq()
	if err != nil {
		return nil, err
	}

	rt := chain.New(
		chain.WithSink(sink),
		chain.WithLogger(slog.Default()),
		chain.WithStartSeq(seq),
	)

	return New(rt), nil
}

func NewLedgerService(i do.Injector) (*LedgerService, error) {
	l := do.MustInvoke[*Ledger](i)
	faucet := do.MustInvokeNamed[bool](i, "faucet")

	result := &LedgerService{
		Ledger: l,
		Faucet: faucet,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

func (s *LedgerService) Routes(e *echo.Echo) {
	ledgerGroup := e.Group("/api/ledger")

	ledgerGroup.POST("/tokens", s.PostToken)
	ledgerGroup.GET("/tokens/:token", s.GetToken)
	ledgerGroup.POST("/tokens/:token/mint", s.PostMint)
	ledgerGroup.POST("/tokens/:token/approve", s.PostApprove)
	ledgerGroup.POST("/tokens/:token/transfer", s.PostTokenTransfer)
	ledgerGroup.POST("/native/faucet", s.PostFaucet)
	ledgerGroup.POST("/native/transfer", s.PostNativeTransfer)
	ledgerGroup.GET("/balances/:asset/:account", s.GetBalance)
}

func (s *LedgerService) PostToken(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	var req deployTokenRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	addr, err := s.Ledger.DeployToken(c.Request().Context(), caller, req.Symbol, req.Decimals)
	if err != nil {
		return common.HTTPError(err)
	}

	var info TokenInfo

	err = s.Ledger.rt.View(c.Request().Context(), func(context.Context) error {
		info, err = s.Ledger.TokenInfo(addr)

		return err
	})
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, info)
}

func (s *LedgerService) GetToken(c echo.Context) error {
	addr, err := common.ParseAddress(c.Param("token"))
	if err != nil {
		return common.HTTPError(err)
	}

	var info TokenInfo

	err = s.Ledger.rt.View(c.Request().Context(), func(context.Context) error {
		info, err = s.Ledger.TokenInfo(addr)

		return err
	})
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, info)
}

func (s *LedgerService) PostMint(c echo.Context) error {
	return s.tokenAmountCall(c, func(ctx context.Context, req amountRequest, amount *uint256.Int) error {
		caller, err := common.Caller(c)
		if err != nil {
			return err
		}

		token, to, err := tokenAndRecipient(c, req)
		if err != nil {
			return err
		}

		return s.Ledger.Mint(ctx, token, caller, to, amount)
	})
}

func (s *LedgerService) PostTokenTransfer(c echo.Context) error {
	return s.tokenAmountCall(c, func(ctx context.Context, req amountRequest, amount *uint256.Int) error {
		caller, err := common.Caller(c)
		if err != nil {
			return err
		}

		token, to, err := tokenAndRecipient(c, req)
		if err != nil {
			return err
		}

		return s.Ledger.Transfer(ctx, token, caller, to, amount)
	})
}

func (s *LedgerService) PostApprove(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	var req approveRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	token, err := common.ParseAddress(c.Param("token"))
	if err != nil {
		return common.HTTPError(err)
	}

	spender, err := common.ParseAddress(req.Spender)
	if err != nil {
		return common.HTTPError(err)
	}

	amount, err := asset.ParseAmount(req.Amount)
	if err != nil {
		return common.HTTPError(err)
	}

	err = s.Ledger.Approve(c.Request().Context(), token, caller, spender, amount)
	if err != nil {
		return common.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *LedgerService) PostFaucet(c echo.Context) error {
	if !s.Faucet {
		return echo.NewHTTPError(http.StatusForbidden, "faucet disabled")
	}

	return s.tokenAmountCall(c, func(ctx context.Context, req amountRequest, amount *uint256.Int) error {
		to, err := common.ParseAddress(req.To)
		if err != nil {
			return err
		}

		return s.Ledger.Faucet(ctx, to, amount)
	})
}

func (s *LedgerService) PostNativeTransfer(c echo.Context) error {
	return s.tokenAmountCall(c, func(ctx context.Context, req amountRequest, amount *uint256.Int) error {
		caller, err := common.Caller(c)
		if err != nil {
			return err
		}

		to, err := common.ParseAddress(req.To)
		if err != nil {
			return err
		}

		return s.Ledger.TransferNative(ctx, caller, to, amount)
	})
}

func (s *LedgerService) GetBalance(c echo.Context) error {
	a, err := asset.Parse(c.Param("asset"))
	if err != nil {
		return common.HTTPError(err)
	}

	account, err := common.ParseAddress(c.Param("account"))
	if err != nil {
		return common.HTTPError(err)
	}

	var amount *uint256.Int

	_ = s.Ledger.rt.View(c.Request().Context(), func(context.Context) error {
		amount = s.Ledger.Balance(a, account)

		return nil
	})

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, balanceResponse{
		Asset:   a.String(),
		Account: account.Hex(),
		Amount:  amount.Dec(),
	})
}

func (s *LedgerService) tokenAmountCall(c echo.Context, call func(context.Context, amountRequest, *uint256.Int) error) error {
	var req amountRequest

	err := c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	amount, err := asset.ParseAmount(req.Amount)
	if err != nil {
		return common.HTTPError(err)
	}

	err = call(c.Request().Context(), req, amount)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}

		return common.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func tokenAndRecipient(c echo.Context, req amountRequest) (token, to gethcommon.Address, err error) {
	token, err = common.ParseAddress(c.Param("token"))
	if err != nil {
		return token, to, err
	}

	to, err = common.ParseAddress(req.To)

	return token, to, err
}
