package factory

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/wager/internal/pkg/access"
	"github.com/vreid/wager/internal/pkg/asset"
	"github.com/vreid/wager/internal/pkg/common"
	"github.com/vreid/wager/internal/pkg/escrow"
)

type FactoryService struct {
	Factory *Factory
}

func NewFactoryService(i do.Injector) (*FactoryService, error) {
	f := do.MustInvoke[*Factory](i)

	result := &FactoryService{
		Factory: f,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

func (s *FactoryService) Routes(e *echo.Echo) {
	apiGroup := e.Group("/api")

	factoryGroup := apiGroup.Group("/factory")

	factoryGroup.GET("", s.GetInfo)
	factoryGroup.POST("/initialize", s.PostInitialize)
	factoryGroup.POST("/matches", s.PostMatch)
	factoryGroup.GET("/matches/:user", s.GetMatches)
	factoryGroup.GET("/matches/:user/:index", s.GetMatchOf)
	factoryGroup.GET("/fee-receiver", s.GetFeeReceiver)
	factoryGroup.PUT("/fee-receiver", s.PutFeeReceiver)
	factoryGroup.GET("/fee-tokens", s.GetFeeTokens)
	factoryGroup.PUT("/fee-tokens", s.PutFeeToken)
	factoryGroup.POST("/roles/grant", s.PostGrantRole)
	factoryGroup.POST("/roles/revoke", s.PostRevokeRole)
	factoryGroup.POST("/roles/renounce", s.PostRenounceRole)
	factoryGroup.GET("/roles/:role/:account", s.GetRole)
	factoryGroup.POST("/upgrade", s.PostUpgrade)

	matchesGroup := apiGroup.Group("/matches")

	matchesGroup.GET("/:handle", s.GetMatch)
	matchesGroup.POST("/:handle/join", s.PostJoin)
	matchesGroup.POST("/:handle/step", s.PostStep)
}

func (s *FactoryService) view(c echo.Context, fn func() error) error {
	return s.Factory.rt.View(c.Request().Context(), func(context.Context) error {
		return fn()
	})
}

func (s *FactoryService) GetInfo(c echo.Context) error {
	var info Info

	_ = s.view(c, func() error {
		info = s.Factory.Info()

		return nil
	})

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, info)
}

func (s *FactoryService) PostInitialize(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	var req initializeRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	feeReceiver, err := common.ParseAddress(req.FeeReceiver)
	if err != nil {
		return common.HTTPError(err)
	}

	err = s.Factory.Initialize(c.Request().Context(), caller, feeReceiver)
	if err != nil {
		return common.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *FactoryService) PostMatch(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	var req newMatchRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	betAmount, err := asset.ParseAmount(req.BetAmount)
	if err != nil {
		return common.HTTPError(err)
	}

	value, err := asset.ParseAmount(req.Value)
	if err != nil {
		return common.HTTPError(err)
	}

	var (
		handle gethcommon.Address
		index  int
	)

	// The index is read in the same frame so a concurrent NewMatch by the
	// same caller cannot shift it.
	err = s.Factory.rt.Execute(c.Request().Context(), func(ctx context.Context) error {
		handle, err = s.Factory.NewMatch(ctx, caller, req.FeeAsset, req.BetAsset, betAmount, value)
		if err != nil {
			return err
		}

		index = s.Factory.MatchCount(caller) - 1

		return nil
	})
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, newMatchResponse{Escrow: handle, Index: index})
}

func (s *FactoryService) GetMatches(c echo.Context) error {
	user, err := common.ParseAddress(c.Param("user"))
	if err != nil {
		return common.HTTPError(err)
	}

	var records []MatchRecord

	_ = s.view(c, func() error {
		records = s.Factory.Records(user)

		return nil
	})

	if records == nil {
		records = []MatchRecord{}
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, records)
}

func (s *FactoryService) GetMatchOf(c echo.Context) error {
	user, err := common.ParseAddress(c.Param("user"))
	if err != nil {
		return common.HTTPError(err)
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid index")
	}

	var handle gethcommon.Address

	err = s.view(c, func() error {
		handle, err = s.Factory.MatchOf(user, index)

		return err
	})
	if err != nil {
		return common.HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, MatchRecord{Creator: user, Escrow: handle})
}

func (s *FactoryService) GetFeeReceiver(c echo.Context) error {
	var feeReceiver gethcommon.Address

	_ = s.view(c, func() error {
		feeReceiver = s.Factory.FeeReceiver()

		return nil
	})

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, feeReceiverRequest{FeeReceiver: feeReceiver.Hex()})
}

func (s *FactoryService) PutFeeReceiver(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	var req feeReceiverRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	feeReceiver, err := common.ParseAddress(req.FeeReceiver)
	if err != nil {
		return common.HTTPError(err)
	}

	err = s.Factory.UpdateFeeReceiver(c.Request().Context(), caller, feeReceiver)
	if err != nil {
		return common.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *FactoryService) GetFeeTokens(c echo.Context) error {
	var result []feeTokenResponse

	_ = s.view(c, func() error {
		entries := s.Factory.FeeTokens()

		result = make([]feeTokenResponse, 0, len(entries))
		for _, entry := range entries {
			result = append(result, feeTokenResponse{
				Asset:   entry.Asset,
				Enabled: entry.Enabled,
				Fee:     entry.Fee.Dec(),
			})
		}

		return nil
	})

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, result)
}

func (s *FactoryService) PutFeeToken(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	var req feeTokenRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	fee, err := asset.ParseAmount(req.Fee)
	if err != nil {
		return common.HTTPError(err)
	}

	err = s.Factory.UpdateFeeToken(c.Request().Context(), caller, req.Asset, req.Enabled, fee)
	if err != nil {
		return common.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

type roleCall func(ctx context.Context, caller gethcommon.Address, role access.Role, account gethcommon.Address) error

func (s *FactoryService) PostGrantRole(c echo.Context) error {
	return s.roleCall(c, s.Factory.GrantRole)
}

func (s *FactoryService) PostRevokeRole(c echo.Context) error {
	return s.roleCall(c, s.Factory.RevokeRole)
}

func (s *FactoryService) PostRenounceRole(c echo.Context) error {
	return s.roleCall(c, s.Factory.RenounceRole)
}

func (s *FactoryService) roleCall(c echo.Context, call roleCall) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	var req roleRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	role, err := access.ParseRole(req.Role)
	if err != nil {
		return common.HTTPError(err)
	}

	account, err := common.ParseAddress(req.Account)
	if err != nil {
		return common.HTTPError(err)
	}

	err = call(c.Request().Context(), caller, role, account)
	if err != nil {
		return common.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *FactoryService) GetRole(c echo.Context) error {
	role, err := access.ParseRole(c.Param("role"))
	if err != nil {
		return common.HTTPError(err)
	}

	account, err := common.ParseAddress(c.Param("account"))
	if err != nil {
		return common.HTTPError(err)
	}

	var result roleResponse

	_ = s.view(c, func() error {
		result = roleResponse{
			Role:    role.String(),
			Account: account.Hex(),
			HasRole: s.Factory.HasRole(role, account),
			Admin:   s.Factory.AdminOf(role).String(),
		}

		return nil
	})

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, result)
}

func (s *FactoryService) PostUpgrade(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	var req upgradeRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.Factory.AuthorizeUpgrade(c.Request().Context(), caller, req.Version)
	if err != nil {
		return common.HTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *FactoryService) match(c echo.Context) (*escrow.Escrow, error) {
	handle, err := common.ParseAddress(c.Param("handle"))
	if err != nil {
		return nil, common.HTTPError(err)
	}

	var e *escrow.Escrow

	err = s.view(c, func() error {
		e, err = s.Factory.Match(handle)

		return err
	})
	if err != nil {
		return nil, common.HTTPError(err)
	}

	return e, nil
}

func (s *FactoryService) GetMatch(c echo.Context) error {
	e, err := s.match(c)
	if err != nil {
		return err
	}

	var snapshot escrow.Snapshot

	_ = s.view(c, func() error {
		snapshot = e.Snapshot()

		return nil
	})

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, snapshot)
}

func (s *FactoryService) PostJoin(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	e, err := s.match(c)
	if err != nil {
		return err
	}

	var req joinRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	value, err := asset.ParseAmount(req.Value)
	if err != nil {
		return common.HTTPError(err)
	}

	err = e.Join(c.Request().Context(), caller, value)
	if err != nil {
		return common.HTTPError(err)
	}

	return s.GetMatch(c)
}

func (s *FactoryService) PostStep(c echo.Context) error {
	caller, err := common.Caller(c)
	if err != nil {
		return err
	}

	e, err := s.match(c)
	if err != nil {
		return err
	}

	var req stepRequest

	err = c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = e.Step(c.Request().Context(), caller, req.Progress, req.Move)
	if err != nil {
		return common.HTTPError(err)
	}

	return s.GetMatch(c)
}
