package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do/v2"
	"github.com/vreid/wager/internal/pkg/chain"
)

type EchoService struct {
	echo *echo.Echo
	port int
}

func NewEchoService(i do.Injector) (*EchoService, error) {
	port := do.MustInvokeNamed[int](i, "port")
	signatureMaxAgeSeconds := do.MustInvokeNamed[int](i, "signature-max-age-seconds")

	e := echo.New()

	e.HideBanner = true
	e.HidePort = false

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${id} ${remote_ip} ${status} ${method} ${path} ${error} ${latency_human} ${bytes_in} ${bytes_out}\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(NewAuthenticator(time.Duration(signatureMaxAgeSeconds) * time.Second).Middleware())

	return &EchoService{
		echo: e,
		port: port,
	}, nil
}

func (s *EchoService) Register(c func(e *echo.Echo)) {
	c(s.echo)
}

// Handler exposes the router, mostly for httptest.
func (s *EchoService) Handler() http.Handler {
	return s.echo
}

func (s *EchoService) Start() error {
	err := s.echo.Start(fmt.Sprintf(":%d", s.port))
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *EchoService) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("failed to shutdown echo server: %w", err)
	}

	return nil
}

// ParseAddress parses a hex account from a path or body value.
func ParseAddress(raw string) (gethcommon.Address, error) {
	if !gethcommon.IsHexAddress(raw) {
		return gethcommon.Address{}, fmt.Errorf("%w: malformed address %q", ErrInvalidArgument, raw)
	}

	return gethcommon.HexToAddress(raw), nil
}

// HTTPError translates a domain error into an echo error with a matching status.
//
//nolint:cyclop
func HTTPError(err error) error {
	var status int

	switch {
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrPaymentMismatch),
		errors.Is(err, ErrInsufficientAllowance),
		errors.Is(err, ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrAlreadyInitialized),
		errors.Is(err, ErrNotInitialized):
		status = http.StatusConflict
	case errors.Is(err, ErrAssetNotChargeable),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrOverflow):
		status = http.StatusBadRequest
	case errors.Is(err, ErrTransferFailure):
		status = http.StatusBadGateway
	case errors.Is(err, chain.ErrClosed):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	return echo.NewHTTPError(status, err.Error())
}
