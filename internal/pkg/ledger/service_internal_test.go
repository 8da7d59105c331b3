package ledger

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestTokenAmountCallKeepsWrappedHTTPErrors(t *testing.T) {
	t.Parallel()

	s := &LedgerService{}
	e := echo.New()

	e.POST("/call", func(c echo.Context) error {
		return s.tokenAmountCall(c, func(context.Context, amountRequest, *uint256.Int) error {
			return fmt.Errorf("while calling: %w", echo.NewHTTPError(http.StatusTeapot, "short and stout"))
		})
	})

	req := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader(`{"amount":"1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, rec.Body.String(), "short and stout")
}
