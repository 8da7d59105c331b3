package common_test

import (
	"crypto/ecdsa"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/wager/internal/pkg/common"
)

var (
	ownerKey = crypto.ToECDSAUnsafe(gethcommon.LeftPadBytes([]byte{0x0a}, 32))
	thiefKey = crypto.ToECDSAUnsafe(gethcommon.LeftPadBytes([]byte{0x0b}, 32))

	owner = crypto.PubkeyToAddress(ownerKey.PublicKey)
)

func newEcho(auth *common.Authenticator) *echo.Echo {
	e := echo.New()
	e.Use(auth.Middleware())

	e.POST("/whoami", func(c echo.Context) error {
		caller, err := common.Caller(c)
		if err != nil {
			return err
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}

		return c.String(http.StatusOK, caller.Hex()+" "+string(body))
	})

	return e
}

func signed(t *testing.T, key *ecdsa.PrivateKey, body string, at time.Time) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/whoami", strings.NewReader(body))
	require.NoError(t, common.SignRequest(req, key, at))

	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func TestSignedRequestIdentifiesCaller(t *testing.T) {
	t.Parallel()

	e := newEcho(common.NewAuthenticator(time.Minute))

	rec := serve(e, signed(t, ownerKey, `{"a":1}`, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, owner.Hex()+` {"a":1}`, rec.Body.String())
}

func TestForgedCallerIsRejected(t *testing.T) {
	t.Parallel()

	e := newEcho(common.NewAuthenticator(time.Minute))

	req := signed(t, thiefKey, `{}`, time.Now())
	req.Header.Set(common.CallerHeader, owner.Hex())
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/whoami", strings.NewReader(`{}`))
	req.Header.Set(common.CallerHeader, owner.Hex())
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/whoami", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

func TestTamperedRequestIsRejected(t *testing.T) {
	t.Parallel()

	e := newEcho(common.NewAuthenticator(time.Minute))

	original := signed(t, ownerKey, `{"amount":"1"}`, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/whoami", strings.NewReader(`{"amount":"1000"}`))
	for _, header := range []string{common.CallerHeader, common.TimestampHeader, common.NonceHeader, common.SignatureHeader} {
		req.Header.Set(header, original.Header.Get(header))
	}

	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = signed(t, ownerKey, `{}`, time.Now())
	req.Header.Set(common.SignatureHeader, "0x1234")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

func TestReplayedAndExpiredRequestsAreRejected(t *testing.T) {
	t.Parallel()

	e := newEcho(common.NewAuthenticator(time.Minute))

	req := signed(t, ownerKey, `{}`, time.Now())

	replay := httptest.NewRequest(http.MethodPost, "/whoami", strings.NewReader(`{}`))
	replay.Header = req.Header.Clone()

	require.Equal(t, http.StatusOK, serve(e, req).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, replay).Code)

	assert.Equal(t, http.StatusUnauthorized, serve(e, signed(t, ownerKey, `{}`, time.Now().Add(-time.Hour))).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, signed(t, ownerKey, `{}`, time.Now().Add(time.Hour))).Code)
}
