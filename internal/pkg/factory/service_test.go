package factory_test

import (
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	wcommon "github.com/vreid/wager/internal/pkg/common"
	"github.com/vreid/wager/internal/pkg/escrow"
	"github.com/vreid/wager/internal/pkg/factory"
)

func newServer(t *testing.T) (*fixture, *echo.Echo) {
	t.Helper()

	fx := newFixture(t)
	e := echo.New()

	e.Use(wcommon.NewAuthenticator(time.Minute).Middleware())

	service := &factory.FactoryService{Factory: fx.factory}
	service.Routes(e)

	return fx, e
}

func call(t *testing.T, e *echo.Echo, method, path string, caller *ecdsa.PrivateKey, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	if caller != nil {
		require.NoError(t, wcommon.SignRequest(req, caller, time.Now()))
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func TestServiceRoleQuery(t *testing.T) {
	t.Parallel()

	_, e := newServer(t)

	rec := call(t, e, http.MethodGet, "/api/factory/roles/UPGRADER/"+deployer.Hex(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["has_role"])
	assert.Equal(t, "ADMIN", body["admin"])

	rec = call(t, e, http.MethodGet, "/api/factory/roles/NOBODY/"+deployer.Hex(), nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServiceRequiresCaller(t *testing.T) {
	t.Parallel()

	_, e := newServer(t)

	rec := call(t, e, http.MethodPost, "/api/factory/matches", nil, `{"fee_asset":"native","bet_asset":"native","bet_amount":"1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, e, http.MethodPut, "/api/factory/fee-tokens", aliceKey, `{"asset":"native","enabled":true,"fee":"1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServiceRejectsForgedCaller(t *testing.T) {
	t.Parallel()

	fx, e := newServer(t)

	body := `{"asset":"native","enabled":true,"fee":"1"}`

	req := httptest.NewRequest(http.MethodPut, "/api/factory/fee-tokens", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(wcommon.CallerHeader, deployer.Hex())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/factory/fee-tokens", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	require.NoError(t, wcommon.SignRequest(req, aliceKey, time.Now()))
	req.Header.Set(wcommon.CallerHeader, deployer.Hex())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, fx.factory.FeeTokens())
}

func TestServiceMatchFlow(t *testing.T) {
	t.Parallel()

	fx, e := newServer(t)

	rec := call(t, e, http.MethodPut, "/api/factory/fee-tokens", deployerKey, `{"asset":"native","enabled":true,"fee":"5"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, e, http.MethodPost, "/api/factory/matches", aliceKey,
		`{"fee_asset":"native","bet_asset":"native","bet_amount":"10","value":"14"}`)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = call(t, e, http.MethodPost, "/api/factory/matches", aliceKey,
		`{"fee_asset":"native","bet_asset":"native","bet_amount":"10","value":"15"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Escrow string `json:"escrow"`
		Index  int    `json:"index"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 0, created.Index)

	rec = call(t, e, http.MethodGet, "/api/factory/matches/"+alice.Hex()+"/0", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.Escrow)

	rec = call(t, e, http.MethodGet, "/api/factory/matches/"+alice.Hex()+"/1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	matchPath := "/api/matches/" + created.Escrow

	rec = call(t, e, http.MethodPost, matchPath+"/join", bobKey, `{"value":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, e, http.MethodPost, matchPath+"/join", bobKey, `{"value":"10"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, e, http.MethodPost, matchPath+"/step", aliceKey, `{"progress":2,"move":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, step := range []struct {
		caller   *ecdsa.PrivateKey
		progress int
		move     int
	}{
		{aliceKey, 1, 1}, {bobKey, 1, 0},
		{aliceKey, 2, 2}, {bobKey, 2, 1},
		{aliceKey, 3, 3}, {bobKey, 3, 1},
		{aliceKey, 4, 4}, {bobKey, 4, 2},
		{aliceKey, 5, 5},
	} {
		body, err := json.Marshal(map[string]int{"progress": step.progress, "move": step.move})
		require.NoError(t, err)

		rec = call(t, e, http.MethodPost, matchPath+"/step", step.caller, string(body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	var snapshot struct {
		Pot      string `json:"pot"`
		Winner   string `json:"winner"`
		Status   string `json:"status"`
		IsActive bool   `json:"is_active"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))

	assert.Equal(t, "0", snapshot.Pot)
	assert.Equal(t, escrow.SideCreator.String(), snapshot.Winner)
	assert.Equal(t, escrow.StatusSettled.String(), snapshot.Status)
	assert.False(t, snapshot.IsActive)

	rec = call(t, e, http.MethodPost, matchPath+"/step", bobKey, `{"progress":5,"move":3}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, "5", fx.ledger.NativeBalance(feeReceiver).Dec())
}

func TestServiceMatchIndexUnderConcurrency(t *testing.T) {
	t.Parallel()

	fx, e := newServer(t)

	rec := call(t, e, http.MethodPut, "/api/factory/fee-tokens", deployerKey, `{"asset":"native","enabled":true,"fee":"1"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	const n = 16

	type created struct {
		Escrow string `json:"escrow"`
		Index  int    `json:"index"`
	}

	results := make(chan created, n)

	var wg sync.WaitGroup

	for range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			rec := call(t, e, http.MethodPost, "/api/factory/matches", aliceKey,
				`{"fee_asset":"native","bet_asset":"native","bet_amount":"1","value":"2"}`)
			if !assert.Equal(t, http.StatusCreated, rec.Code) {
				return
			}

			var c created
			if assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c)) {
				results <- c
			}
		}()
	}

	wg.Wait()
	close(results)

	seen := map[int]bool{}

	for c := range results {
		assert.False(t, seen[c.Index])
		seen[c.Index] = true

		handle, err := fx.factory.MatchOf(alice, c.Index)
		require.NoError(t, err)
		assert.Equal(t, c.Escrow, handle.Hex())
	}

	assert.Len(t, seen, n)
}

func TestServiceUnknownMatch(t *testing.T) {
	t.Parallel()

	_, e := newServer(t)

	rec := call(t, e, http.MethodGet, "/api/matches/0x000000000000000000000000000000000000dEaD", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, e, http.MethodGet, "/api/matches/nope", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServiceAdministration(t *testing.T) {
	t.Parallel()

	fx, e := newServer(t)

	rec := call(t, e, http.MethodPost, "/api/factory/initialize", aliceKey, `{"fee_receiver":"`+alice.Hex()+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, e, http.MethodPut, "/api/factory/fee-receiver", deployerKey, `{"fee_receiver":"`+bob.Hex()+`"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, e, http.MethodGet, "/api/factory/fee-receiver", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), bob.Hex())

	rec = call(t, e, http.MethodPost, "/api/factory/roles/grant", deployerKey, `{"role":"ADMIN","account":"`+alice.Hex()+`"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, e, http.MethodPost, "/api/factory/upgrade", aliceKey, `{"version":"v2"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, e, http.MethodPost, "/api/factory/upgrade", deployerKey, `{"version":"v2"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, e, http.MethodGet, "/api/factory", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var info factory.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "v2", info.Version)
	assert.Equal(t, fx.factory.Address(), info.Address)
	assert.True(t, info.Initialized)

	rec = call(t, e, http.MethodGet, "/api/factory/fee-tokens", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
