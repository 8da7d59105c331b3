package common

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	CallerHeader    = "X-Caller"
	TimestampHeader = "X-Timestamp"
	NonceHeader     = "X-Nonce"
	SignatureHeader = "X-Signature"

	callerKey = "wager.caller"

	maxNonceLength = 64
)

var (
	ErrMalformedSignature = errors.New("malformed request signature")
	ErrSignatureMismatch  = errors.New("request signature does not match caller")
	ErrSignatureExpired   = errors.New("request signature expired")
	ErrSignatureReplayed  = errors.New("request signature already used")
)

// Authenticator checks that a request claiming X-Caller was signed by the
// key behind that address. A (caller, nonce) pair is accepted once while its
// timestamp is within MaxAge.
type Authenticator struct {
	MaxAge time.Duration
	Now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewAuthenticator(maxAge time.Duration) *Authenticator {
	return &Authenticator{
		MaxAge: maxAge,
		Now:    time.Now,
		seen:   map[string]time.Time{},
	}
}

// SigningHash is the digest a caller signs.
func SigningHash(method, uri string, timestamp int64, nonce string, body []byte) gethcommon.Hash {
	header := fmt.Sprintf("%s\n%s\n%d\n%s\n", method, uri, timestamp, nonce)

	return crypto.Keccak256Hash([]byte(header), crypto.Keccak256(body))
}

// SignRequest sets the caller headers on req, signed with key at now.
func SignRequest(req *http.Request, key *ecdsa.PrivateKey, now time.Time) error {
	body, err := readBody(req)
	if err != nil {
		return err
	}

	timestamp := now.Unix()
	nonce := uuid.NewString()

	signature, err := crypto.Sign(SigningHash(req.Method, req.URL.RequestURI(), timestamp, nonce, body).Bytes(), key)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set(CallerHeader, crypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(TimestampHeader, strconv.FormatInt(timestamp, 10))
	req.Header.Set(NonceHeader, nonce)
	req.Header.Set(SignatureHeader, hexutil.Encode(signature))

	return nil
}

// Middleware verifies signed requests and stores the caller for Caller.
// Requests without X-Caller pass through unauthenticated.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get(CallerHeader) == "" {
				return next(c)
			}

			caller, err := a.Verify(c.Request())
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			c.Set(callerKey, caller)

			return next(c)
		}
	}
}

//nolint:cyclop
func (a *Authenticator) Verify(req *http.Request) (gethcommon.Address, error) {
	raw := req.Header.Get(CallerHeader)
	if !gethcommon.IsHexAddress(raw) {
		return gethcommon.Address{}, fmt.Errorf("%w: bad %s", ErrMalformedSignature, CallerHeader)
	}

	claimed := gethcommon.HexToAddress(raw)

	timestamp, err := strconv.ParseInt(req.Header.Get(TimestampHeader), 10, 64)
	if err != nil {
		return gethcommon.Address{}, fmt.Errorf("%w: bad %s", ErrMalformedSignature, TimestampHeader)
	}

	now := a.Now()

	signedAt := time.Unix(timestamp, 0)
	if now.Sub(signedAt) > a.MaxAge || signedAt.Sub(now) > a.MaxAge {
		return gethcommon.Address{}, ErrSignatureExpired
	}

	nonce := req.Header.Get(NonceHeader)
	if nonce == "" || len(nonce) > maxNonceLength {
		return gethcommon.Address{}, fmt.Errorf("%w: bad %s", ErrMalformedSignature, NonceHeader)
	}

	signature, err := hexutil.Decode(req.Header.Get(SignatureHeader))
	if err != nil || len(signature) != crypto.SignatureLength {
		return gethcommon.Address{}, fmt.Errorf("%w: bad %s", ErrMalformedSignature, SignatureHeader)
	}

	if signature[crypto.RecoveryIDOffset] >= 27 { //nolint:mnd
		signature[crypto.RecoveryIDOffset] -= 27
	}

	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:64])

	if !crypto.ValidateSignatureValues(signature[crypto.RecoveryIDOffset], r, s, true) {
		return gethcommon.Address{}, fmt.Errorf("%w: invalid signature values", ErrMalformedSignature)
	}

	body, err := readBody(req)
	if err != nil {
		return gethcommon.Address{}, err
	}

	pub, err := crypto.SigToPub(SigningHash(req.Method, req.URL.RequestURI(), timestamp, nonce, body).Bytes(), signature)
	if err != nil {
		return gethcommon.Address{}, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}

	if crypto.PubkeyToAddress(*pub) != claimed {
		return gethcommon.Address{}, ErrSignatureMismatch
	}

	if !a.remember(claimed.Hex()+"|"+nonce, signedAt, now) {
		return gethcommon.Address{}, ErrSignatureReplayed
	}

	return claimed, nil
}

func (a *Authenticator) remember(key string, signedAt, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k, t := range a.seen {
		if now.Sub(t) > a.MaxAge {
			delete(a.seen, k)
		}
	}

	if _, ok := a.seen[key]; ok {
		return false
	}

	a.seen[key] = signedAt

	return true
}

// readBody returns the request body and puts an identical reader back.
func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return []byte{}, nil
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(body))

	return body, nil
}

// Caller is the account that signed the request.
func Caller(c echo.Context) (gethcommon.Address, error) {
	if caller, ok := c.Get(callerKey).(gethcommon.Address); ok {
		return caller, nil
	}

	return gethcommon.Address{}, echo.NewHTTPError(http.StatusUnauthorized, "missing signed "+CallerHeader+" header")
}
