package common

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrAssetNotChargeable    = errors.New("asset not chargeable")
	ErrPaymentMismatch       = errors.New("payment mismatch")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrTransferFailure       = errors.New("transfer failure")
	ErrInvalidState          = errors.New("invalid state")
	ErrAlreadyInitialized    = errors.New("already initialized")
	ErrNotInitialized        = errors.New("not initialized")
	ErrNotFound              = errors.New("not found")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrOverflow              = errors.New("amount overflow")
)

// ErrInvalidStep is a step submission that violates the round protocol.
// It matches ErrInvalidState under errors.Is.
var ErrInvalidStep = fmt.Errorf("%w: invalid step", ErrInvalidState)
