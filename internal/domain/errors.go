package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidAssets      = errors.New("invalid assets")
	ErrLengthMismatch     = errors.New("length mismatch")
	ErrInvalidTimestamp   = errors.New("invalid timestamp")
	ErrAssetNotFound      = errors.New("asset not found")
	ErrStaleOrMissing     = errors.New("stale or missing price")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	ErrInvalidConfig  = errors.New("invalid config")
	ErrInvalidPrice   = errors.New("invalid price")
	ErrOracleNotFound = errors.New("oracle not found")
	ErrNoPendingAdmin = errors.New("no pending admin")
)

// Error carries the failing operation next to one of the sentinel kinds above.
type Error struct {
	Op   string
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func Errorf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func E(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// IsReadMiss reports the expected read-path failures a consumer probing an
// unconfigured or temporarily stale asset will see.
func IsReadMiss(err error) bool {
	return errors.Is(err, ErrAssetNotFound) || errors.Is(err, ErrStaleOrMissing)
}

// KindOf returns the sentinel behind err, or nil when err is not a domain error.
func KindOf(err error) error {
	for _, k := range []error{
		ErrAlreadyInitialized, ErrNotInitialized, ErrUnauthorized, ErrInvalidAssets,
		ErrLengthMismatch, ErrInvalidTimestamp, ErrAssetNotFound, ErrStaleOrMissing,
		ErrArithmeticOverflow, ErrInvalidConfig, ErrInvalidPrice, ErrOracleNotFound,
		ErrNoPendingAdmin, ErrInvalidAssetID,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
