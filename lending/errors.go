package lending

import (
	"errors"
	"fmt"
	"time"

	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/tenant"
)

var (
	ErrTenantMismatch = tenant.ErrTenantMismatch
	ErrNotFound       = db.ErrNotFound

	ErrInsufficientAvailability = errors.New("insufficient availability")
	ErrBorrowerBlacklisted      = errors.New("borrower is blacklisted")
	ErrAlreadyReturned          = errors.New("lending already returned")
	ErrInvalidTransition        = errors.New("invalid state transition")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrBlacklistConflict        = errors.New("borrower already has an active blacklist entry")
	ErrApprovalRequired         = errors.New("approval required, submit an approval request")
	ErrLendingLimitReached      = errors.New("borrower reached the maximum number of open lendings")
	ErrRenewalLimitReached      = errors.New("renewal limit reached")
	ErrInvalidDueDate           = errors.New("invalid due date")
	ErrInvalidQuantity          = errors.New("quantity must be at least 1")
	ErrInvalidInput             = errors.New("invalid input")
)

// BlacklistedError tells the borrower until when they are suspended.
// errors.Is(err, ErrBorrowerBlacklisted) holds for it.
type BlacklistedError struct {
	UserID       string
	BlockedUntil time.Time
	Reason       string
}

func (e *BlacklistedError) Error() string {
	return fmt.Sprintf("%s until %s: %s", ErrBorrowerBlacklisted, e.BlockedUntil.Format(time.RFC3339), e.Reason)
}

func (e *BlacklistedError) Unwrap() error { return ErrBorrowerBlacklisted }
