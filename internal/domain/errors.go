package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountAlreadyExists = errors.New("account_already_exists")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrStockAlreadyExists   = errors.New("stock_already_exists")
	ErrStockNotFound        = errors.New("stock_not_found")
	ErrOfferNotFound        = errors.New("offer_not_found")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrHoldingNotFound      = errors.New("holding_not_found")

	ErrInsufficientFunds      = errors.New("insufficient_funds")
	ErrInsufficientStock      = errors.New("insufficient_stock")
	ErrInsufficientLiquidity  = errors.New("insufficient_liquidity")
	ErrSettlementWindowActive = errors.New("settlement_window_active")
	ErrNotYetEligible         = errors.New("not_yet_eligible")
	ErrAlreadyProcessed       = errors.New("already_processed")
	ErrAlreadyMatched         = errors.New("already_matched")
	ErrPositionLimitExceeded  = errors.New("position_limit_exceeded")

	ErrSoldQuantityMismatch = errors.New("sold_quantity_mismatch")
	ErrOfferVanished        = errors.New("offer_vanished")
	ErrHoldingVanished      = errors.New("holding_vanished")

	// ErrRetryable marks lock timeouts, deadlocks and serialization failures.
	// Callers may resubmit; the ledger never retries on its own.
	ErrRetryable = errors.New("retryable")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConsistencyError reports ledger state that contradicts itself, such as a
// sell offer whose seller no longer has the listed shares reserved. It is a
// defect, not a user error.
type ConsistencyError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ConsistencyError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Detail)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// SettlementWindowError is returned when a sale would dip into shares whose
// purchase has not yet cleared the settlement window.
type SettlementWindowError struct {
	Symbol     string
	Unsettled  int64
	EligibleAt time.Time // when the earliest unsettled lot becomes sellable
}

func (e *SettlementWindowError) Error() string {
	return fmt.Sprintf("%s: %d %s shares unsettled until %s",
		ErrSettlementWindowActive, e.Unsettled, e.Symbol, e.EligibleAt.UTC().Format(time.RFC3339))
}

func (e *SettlementWindowError) Is(target error) bool {
	return target == ErrSettlementWindowActive
}
