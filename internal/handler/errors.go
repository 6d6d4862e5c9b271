package handler

import (
	"errors"
	"net/http"

	"github.com/efreitasn/brokerledger/internal/domain"
)

// errorMappings ties a domain error to its HTTP status and message. The
// error code sent to clients is the sentinel's own text.
var errorMappings = []struct {
	err     error
	status  int
	message string
}{
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "Account balance does not cover the cost"},
	{domain.ErrInsufficientStock, http.StatusUnprocessableEntity, "Account does not hold enough available shares"},
	{domain.ErrInsufficientLiquidity, http.StatusUnprocessableEntity, "Not enough shares offered at or below the price"},
	{domain.ErrPositionLimitExceeded, http.StatusUnprocessableEntity, "Position would exceed the largest share count the ledger can hold"},
	{domain.ErrNotYetEligible, http.StatusConflict, "Order cannot be executed yet"},
	{domain.ErrAlreadyProcessed, http.StatusConflict, "Order has already been processed"},
	{domain.ErrAlreadyMatched, http.StatusConflict, "Offer has already been partially bought"},
	{domain.ErrAccountAlreadyExists, http.StatusConflict, "Account already exists"},
	{domain.ErrStockAlreadyExists, http.StatusConflict, "Stock already exists"},
	{domain.ErrAccountNotFound, http.StatusNotFound, "Account not found"},
	{domain.ErrStockNotFound, http.StatusNotFound, "Stock not found"},
	{domain.ErrOfferNotFound, http.StatusNotFound, "Offer not found"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "Order not found"},
	{domain.ErrRetryable, http.StatusServiceUnavailable, "Ledger is busy, retry the request"},
}

// mapError maps domain errors to HTTP responses. Consistency errors and
// anything unrecognised become a generic 500; the engine has already
// logged them with their context.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	var windowErr *domain.SettlementWindowError
	if errors.As(err, &windowErr) {
		WriteError(w, http.StatusUnprocessableEntity, domain.ErrSettlementWindowActive.Error(), windowErr.Error())
		return
	}

	var consistencyErr *domain.ConsistencyError
	if errors.As(err, &consistencyErr) {
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			WriteError(w, m.status, m.err.Error(), m.message)
			return
		}
	}
	WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
}
