package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/store"
)

// HoldingTracker owns share positions and the resale restriction: shares
// bought at T may not be sold before T + window. Restriction is tracked
// per purchase lot, so settled shares stay sellable while newer purchases
// of the same stock are still inside their window.
type HoldingTracker struct {
	window time.Duration
}

// Unsettled returns how many of the account's shares in symbol were bought
// within the window ending at now, and when the earliest of those lots
// becomes sellable. A lot bought at T is settled from T + window onward.
func (h *HoldingTracker) Unsettled(ctx context.Context, tx store.Tx, accountID, symbol string, now time.Time) (int64, time.Time, error) {
	lots, err := tx.PurchasesSince(ctx, accountID, symbol, now.Add(-h.window))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("list purchases: %w", err)
	}
	var total int64
	var eligibleAt time.Time
	for i, lot := range lots {
		// Saturates at MaxInt64.
		if total, err = domain.AddShares(total, lot.Quantity); err != nil {
			total = math.MaxInt64
		}
		if at := lot.ExecutedAt.Add(h.window); i == 0 || at.Before(eligibleAt) {
			eligibleAt = at
		}
	}
	return total, eligibleAt, nil
}

// CheckSellable verifies the account can put quantity shares of symbol up
// for sale at now and returns the locked holding.
func (h *HoldingTracker) CheckSellable(ctx context.Context, tx store.Tx, accountID, symbol string, quantity int64, now time.Time) (*domain.Holding, error) {
	holding, err := tx.GetHolding(ctx, accountID, symbol)
	if errors.Is(err, domain.ErrHoldingNotFound) {
		return nil, domain.ErrInsufficientStock
	}
	if err != nil {
		return nil, fmt.Errorf("get holding: %w", err)
	}
	if holding.Quantity < quantity {
		return nil, domain.ErrInsufficientStock
	}

	unsettled, eligibleAt, err := h.Unsettled(ctx, tx, accountID, symbol, now)
	if err != nil {
		return nil, err
	}
	if holding.Quantity-unsettled < quantity {
		return nil, &domain.SettlementWindowError{
			Symbol:     symbol,
			Unsettled:  unsettled,
			EligibleAt: eligibleAt,
		}
	}
	return holding, nil
}

// Reserve moves quantity shares from the available pool to the listed pool.
func (h *HoldingTracker) Reserve(ctx context.Context, tx store.Tx, holding *domain.Holding, quantity int64, now time.Time) error {
	sold, err := domain.AddShares(holding.SoldQuantity, quantity)
	if err != nil {
		return err
	}
	holding.Quantity -= quantity
	holding.SoldQuantity = sold
	holding.UpdatedAt = now
	return tx.SaveHolding(ctx, holding)
}

// Release returns quantity listed shares to the available pool.
func (h *HoldingTracker) Release(ctx context.Context, tx store.Tx, accountID, symbol string, quantity int64, now time.Time) error {
	holding, err := h.listed(ctx, tx, "release listed shares", accountID, symbol, quantity)
	if err != nil {
		return err
	}
	available, err := domain.AddShares(holding.Quantity, quantity)
	if err != nil {
		return err
	}
	holding.SoldQuantity -= quantity
	holding.Quantity = available
	holding.UpdatedAt = now
	return tx.SaveHolding(ctx, holding)
}

// Deliver removes quantity listed shares from the seller's position once a
// buyer has taken them.
func (h *HoldingTracker) Deliver(ctx context.Context, tx store.Tx, sellerID, symbol string, quantity int64, now time.Time) error {
	holding, err := h.listed(ctx, tx, "deliver shares", sellerID, symbol, quantity)
	if err != nil {
		return err
	}
	holding.SoldQuantity -= quantity
	holding.UpdatedAt = now
	return tx.SaveHolding(ctx, holding)
}

// CheckAcquirable fails with ErrPositionLimitExceeded when crediting
// quantity shares would overflow the account's position in symbol.
func (h *HoldingTracker) CheckAcquirable(ctx context.Context, tx store.Tx, accountID, symbol string, quantity int64) error {
	holding, err := tx.GetHolding(ctx, accountID, symbol)
	if errors.Is(err, domain.ErrHoldingNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get holding: %w", err)
	}
	if !holding.CanAcquire(quantity) {
		return domain.ErrPositionLimitExceeded
	}
	return nil
}

// Acquire credits quantity shares to the account, opening the position if
// it has never held the stock.
func (h *HoldingTracker) Acquire(ctx context.Context, tx store.Tx, accountID, symbol string, quantity int64, now time.Time) error {
	holding, err := tx.GetHolding(ctx, accountID, symbol)
	if errors.Is(err, domain.ErrHoldingNotFound) {
		holding = &domain.Holding{AccountID: accountID, Symbol: symbol, PurchaseDate: now}
	} else if err != nil {
		return fmt.Errorf("get holding: %w", err)
	}
	if !holding.CanAcquire(quantity) {
		return domain.ErrPositionLimitExceeded
	}
	holding.Quantity += quantity
	holding.UpdatedAt = now
	return tx.SaveHolding(ctx, holding)
}

// listed loads a holding that must have at least quantity shares listed.
func (h *HoldingTracker) listed(ctx context.Context, tx store.Tx, op, accountID, symbol string, quantity int64) (*domain.Holding, error) {
	holding, err := tx.GetHolding(ctx, accountID, symbol)
	if errors.Is(err, domain.ErrHoldingNotFound) {
		return nil, &domain.ConsistencyError{
			Op:     op,
			Detail: fmt.Sprintf("account %s has no %s holding", accountID, symbol),
			Err:    domain.ErrHoldingVanished,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("get holding: %w", err)
	}
	if holding.SoldQuantity < quantity {
		return nil, &domain.ConsistencyError{
			Op:     op,
			Detail: fmt.Sprintf("account %s lists %d %s, need %d", accountID, holding.SoldQuantity, symbol, quantity),
			Err:    domain.ErrSoldQuantityMismatch,
		}
	}
	return holding, nil
}
