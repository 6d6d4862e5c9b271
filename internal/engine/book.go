package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/store"
)

// SellBook manages resting sell offers. It holds no state of its own; every
// call works inside the caller's unit of work.
type SellBook struct{}

// Matchable returns the offers for symbol priced at or below maxPrice,
// best first: price ascending, then created_at ascending, then id
// ascending. The rows stay locked until the unit of work ends.
func (b *SellBook) Matchable(ctx context.Context, tx store.Tx, symbol string, maxPrice decimal.Decimal) ([]*domain.SellOffer, error) {
	offers, err := tx.ListMatchableOffers(ctx, symbol, maxPrice)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	sort.SliceStable(offers, func(i, j int) bool { return domain.OfferLess(offers[i], offers[j]) })
	return offers, nil
}

// List places a new offer for quantity shares at price. The caller must
// already have reserved the shares.
func (b *SellBook) List(ctx context.Context, tx store.Tx, accountID, symbol string, quantity int64, price decimal.Decimal, now time.Time) (*domain.SellOffer, error) {
	offer := &domain.SellOffer{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Symbol:           symbol,
		Quantity:         quantity,
		OriginalQuantity: quantity,
		Price:            price,
		CreatedAt:        now,
	}
	if err := tx.InsertOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("insert offer: %w", err)
	}
	return offer, nil
}

// Reduce takes amount shares off offer, deleting it once nothing remains.
// offer.Quantity is updated to the new remainder.
func (b *SellBook) Reduce(ctx context.Context, tx store.Tx, offer *domain.SellOffer, amount int64) error {
	if amount <= 0 || amount > offer.Quantity {
		return &domain.ConsistencyError{
			Op:     "reduce offer",
			Detail: fmt.Sprintf("offer %s has %d remaining, asked to take %d", offer.ID, offer.Quantity, amount),
			Err:    domain.ErrOfferVanished,
		}
	}

	remaining := offer.Quantity - amount
	var err error
	if remaining == 0 {
		err = tx.DeleteOffer(ctx, offer.ID)
	} else {
		err = tx.UpdateOfferQuantity(ctx, offer.ID, remaining)
	}
	if errors.Is(err, domain.ErrOfferNotFound) {
		return &domain.ConsistencyError{Op: "reduce offer", Detail: "offer " + offer.ID, Err: domain.ErrOfferVanished}
	}
	if err != nil {
		return fmt.Errorf("reduce offer %s: %w", offer.ID, err)
	}
	offer.Quantity = remaining
	return nil
}

// Withdraw removes an untouched offer owned by accountID. Offers owned by
// someone else are reported as not found. Once any share of an offer has
// been bought it can no longer be withdrawn.
func (b *SellBook) Withdraw(ctx context.Context, tx store.Tx, accountID, offerID string) (*domain.SellOffer, error) {
	offer, err := tx.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.AccountID != accountID {
		return nil, domain.ErrOfferNotFound
	}
	if offer.Consumed() {
		return nil, domain.ErrAlreadyMatched
	}
	if err := tx.DeleteOffer(ctx, offer.ID); err != nil {
		return nil, fmt.Errorf("delete offer: %w", err)
	}
	return offer, nil
}

// Depth returns up to levels aggregated price levels, lowest price first.
func (b *SellBook) Depth(ctx context.Context, tx store.Tx, symbol string, levels int) ([]domain.PriceLevel, error) {
	return tx.BookDepth(ctx, symbol, levels)
}
