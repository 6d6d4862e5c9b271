package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/store"
)

// Settler applies planned fills to balances, holdings and the sell book
// inside the caller's unit of work. Any error leaves the unit of work to be
// rolled back; the Settler never commits partial results.
type Settler struct {
	book     *SellBook
	holdings *HoldingTracker
}

// Settle debits the buyer for every fill, credits each seller, moves the
// shares and appends a BUY and a SELL trade per fill. Funds are checked
// before any offer is touched.
func (s *Settler) Settle(ctx context.Context, tx store.Tx, buyerID, symbol string, fills []Fill, now time.Time) (*MatchResult, error) {
	result := &MatchResult{
		Symbol:       symbol,
		Fills:        fills,
		TotalCost:    decimal.Zero,
		BuyerTrades:  make([]*domain.Trade, 0, len(fills)),
		SellerTrades: make([]*domain.Trade, 0, len(fills)),
		ExecutedAt:   now,
	}
	for _, f := range fills {
		result.TotalQuantity += f.Quantity
		result.TotalCost = result.TotalCost.Add(f.Cost())
	}

	if err := tx.LockAccounts(ctx, participants(buyerID, fills)); err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}

	buyer, err := tx.GetAccount(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("get buyer: %w", err)
	}
	if buyer.Balance.LessThan(result.TotalCost) {
		return nil, domain.ErrInsufficientFunds
	}
	if err := s.holdings.CheckAcquirable(ctx, tx, buyerID, symbol, result.TotalQuantity); err != nil {
		return nil, err
	}
	if err := tx.UpdateAccountBalance(ctx, buyerID, buyer.Balance.Sub(result.TotalCost), now); err != nil {
		return nil, fmt.Errorf("debit buyer: %w", err)
	}

	for _, f := range fills {
		offerID := f.Offer.ID
		sellerID := f.Offer.AccountID

		if err := s.holdings.Deliver(ctx, tx, sellerID, symbol, f.Quantity, now); err != nil {
			return nil, err
		}
		if err := s.book.Reduce(ctx, tx, f.Offer, f.Quantity); err != nil {
			return nil, err
		}

		seller, err := tx.GetAccount(ctx, sellerID)
		if err != nil {
			return nil, &domain.ConsistencyError{Op: "credit seller", Detail: "offer " + offerID, Err: err}
		}
		if err := tx.UpdateAccountBalance(ctx, sellerID, seller.Balance.Add(f.Cost()), now); err != nil {
			return nil, fmt.Errorf("credit seller: %w", err)
		}

		buy := &domain.Trade{
			ID:             uuid.NewString(),
			AccountID:      buyerID,
			CounterpartyID: sellerID,
			Symbol:         symbol,
			Side:           domain.SideBuy,
			Quantity:       f.Quantity,
			Price:          f.Price(),
			Status:         domain.TradeStatusCompleted,
			OfferID:        offerID,
			ExecutedAt:     now,
		}
		sell := &domain.Trade{
			ID:             uuid.NewString(),
			AccountID:      sellerID,
			CounterpartyID: buyerID,
			Symbol:         symbol,
			Side:           domain.SideSell,
			Quantity:       f.Quantity,
			Price:          f.Price(),
			Status:         domain.TradeStatusCompleted,
			OfferID:        offerID,
			ExecutedAt:     now,
		}
		for _, t := range []*domain.Trade{buy, sell} {
			if err := tx.InsertTrade(ctx, t); err != nil {
				return nil, fmt.Errorf("insert trade: %w", err)
			}
		}
		result.BuyerTrades = append(result.BuyerTrades, buy)
		result.SellerTrades = append(result.SellerTrades, sell)
	}

	if err := s.holdings.Acquire(ctx, tx, buyerID, symbol, result.TotalQuantity, now); err != nil {
		return nil, err
	}
	if len(fills) > 0 {
		last := fills[len(fills)-1]
		if err := tx.UpdateStockPrice(ctx, symbol, last.Price(), now); err != nil {
			return nil, fmt.Errorf("update market price: %w", err)
		}
	}
	return result, nil
}

// participants returns the buyer and every seller, deduplicated and sorted
// so concurrent settlements lock accounts in the same order.
func participants(buyerID string, fills []Fill) []string {
	seen := map[string]bool{buyerID: true}
	ids := []string{buyerID}
	for _, f := range fills {
		if !seen[f.Offer.AccountID] {
			seen[f.Offer.AccountID] = true
			ids = append(ids, f.Offer.AccountID)
		}
	}
	sort.Strings(ids)
	return ids
}
