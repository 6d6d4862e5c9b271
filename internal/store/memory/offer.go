package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
)

func (t *tx) ListMatchableOffers(ctx context.Context, symbol string, maxPrice decimal.Decimal) ([]*domain.SellOffer, error) {
	result := make([]*domain.SellOffer, 0)
	b, ok := t.s.books[symbol]
	if !ok {
		return result, nil
	}
	b.upTo(maxPrice, func(o *domain.SellOffer) {
		c := *o
		result = append(result, &c)
	})
	return result, nil
}

func (t *tx) GetOffer(ctx context.Context, id string) (*domain.SellOffer, error) {
	o, ok := t.s.offers[id]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	c := *o
	return &c, nil
}

func (t *tx) InsertOffer(ctx context.Context, o *domain.SellOffer) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, exists := t.s.offers[o.ID]; exists {
		return fmt.Errorf("offer %s already exists", o.ID)
	}
	c := *o
	t.s.offers[o.ID] = &c
	b := t.s.book(o.Symbol)
	b.insert(&c)
	t.record(func() {
		b.remove(&c)
		delete(t.s.offers, c.ID)
	})
	return nil
}

func (t *tx) UpdateOfferQuantity(ctx context.Context, id string, quantity int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	o, ok := t.s.offers[id]
	if !ok {
		return domain.ErrOfferNotFound
	}
	prev := o.Quantity
	o.Quantity = quantity
	t.record(func() { o.Quantity = prev })
	return nil
}

func (t *tx) DeleteOffer(ctx context.Context, id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	o, ok := t.s.offers[id]
	if !ok {
		return domain.ErrOfferNotFound
	}
	b := t.s.book(o.Symbol)
	b.remove(o)
	delete(t.s.offers, id)
	t.record(func() {
		t.s.offers[id] = o
		b.insert(o)
	})
	return nil
}

func (t *tx) BookDepth(ctx context.Context, symbol string, levels int) ([]domain.PriceLevel, error) {
	b, ok := t.s.books[symbol]
	if !ok {
		return []domain.PriceLevel{}, nil
	}
	return b.topLevels(levels), nil
}
