package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/store"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seed runs fn in a unit of work and fails the test on error.
func seed(t *testing.T, s *Store, fn func(tx store.Tx) error) {
	t.Helper()
	if err := s.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newOffer(id, account string, qty int64, price string, at time.Time) *domain.SellOffer {
	return &domain.SellOffer{
		ID:               id,
		AccountID:        account,
		Symbol:           "AAPL",
		Quantity:         qty,
		OriginalQuantity: qty,
		Price:            dec(price),
		CreatedAt:        at,
	}
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, func(tx store.Tx) error {
		return tx.CreateAccount(ctx, &domain.Account{ID: "alice", Balance: dec("100.00"), CreatedAt: t0})
	})

	err := s.View(ctx, func(tx store.Tx) error {
		a, err := tx.GetAccount(ctx, "alice")
		if err != nil {
			return err
		}
		if !a.Balance.Equal(dec("100")) {
			t.Errorf("Balance = %s, want 100", a.Balance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithTx_RollsBackEveryWriteOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, func(tx store.Tx) error {
		if err := tx.CreateAccount(ctx, &domain.Account{ID: "alice", Balance: dec("100.00")}); err != nil {
			return err
		}
		if err := tx.CreateStock(ctx, &domain.Stock{Symbol: "AAPL", MarketPrice: dec("10.00")}); err != nil {
			return err
		}
		if err := tx.SaveHolding(ctx, &domain.Holding{AccountID: "alice", Symbol: "AAPL", Quantity: 5}); err != nil {
			return err
		}
		return tx.InsertOffer(ctx, newOffer("o1", "alice", 5, "10.00", t0))
	})

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		_ = tx.UpdateAccountBalance(ctx, "alice", dec("1.00"), t0)
		_ = tx.UpdateStockPrice(ctx, "AAPL", dec("99.00"), t0)
		_ = tx.SaveHolding(ctx, &domain.Holding{AccountID: "alice", Symbol: "AAPL", Quantity: 0, SoldQuantity: 5})
		_ = tx.SaveHolding(ctx, &domain.Holding{AccountID: "bob", Symbol: "AAPL", Quantity: 2})
		_ = tx.UpdateOfferQuantity(ctx, "o1", 2)
		_ = tx.DeleteOffer(ctx, "o1")
		_ = tx.InsertOffer(ctx, newOffer("o2", "alice", 1, "9.00", t0))
		_ = tx.InsertTrade(ctx, &domain.Trade{ID: "t1", AccountID: "alice", Symbol: "AAPL", Side: domain.SideBuy, Quantity: 1})
		_ = tx.CreateAccount(ctx, &domain.Account{ID: "bob"})
		_ = tx.InsertPendingOrder(ctx, &domain.PendingOrder{ID: "p1", Status: domain.OrderStatusPending})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = s.View(ctx, func(tx store.Tx) error {
		a, _ := tx.GetAccount(ctx, "alice")
		if !a.Balance.Equal(dec("100")) {
			t.Errorf("Balance = %s, want 100", a.Balance)
		}
		st, _ := tx.GetStock(ctx, "AAPL")
		if !st.MarketPrice.Equal(dec("10")) {
			t.Errorf("MarketPrice = %s, want 10", st.MarketPrice)
		}
		h, _ := tx.GetHolding(ctx, "alice", "AAPL")
		if h.Quantity != 5 || h.SoldQuantity != 0 {
			t.Errorf("holding = %d/%d, want 5/0", h.Quantity, h.SoldQuantity)
		}
		if _, err := tx.GetHolding(ctx, "bob", "AAPL"); !errors.Is(err, domain.ErrHoldingNotFound) {
			t.Errorf("expected bob's holding to be rolled back, got %v", err)
		}
		o, err := tx.GetOffer(ctx, "o1")
		if err != nil {
			t.Fatalf("offer o1 should be restored: %v", err)
		}
		if o.Quantity != 5 {
			t.Errorf("offer quantity = %d, want 5", o.Quantity)
		}
		if _, err := tx.GetOffer(ctx, "o2"); !errors.Is(err, domain.ErrOfferNotFound) {
			t.Errorf("expected o2 to be rolled back, got %v", err)
		}
		offers, _ := tx.ListMatchableOffers(ctx, "AAPL", dec("100"))
		if len(offers) != 1 || offers[0].ID != "o1" {
			t.Errorf("book = %v, want only o1", offers)
		}
		trades, _ := tx.ListTrades(ctx, "alice")
		if len(trades) != 0 {
			t.Errorf("expected 0 trades, got %d", len(trades))
		}
		if _, err := tx.GetAccount(ctx, "bob"); !errors.Is(err, domain.ErrAccountNotFound) {
			t.Errorf("expected bob to be rolled back, got %v", err)
		}
		if _, err := tx.GetPendingOrder(ctx, "p1"); !errors.Is(err, domain.ErrOrderNotFound) {
			t.Errorf("expected p1 to be rolled back, got %v", err)
		}
		return nil
	})
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, func(tx store.Tx) error {
		return tx.CreateAccount(ctx, &domain.Account{ID: "alice", Balance: dec("10.00")})
	})

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = s.WithTx(ctx, func(tx store.Tx) error {
			_ = tx.UpdateAccountBalance(ctx, "alice", dec("0.00"), t0)
			panic("boom")
		})
	}()

	_ = s.View(ctx, func(tx store.Tx) error {
		a, _ := tx.GetAccount(ctx, "alice")
		if !a.Balance.Equal(dec("10")) {
			t.Errorf("Balance = %s, want 10", a.Balance)
		}
		return nil
	})
}

func TestView_RejectsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.View(ctx, func(tx store.Tx) error {
		return tx.CreateAccount(ctx, &domain.Account{ID: "alice"})
	})
	if !errors.Is(err, errReadOnly) {
		t.Fatalf("expected errReadOnly, got %v", err)
	}
}

func TestWithTx_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.WithTx(ctx, func(tx store.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn should not run with a cancelled context")
	}
}

func TestGetters_ReturnCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, func(tx store.Tx) error {
		if err := tx.CreateAccount(ctx, &domain.Account{ID: "alice", Balance: dec("10.00")}); err != nil {
			return err
		}
		return tx.InsertOffer(ctx, newOffer("o1", "alice", 5, "10.00", t0))
	})

	seed(t, s, func(tx store.Tx) error {
		a, _ := tx.GetAccount(ctx, "alice")
		a.Balance = dec("0")
		o, _ := tx.GetOffer(ctx, "o1")
		o.Quantity = 1
		return nil
	})

	_ = s.View(ctx, func(tx store.Tx) error {
		a, _ := tx.GetAccount(ctx, "alice")
		if !a.Balance.Equal(dec("10")) {
			t.Errorf("Balance = %s, want 10 (getter leaked internal pointer)", a.Balance)
		}
		o, _ := tx.GetOffer(ctx, "o1")
		if o.Quantity != 5 {
			t.Errorf("offer quantity = %d, want 5 (getter leaked internal pointer)", o.Quantity)
		}
		return nil
	})
}

func TestListMatchableOffers_OrderAndPriceCap(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, func(tx store.Tx) error {
		for _, o := range []*domain.SellOffer{
			newOffer("c", "s1", 1, "12.00", t0),
			newOffer("b", "s2", 1, "12.00", t0),
			newOffer("a", "s3", 1, "12.00", t0.Add(time.Second)),
			newOffer("d", "s4", 1, "10.00", t0.Add(time.Hour)),
			newOffer("e", "s5", 1, "12.01", t0),
		} {
			if err := tx.InsertOffer(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})

	_ = s.View(ctx, func(tx store.Tx) error {
		offers, err := tx.ListMatchableOffers(ctx, "AAPL", dec("12"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"d", "b", "c", "a"}
		if len(offers) != len(want) {
			t.Fatalf("got %d offers, want %d", len(offers), len(want))
		}
		for i, id := range want {
			if offers[i].ID != id {
				t.Errorf("offers[%d] = %s, want %s", i, offers[i].ID, id)
			}
		}

		none, _ := tx.ListMatchableOffers(ctx, "MSFT", dec("100"))
		if len(none) != 0 {
			t.Errorf("expected empty book for MSFT, got %d", len(none))
		}
		return nil
	})
}

func TestBookDepth_AggregatesLevels(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, func(tx store.Tx) error {
		for i, o := range []*domain.SellOffer{
			newOffer("a", "s1", 3, "10.00", t0),
			newOffer("b", "s2", 4, "10.00", t0),
			newOffer("c", "s3", 5, "11.00", t0),
			newOffer("d", "s4", 6, "12.00", t0),
		} {
			o.CreatedAt = t0.Add(time.Duration(i) * time.Second)
			if err := tx.InsertOffer(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})

	_ = s.View(ctx, func(tx store.Tx) error {
		levels, _ := tx.BookDepth(ctx, "AAPL", 2)
		if len(levels) != 2 {
			t.Fatalf("got %d levels, want 2", len(levels))
		}
		if !levels[0].Price.Equal(dec("10")) || levels[0].Quantity != 7 || levels[0].OfferCount != 2 {
			t.Errorf("level 0 = %+v, want 10.00 × 7 over 2 offers", levels[0])
		}
		if !levels[1].Price.Equal(dec("11")) || levels[1].Quantity != 5 {
			t.Errorf("level 1 = %+v, want 11.00 × 5", levels[1])
		}
		if got, _ := tx.BookDepth(ctx, "AAPL", 0); len(got) != 0 {
			t.Errorf("BookDepth(0) returned %d levels", len(got))
		}
		return nil
	})
}

func TestBookDepth_LevelQuantitySaturates(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, func(tx store.Tx) error {
		for i, o := range []*domain.SellOffer{
			newOffer("a", "s1", math.MaxInt64/2+1, "10.00", t0),
			newOffer("b", "s2", math.MaxInt64/2+1, "10.00", t0),
		} {
			o.CreatedAt = t0.Add(time.Duration(i) * time.Second)
			if err := tx.InsertOffer(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})

	_ = s.View(ctx, func(tx store.Tx) error {
		levels, _ := tx.BookDepth(ctx, "AAPL", 1)
		if len(levels) != 1 {
			t.Fatalf("got %d levels, want 1", len(levels))
		}
		if levels[0].Quantity != math.MaxInt64 || levels[0].OfferCount != 2 {
			t.Errorf("level = %+v, want MaxInt64 over 2 offers", levels[0])
		}
		return nil
	})
}

func TestPurchasesSince_StrictAndBuyOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, func(tx store.Tx) error {
		for i, tr := range []*domain.Trade{
			{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 1, ExecutedAt: t0},
			{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 2, ExecutedAt: t0.Add(time.Hour)},
			{Symbol: "AAPL", Side: domain.SideSell, Quantity: 4, ExecutedAt: t0.Add(time.Hour)},
			{Symbol: "MSFT", Side: domain.SideBuy, Quantity: 8, ExecutedAt: t0.Add(time.Hour)},
		} {
			tr.ID = fmt.Sprintf("t%d", i)
			tr.AccountID = "alice"
			if err := tx.InsertTrade(ctx, tr); err != nil {
				return err
			}
		}
		return nil
	})

	_ = s.View(ctx, func(tx store.Tx) error {
		got, _ := tx.PurchasesSince(ctx, "alice", "AAPL", t0)
		if len(got) != 1 || got[0].Quantity != 2 {
			t.Errorf("PurchasesSince(t0) = %v, want only the 2-share lot", got)
		}
		got, _ = tx.PurchasesSince(ctx, "alice", "AAPL", t0.Add(-time.Nanosecond))
		if len(got) != 2 {
			t.Errorf("PurchasesSince(t0-1ns) returned %d lots, want 2", len(got))
		}
		return nil
	})
}

func TestDuePendingOrders(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, func(tx store.Tx) error {
		orders := []*domain.PendingOrder{
			{ID: "late", Status: domain.OrderStatusPending, CanExecuteAt: t0.Add(2 * time.Hour)},
			{ID: "b", Status: domain.OrderStatusPending, CanExecuteAt: t0},
			{ID: "a", Status: domain.OrderStatusPending, CanExecuteAt: t0},
			{ID: "done", Status: domain.OrderStatusCompleted, CanExecuteAt: t0.Add(-time.Hour)},
			{ID: "early", Status: domain.OrderStatusPending, CanExecuteAt: t0.Add(-time.Hour)},
		}
		for _, o := range orders {
			if err := tx.InsertPendingOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})

	_ = s.View(ctx, func(tx store.Tx) error {
		ids, _ := tx.DuePendingOrders(ctx, t0, 10)
		want := []string{"early", "a", "b"}
		if fmt.Sprint(ids) != fmt.Sprint(want) {
			t.Errorf("DuePendingOrders = %v, want %v", ids, want)
		}
		ids, _ = tx.DuePendingOrders(ctx, t0, 1)
		if len(ids) != 1 || ids[0] != "early" {
			t.Errorf("DuePendingOrders(limit 1) = %v, want [early]", ids)
		}
		return nil
	})
}

func TestWithTx_ConcurrentUnitsAreSerialized(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, func(tx store.Tx) error {
		return tx.CreateAccount(ctx, &domain.Account{ID: "alice", Balance: dec("0.00")})
	})

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = s.WithTx(ctx, func(tx store.Tx) error {
				a, err := tx.GetAccount(ctx, "alice")
				if err != nil {
					return err
				}
				return tx.UpdateAccountBalance(ctx, "alice", a.Balance.Add(dec("1.00")), t0)
			})
		}()
	}
	wg.Wait()

	_ = s.View(ctx, func(tx store.Tx) error {
		a, _ := tx.GetAccount(ctx, "alice")
		if !a.Balance.Equal(dec("50")) {
			t.Errorf("Balance = %s, want 50 (lost update)", a.Balance)
		}
		return nil
	})
}
