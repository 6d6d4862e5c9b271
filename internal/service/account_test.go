package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/efreitasn/brokerledger/internal/domain"
)

func TestOpen_Success_WithHoldings(t *testing.T) {
	env := newTestEnv(t)
	env.registerStock(t, "ACME", "10.00")
	env.registerStock(t, "BOLT", "3.50")

	acct, err := env.accounts.Open(ctx, OpenAccountRequest{
		AccountID:      "alice",
		InitialBalance: dec("1000.00"),
		InitialHoldings: []HoldingInput{
			{Symbol: "ACME", Quantity: 10},
			{Symbol: "BOLT", Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acct.Balance.Equal(dec("1000.00")) {
		t.Errorf("balance = %s, want 1000.00", acct.Balance)
	}

	view, err := env.accounts.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Holdings) != 2 {
		t.Fatalf("holdings = %d, want 2", len(view.Holdings))
	}
	for _, h := range view.Holdings {
		if h.Unsettled != 0 || h.SellableAt != nil {
			t.Errorf("%s: granted shares must be settled, got unsettled=%d", h.Symbol, h.Unsettled)
		}
	}
}

func TestOpen_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  OpenAccountRequest
		msg  string
	}{
		{
			name: "empty id",
			req:  OpenAccountRequest{AccountID: ""},
			msg:  "account_id",
		},
		{
			name: "id with spaces",
			req:  OpenAccountRequest{AccountID: "bad id"},
			msg:  "account_id",
		},
		{
			name: "id too long",
			req:  OpenAccountRequest{AccountID: strings.Repeat("a", 65)},
			msg:  "account_id",
		},
		{
			name: "lowercase symbol",
			req: OpenAccountRequest{AccountID: "alice", InitialHoldings: []HoldingInput{
				{Symbol: "acme", Quantity: 1},
			}},
			msg: "symbol",
		},
		{
			name: "zero quantity",
			req: OpenAccountRequest{AccountID: "alice", InitialHoldings: []HoldingInput{
				{Symbol: "ACME", Quantity: 0},
			}},
			msg: "quantity",
		},
		{
			name: "duplicate symbol",
			req: OpenAccountRequest{AccountID: "alice", InitialHoldings: []HoldingInput{
				{Symbol: "ACME", Quantity: 1},
				{Symbol: "ACME", Quantity: 2},
			}},
			msg: "duplicate",
		},
		{
			name: "negative balance",
			req:  OpenAccountRequest{AccountID: "alice", InitialBalance: dec("-1.00")},
			msg:  "initial_balance",
		},
		{
			name: "fractional cents",
			req:  OpenAccountRequest{AccountID: "alice", InitialBalance: dec("1.005")},
			msg:  "initial_balance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.registerStock(t, "ACME", "10.00")

			_, err := env.accounts.Open(ctx, tt.req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(ve.Message, tt.msg) {
				t.Errorf("message %q does not mention %q", ve.Message, tt.msg)
			}
		})
	}
}

func TestOpen_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "alice", "10.00")

	_, err := env.accounts.Open(ctx, OpenAccountRequest{AccountID: "alice"})
	if !errors.Is(err, domain.ErrAccountAlreadyExists) {
		t.Fatalf("expected ErrAccountAlreadyExists, got %v", err)
	}
}

func TestOpen_UnknownStock(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.accounts.Open(ctx, OpenAccountRequest{
		AccountID:       "alice",
		InitialHoldings: []HoldingInput{{Symbol: "NOPE", Quantity: 1}},
	})
	if !errors.Is(err, domain.ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
	if _, err := env.accounts.Get(ctx, "alice"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("account must not exist after a failed open, got %v", err)
	}
}

func TestDeposit(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "alice", "10.00")

	acct, err := env.accounts.Deposit(ctx, "alice", dec("5.25"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !acct.Balance.Equal(dec("15.25")) {
		t.Errorf("balance = %s, want 15.25", acct.Balance)
	}

	if _, err := env.accounts.Deposit(ctx, "alice", dec("0")); err == nil {
		t.Error("expected error for zero deposit")
	}
	if _, err := env.accounts.Deposit(ctx, "ghost", dec("1.00")); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestTrades_Empty(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "alice", "10.00")

	trades, err := env.accounts.Trades(ctx, "alice")
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("trades = %d, want 0", len(trades))
	}
}
