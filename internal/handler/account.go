package handler

import (
	"encoding/json"
	"net/http"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/engine"
	"github.com/efreitasn/brokerledger/internal/service"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// openAccountRequest is the JSON request body for POST /accounts.
type openAccountRequest struct {
	AccountID       string         `json:"account_id"`
	InitialBalance  json.Number    `json:"initial_balance"`
	InitialHoldings []holdingInput `json:"initial_holdings"`
}

// holdingInput is a single holding in the open request.
type holdingInput struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// depositRequest is the JSON request body for PUT /account/deposit.
type depositRequest struct {
	Amount json.Number `json:"amount"`
}

// accountResponse is the JSON response for account endpoints.
type accountResponse struct {
	AccountID string            `json:"account_id"`
	Balance   string            `json:"balance"`
	Holdings  []holdingResponse `json:"holdings,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

// holdingResponse is a single position in the account response.
type holdingResponse struct {
	Symbol            string  `json:"symbol"`
	Quantity          int64   `json:"quantity"`
	SoldQuantity      int64   `json:"sold_quantity"`
	UnsettledQuantity int64   `json:"unsettled_quantity"`
	SellableAt        *string `json:"sellable_at"`
}

// tradeResponse is a single trade record.
type tradeResponse struct {
	TradeID        string `json:"trade_id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Price          string `json:"price"`
	Quantity       int64  `json:"quantity"`
	Amount         string `json:"amount"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
	OfferID        string `json:"offer_id,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
	Status         string `json:"status"`
	ExecutedAt     string `json:"executed_at"`
}

// Open handles POST /accounts.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	balance, err := parseMoney("initial_balance", req.InitialBalance)
	if err != nil {
		mapError(w, err)
		return
	}
	holdings := make([]service.HoldingInput, len(req.InitialHoldings))
	for i, hi := range req.InitialHoldings {
		holdings[i] = service.HoldingInput{Symbol: hi.Symbol, Quantity: hi.Quantity}
	}

	account, err := h.accounts.Open(r.Context(), service.OpenAccountRequest{
		AccountID:       req.AccountID,
		InitialBalance:  balance,
		InitialHoldings: holdings,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	view, err := h.accounts.Get(r.Context(), account.ID)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildAccountResponse(view))
}

// Get handles GET /account.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.accounts.Get(r.Context(), accountID(r))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(view))
}

// Deposit handles PUT /account/deposit.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	amount, err := parseMoney("amount", req.Amount)
	if err != nil {
		mapError(w, err)
		return
	}

	account, err := h.accounts.Deposit(r.Context(), accountID(r), amount)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, accountResponse{
		AccountID: account.ID,
		Balance:   domain.FormatMoney(account.Balance),
		CreatedAt: formatTime(account.CreatedAt),
		UpdatedAt: formatTime(account.UpdatedAt),
	})
}

// Trades handles GET /account/trades.
func (h *AccountHandler) Trades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.accounts.Trades(r.Context(), accountID(r))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": buildTradeResponses(trades)})
}

func buildAccountResponse(view *engine.AccountView) accountResponse {
	holdings := make([]holdingResponse, len(view.Holdings))
	for i, hv := range view.Holdings {
		holdings[i] = holdingResponse{
			Symbol:            hv.Symbol,
			Quantity:          hv.Quantity,
			SoldQuantity:      hv.SoldQuantity,
			UnsettledQuantity: hv.Unsettled,
			SellableAt:        formatTimePtr(hv.SellableAt),
		}
	}
	return accountResponse{
		AccountID: view.Account.ID,
		Balance:   domain.FormatMoney(view.Account.Balance),
		Holdings:  holdings,
		CreatedAt: formatTime(view.Account.CreatedAt),
		UpdatedAt: formatTime(view.Account.UpdatedAt),
	}
}

// buildTradeResponses converts domain trades to response trades.
func buildTradeResponses(trades []*domain.Trade) []tradeResponse {
	result := make([]tradeResponse, len(trades))
	for i, t := range trades {
		result[i] = tradeResponse{
			TradeID:        t.ID,
			Symbol:         t.Symbol,
			Side:           string(t.Side),
			Price:          domain.FormatMoney(t.Price),
			Quantity:       t.Quantity,
			Amount:         domain.FormatMoney(t.Amount()),
			CounterpartyID: t.CounterpartyID,
			OfferID:        t.OfferID,
			OrderID:        t.OrderID,
			Status:         string(t.Status),
			ExecutedAt:     formatTime(t.ExecutedAt),
		}
	}
	return result
}
