package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/engine"
	"github.com/efreitasn/brokerledger/internal/service"
)

// TradingHandler handles HTTP requests for buys and sell offers.
type TradingHandler struct {
	trading *service.TradingService
}

// NewTradingHandler creates a new TradingHandler.
func NewTradingHandler(trading *service.TradingService) *TradingHandler {
	return &TradingHandler{trading: trading}
}

// tradeRequest is the JSON request body for POST /trades/buy and POST /offers.
type tradeRequest struct {
	Symbol   string      `json:"symbol"`
	Quantity int64       `json:"quantity"`
	Price    json.Number `json:"price"`
}

// buyResponse is the JSON response for POST /trades/buy.
type buyResponse struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	TotalCost    string          `json:"total_cost"`
	AveragePrice string          `json:"average_price"`
	Fills        []fillResponse  `json:"fills"`
	Trades       []tradeResponse `json:"trades"`
	ExecutedAt   string          `json:"executed_at"`
}

// fillResponse is one offer consumed by a buy.
type fillResponse struct {
	OfferID  string `json:"offer_id"`
	SellerID string `json:"seller_id"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

// offerResponse is the JSON response for offer endpoints.
type offerResponse struct {
	OfferID          string `json:"offer_id"`
	AccountID        string `json:"account_id"`
	Symbol           string `json:"symbol"`
	Price            string `json:"price"`
	Quantity         int64  `json:"quantity"`
	OriginalQuantity int64  `json:"original_quantity"`
	CreatedAt        string `json:"created_at"`
}

// Buy handles POST /trades/buy.
func (h *TradingHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	price, err := parseMoney("price", req.Price)
	if err != nil {
		mapError(w, err)
		return
	}

	buyer := accountID(r)
	result, err := h.trading.Buy(r.Context(), buyer, req.Symbol, req.Quantity, price)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildBuyResponse(result))
}

// Sell handles POST /offers.
func (h *TradingHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	price, err := parseMoney("price", req.Price)
	if err != nil {
		mapError(w, err)
		return
	}

	offer, err := h.trading.Sell(r.Context(), accountID(r), req.Symbol, req.Quantity, price)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildOfferResponse(offer))
}

// Cancel handles DELETE /offers/{offer_id}.
func (h *TradingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	offer, err := h.trading.Cancel(r.Context(), accountID(r), chi.URLParam(r, "offer_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOfferResponse(offer))
}

func buildBuyResponse(result *engine.MatchResult) buyResponse {
	fills := make([]fillResponse, len(result.Fills))
	for i, f := range result.Fills {
		fills[i] = fillResponse{
			OfferID:  f.Offer.ID,
			SellerID: f.Offer.AccountID,
			Price:    domain.FormatMoney(f.Price()),
			Quantity: f.Quantity,
		}
	}
	return buyResponse{
		Symbol:       result.Symbol,
		Quantity:     result.TotalQuantity,
		TotalCost:    domain.FormatMoney(result.TotalCost),
		AveragePrice: domain.FormatMoney(result.AveragePrice()),
		Fills:        fills,
		Trades:       buildTradeResponses(result.BuyerTrades),
		ExecutedAt:   formatTime(result.ExecutedAt),
	}
}

func buildOfferResponse(o *domain.SellOffer) offerResponse {
	return offerResponse{
		OfferID:          o.ID,
		AccountID:        o.AccountID,
		Symbol:           o.Symbol,
		Price:            domain.FormatMoney(o.Price),
		Quantity:         o.Quantity,
		OriginalQuantity: o.OriginalQuantity,
		CreatedAt:        formatTime(o.CreatedAt),
	}
}
