package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/service"
)

// StockHandler handles HTTP requests for stock endpoints.
type StockHandler struct {
	stocks *service.StockService
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(stocks *service.StockService) *StockHandler {
	return &StockHandler{stocks: stocks}
}

// registerStockRequest is the JSON request body for POST /stocks.
type registerStockRequest struct {
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	MarketPrice json.Number     `json:"market_price"`
	Details     json.RawMessage `json:"details,omitempty"`
}

// stockResponse is the JSON response for stock endpoints.
type stockResponse struct {
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	MarketPrice string          `json:"market_price"`
	Details     json.RawMessage `json:"details,omitempty"`
	UpdatedAt   string          `json:"updated_at"`
}

// bookResponse is the JSON response for GET /stocks/{symbol}/book.
type bookResponse struct {
	Symbol string               `json:"symbol"`
	Asks   []priceLevelResponse `json:"asks"`
}

// priceLevelResponse is a single aggregated price level.
type priceLevelResponse struct {
	Price      string `json:"price"`
	Quantity   int64  `json:"quantity"`
	OfferCount int    `json:"offer_count"`
}

// Register handles POST /stocks.
func (h *StockHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerStockRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	price, err := parseMoney("market_price", req.MarketPrice)
	if err != nil {
		mapError(w, err)
		return
	}

	stock, err := h.stocks.Register(r.Context(), service.RegisterStockRequest{
		Symbol:      req.Symbol,
		Name:        req.Name,
		MarketPrice: price,
		Details:     req.Details,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildStockResponse(stock))
}

// Get handles GET /stocks/{symbol}.
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	stock, err := h.stocks.Get(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildStockResponse(stock))
}

// GetBook handles GET /stocks/{symbol}/book.
func (h *StockHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth := service.DefaultBookDepth
	if d := r.URL.Query().Get("depth"); d != "" {
		var err error
		depth, err = strconv.Atoi(d)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "depth must be a valid integer")
			return
		}
	}

	book, err := h.stocks.Book(r.Context(), chi.URLParam(r, "symbol"), depth)
	if err != nil {
		mapError(w, err)
		return
	}

	asks := make([]priceLevelResponse, len(book.Levels))
	for i, l := range book.Levels {
		asks[i] = priceLevelResponse{
			Price:      domain.FormatMoney(l.Price),
			Quantity:   l.Quantity,
			OfferCount: l.OfferCount,
		}
	}
	if book.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	WriteJSON(w, http.StatusOK, bookResponse{Symbol: book.Symbol, Asks: asks})
}

func buildStockResponse(s *domain.Stock) stockResponse {
	return stockResponse{
		Symbol:      s.Symbol,
		Name:        s.Name,
		MarketPrice: domain.FormatMoney(s.MarketPrice),
		Details:     s.Details,
		UpdatedAt:   formatTime(s.UpdatedAt),
	}
}
