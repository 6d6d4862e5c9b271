package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/engine"
	"github.com/efreitasn/brokerledger/internal/service"
)

// OrderHandler handles HTTP requests for deferred order endpoints.
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// placeOrderRequest is the JSON request body for POST /orders.
type placeOrderRequest struct {
	Symbol    string       `json:"symbol"`
	Side      string       `json:"side"`
	OrderMode string       `json:"order_mode"`
	Quantity  int64        `json:"quantity"`
	Price     *json.Number `json:"price"`
}

// orderResponse is the JSON response for order endpoints.
type orderResponse struct {
	OrderID       string  `json:"order_id"`
	AccountID     string  `json:"account_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	OrderMode     string  `json:"order_mode"`
	Price         string  `json:"price"`
	Quantity      int64   `json:"quantity"`
	Escrow        string  `json:"escrow"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	CanExecuteAt  string  `json:"can_execute_at"`
	ProcessedAt   *string `json:"processed_at"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

// executionResponse is the JSON response for POST /orders/{order_id}/execute.
type executionResponse struct {
	Order orderResponse  `json:"order"`
	Trade *tradeResponse `json:"trade,omitempty"`
	Offer *offerResponse `json:"offer,omitempty"`
}

// Place handles POST /orders.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var price *decimal.Decimal
	if req.Price != nil {
		p, err := parseMoney("price", *req.Price)
		if err != nil {
			mapError(w, err)
			return
		}
		price = &p
	}

	order, err := h.orders.Place(r.Context(), service.PlaceOrderRequest{
		AccountID: accountID(r),
		Symbol:    req.Symbol,
		Side:      domain.Side(req.Side),
		Mode:      domain.OrderMode(req.OrderMode),
		Quantity:  req.Quantity,
		Price:     price,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildOrderResponse(order))
}

// Get handles GET /orders/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), accountID(r), chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// Execute handles POST /orders/{order_id}/execute. An order that fails at
// execution is stored as FAILED and the failure is reported as the error.
func (h *OrderHandler) Execute(w http.ResponseWriter, r *http.Request) {
	exec, err := h.orders.Execute(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildExecutionResponse(exec))
}

func buildOrderResponse(o *domain.PendingOrder) orderResponse {
	return orderResponse{
		OrderID:       o.ID,
		AccountID:     o.AccountID,
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		OrderMode:     string(o.Mode),
		Price:         domain.FormatMoney(o.Price),
		Quantity:      o.Quantity,
		Escrow:        domain.FormatMoney(o.Escrow),
		Status:        string(o.Status),
		CreatedAt:     formatTime(o.PlacedAt),
		CanExecuteAt:  formatTime(o.CanExecuteAt),
		ProcessedAt:   formatTimePtr(o.ProcessedAt),
		FailureReason: o.FailureReason,
	}
}

func buildExecutionResponse(exec *engine.Execution) executionResponse {
	resp := executionResponse{Order: buildOrderResponse(exec.Order)}
	if exec.Trade != nil {
		resp.Trade = &buildTradeResponses([]*domain.Trade{exec.Trade})[0]
	}
	if exec.Offer != nil {
		offer := buildOfferResponse(exec.Offer)
		resp.Offer = &offer
	}
	return resp
}
