package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/engine"
	"github.com/efreitasn/brokerledger/internal/events"
)

// tradeExecutedData is the payload of trade.executed, one per fill.
type tradeExecutedData struct {
	Symbol      string `json:"symbol"`
	BuyerID     string `json:"buyer_id"`
	SellerID    string `json:"seller_id"`
	OfferID     string `json:"offer_id"`
	BuyTradeID  string `json:"buy_trade_id"`
	SellTradeID string `json:"sell_trade_id"`
	Price       string `json:"price"`
	Quantity    int64  `json:"quantity"`
	Amount      string `json:"amount"`
}

// offerEventData is the payload of offer.placed and offer.cancelled.
type offerEventData struct {
	OfferID          string `json:"offer_id"`
	AccountID        string `json:"account_id"`
	Symbol           string `json:"symbol"`
	Price            string `json:"price"`
	Quantity         int64  `json:"quantity"`
	OriginalQuantity int64  `json:"original_quantity"`
}

// orderEventData is the payload of the order.* events.
type orderEventData struct {
	OrderID       string `json:"order_id"`
	AccountID     string `json:"account_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Mode          string `json:"mode"`
	Price         string `json:"price"`
	Quantity      int64  `json:"quantity"`
	Status        string `json:"status"`
	TradeID       string `json:"trade_id,omitempty"`
	OfferID       string `json:"offer_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// EventDispatcher turns committed ledger changes into events. Publish
// failures are logged and dropped; the change they describe has already
// been committed.
type EventDispatcher struct {
	publisher events.Publisher
	logger    *slog.Logger
}

// NewEventDispatcher creates an EventDispatcher. A nil publisher discards
// every event.
func NewEventDispatcher(publisher events.Publisher, logger *slog.Logger) *EventDispatcher {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventDispatcher{publisher: publisher, logger: logger}
}

// TradesExecuted publishes one trade.executed per fill, keyed by symbol.
func (d *EventDispatcher) TradesExecuted(ctx context.Context, buyerID string, result *engine.MatchResult) {
	for i, f := range result.Fills {
		data := tradeExecutedData{
			Symbol:      result.Symbol,
			BuyerID:     buyerID,
			SellerID:    f.Offer.AccountID,
			OfferID:     f.Offer.ID,
			BuyTradeID:  result.BuyerTrades[i].ID,
			SellTradeID: result.SellerTrades[i].ID,
			Price:       domain.FormatMoney(f.Price()),
			Quantity:    f.Quantity,
			Amount:      domain.FormatMoney(f.Cost()),
		}
		d.publish(ctx, result.Symbol, events.New(events.TypeTradeExecuted, result.ExecutedAt, data))
	}
}

// OfferPlaced publishes offer.placed.
func (d *EventDispatcher) OfferPlaced(ctx context.Context, offer *domain.SellOffer) {
	d.publish(ctx, offer.Symbol, events.New(events.TypeOfferPlaced, offer.CreatedAt, offerData(offer)))
}

// OfferCancelled publishes offer.cancelled.
func (d *EventDispatcher) OfferCancelled(ctx context.Context, offer *domain.SellOffer, at time.Time) {
	d.publish(ctx, offer.Symbol, events.New(events.TypeOfferCancelled, at, offerData(offer)))
}

// OrderPlaced publishes order.placed.
func (d *EventDispatcher) OrderPlaced(ctx context.Context, order *domain.PendingOrder) {
	d.publish(ctx, order.AccountID, events.New(events.TypeOrderPlaced, order.PlacedAt, orderData(order, nil)))
}

// OrderProcessed publishes order.completed or order.failed for an executed
// deferred order, keyed by account so an account's orders stay in order.
func (d *EventDispatcher) OrderProcessed(ctx context.Context, exec *engine.Execution) {
	order := exec.Order
	eventType := events.TypeOrderCompleted
	if order.Status == domain.OrderStatusFailed {
		eventType = events.TypeOrderFailed
	}
	at := order.PlacedAt
	if order.ProcessedAt != nil {
		at = *order.ProcessedAt
	}
	d.publish(ctx, order.AccountID, events.New(eventType, at, orderData(order, exec)))
}

func (d *EventDispatcher) publish(ctx context.Context, key string, event events.Event) {
	if err := d.publisher.Publish(ctx, key, event); err != nil {
		d.logger.Warn("event publish failed",
			slog.String("event", event.Type),
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
	}
}

func offerData(offer *domain.SellOffer) offerEventData {
	return offerEventData{
		OfferID:          offer.ID,
		AccountID:        offer.AccountID,
		Symbol:           offer.Symbol,
		Price:            domain.FormatMoney(offer.Price),
		Quantity:         offer.Quantity,
		OriginalQuantity: offer.OriginalQuantity,
	}
}

func orderData(order *domain.PendingOrder, exec *engine.Execution) orderEventData {
	data := orderEventData{
		OrderID:       order.ID,
		AccountID:     order.AccountID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Mode:          string(order.Mode),
		Price:         domain.FormatMoney(order.Price),
		Quantity:      order.Quantity,
		Status:        string(order.Status),
		FailureReason: order.FailureReason,
	}
	if exec != nil {
		if exec.Trade != nil {
			data.TradeID = exec.Trade.ID
		}
		if exec.Offer != nil {
			data.OfferID = exec.Offer.ID
		}
	}
	return data
}
