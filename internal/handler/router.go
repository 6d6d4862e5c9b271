package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/efreitasn/brokerledger/internal/service"
)

// AccountHeader carries the acting account on account-scoped routes.
const AccountHeader = "X-Account-ID"

type contextKey struct{}

// Services groups the services the router dispatches to.
type Services struct {
	Accounts *service.AccountService
	Trading  *service.TradingService
	Orders   *service.OrderService
	Stocks   *service.StockService
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware. metrics, when non-nil, is served at
// /metrics.
func NewRouter(svc Services, metrics http.Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(middleware.RequestID)
	r.Use(requestLogging(logger))
	r.Use(middleware.Recoverer)
	r.Use(contentTypeJSON)

	accountH := NewAccountHandler(svc.Accounts)
	tradingH := NewTradingHandler(svc.Trading)
	orderH := NewOrderHandler(svc.Orders)
	stockH := NewStockHandler(svc.Stocks)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Post("/accounts", accountH.Open)

	// Stock routes.
	r.Post("/stocks", stockH.Register)
	r.Get("/stocks/{symbol}", stockH.Get)
	r.Get("/stocks/{symbol}/book", stockH.GetBook)

	// Deferred orders are executed by the sweeper or by an operator, not by
	// the account that placed them.
	r.Post("/orders/{order_id}/execute", orderH.Execute)

	// Routes acting on behalf of an account.
	r.Group(func(r chi.Router) {
		r.Use(requireAccount)

		r.Get("/account", accountH.Get)
		r.Put("/account/deposit", accountH.Deposit)
		r.Get("/account/trades", accountH.Trades)

		r.Post("/trades/buy", tradingH.Buy)
		r.Post("/offers", tradingH.Sell)
		r.Delete("/offers/{offer_id}", tradingH.Cancel)

		r.Post("/orders", orderH.Place)
		r.Get("/orders/{order_id}", orderH.Get)
	})

	return r
}

// requireAccount rejects requests without a well-formed X-Account-ID and
// stores the account id in the request context.
func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(AccountHeader)
		if id == "" {
			WriteError(w, http.StatusUnauthorized, "missing_account", AccountHeader+" header is required")
			return
		}
		if !service.ValidAccountID(id) {
			WriteError(w, http.StatusBadRequest, "validation_error", AccountHeader+" must match ^[a-zA-Z0-9_-]{1,64}$")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, id)))
	})
}

// accountID returns the acting account set by requireAccount.
func accountID(r *http.Request) string {
	id, _ := r.Context().Value(contextKey{}).(string)
	return id
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("account_id", r.Header.Get(AccountHeader)),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests that carry a body. If the Content-Type header doesn't start
// with "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasBody := r.ContentLength != 0
		if hasBody && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
