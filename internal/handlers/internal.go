package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seera-lab/api/internal/platform/httpx"
	"github.com/seera-lab/api/internal/services"
)

const maxInternalBodySize = 16 * 1024

// InternalHandlers serves the service-to-service endpoints invoked by
// schedulers and other trusted callers. OIDC verification happens in the
// group middleware before these run.
type InternalHandlers struct {
	payments services.PaymentService
	orders   services.OrderService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(payments services.PaymentService, orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{
		payments: payments,
		orders:   orders,
	}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/reconcile", h.reconcilePayments)
	r.Get("/orders/stats", h.orderStats)
}

type reconcileRequest struct {
	OlderThan *string `json:"older_than"`
	Limit     int     `json:"limit"`
}

type reconcileResponse struct {
	Scanned  int `json:"scanned"`
	Captured int `json:"captured"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
}

func (h *InternalHandlers) reconcilePayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	cmd := services.ReconcilePaymentsCommand{}

	body, err := readLimitedBody(r, maxInternalBodySize)
	switch {
	case errors.Is(err, errEmptyBody):
		// Defaults apply.
	case err != nil:
		writeBodyError(ctx, w, err)
		return
	default:
		var req reconcileRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
		if req.OlderThan != nil {
			parsed, err := parseTimeParam(*req.OlderThan)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_older_than", "older_than must be an RFC3339 timestamp", http.StatusBadRequest))
				return
			}
			cmd.OlderThan = parsed
		}
		cmd.Limit = req.Limit
	}

	report, err := h.payments.ReconcilePending(ctx, cmd)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, reconcileResponse{
		Scanned:  report.Scanned,
		Captured: report.Captured,
		Failed:   report.Failed,
		Errors:   report.Errors,
	})
}

type internalStatsResponse struct {
	TotalOrders    int64            `json:"total_orders"`
	PendingOrders  int64            `json:"pending_orders"`
	TotalRevenue   int64            `json:"total_revenue"`
	Currency       string           `json:"currency"`
	RevenueByMonth map[string]int64 `json:"revenue_by_month"`
	GeneratedAt    string           `json:"generated_at"`
}

func (h *InternalHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	stats, err := h.orders.Stats(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, internalStatsResponse{
		TotalOrders:    stats.TotalOrders,
		PendingOrders:  stats.PendingOrders,
		TotalRevenue:   stats.TotalRevenue,
		Currency:       stats.Currency,
		RevenueByMonth: stats.RevenueByMonth,
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
	})
}
