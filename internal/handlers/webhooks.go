package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seera-lab/api/internal/platform/httpx"
	"github.com/seera-lab/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// WebhookHandlers receives asynchronous gateway notifications. Signature
// verification happens in the group middleware before these run.
type WebhookHandlers struct {
	payments services.PaymentService
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{
		payments: payments,
		logger:   func(context.Context, string, map[string]any) {},
	}
}

// WithLogger replaces the no-op event logger.
func (h *WebhookHandlers) WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) *WebhookHandlers {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/tap", h.tapCharge)
}

type tapWebhookPayload struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Metadata struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
}

func (h *WebhookHandlers) tapCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var payload tapWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	h.logger(ctx, "webhook.tap.received", map[string]any{
		"charge": payload.ID,
		"status": payload.Status,
	})

	err = h.payments.HandleGatewayWebhook(ctx, services.GatewayWebhookEvent{
		ChargeID: strings.TrimSpace(payload.ID),
		Status:   payload.Status,
		OrderID:  payload.Metadata.OrderID,
		Raw:      raw,
	})
	if err != nil {
		if errors.Is(err, services.ErrPaymentInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		// Non-2xx makes the gateway retry later.
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to apply charge update", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}
