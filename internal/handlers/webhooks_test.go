package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/seera-lab/api/internal/services"
)

func TestWebhookHandlersTapChargeForwardsEvent(t *testing.T) {
	router := chi.NewRouter()
	var captured services.GatewayWebhookEvent
	handler := NewWebhookHandlers(&stubPaymentService{
		webhookFunc: func(ctx context.Context, event services.GatewayWebhookEvent) error {
			captured = event
			return nil
		},
	})
	router.Route("/webhooks", handler.Routes)

	payload := `{"id":" chg_abc ","status":"CAPTURED","amount":578,"metadata":{"order_id":"ord_01ABC"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/tap", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ChargeID != "chg_abc" {
		t.Fatalf("expected trimmed charge id, got %q", captured.ChargeID)
	}
	if captured.Status != "CAPTURED" {
		t.Fatalf("expected status forwarded verbatim, got %q", captured.Status)
	}
	if captured.OrderID != "ord_01ABC" {
		t.Fatalf("expected metadata order id forwarded, got %q", captured.OrderID)
	}
	if captured.Raw["amount"] != float64(578) {
		t.Fatalf("expected raw body preserved, got %#v", captured.Raw)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["received"] != true {
		t.Fatalf("expected received ack, got %#v", resp)
	}
}

func TestWebhookHandlersTapChargeRejectsInvalidJSON(t *testing.T) {
	router := chi.NewRouter()
	handler := NewWebhookHandlers(&stubPaymentService{})
	router.Route("/webhooks", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/tap", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestWebhookHandlersTapChargeRetriesOnServiceFailure(t *testing.T) {
	router := chi.NewRouter()
	handler := NewWebhookHandlers(&stubPaymentService{
		webhookFunc: func(context.Context, services.GatewayWebhookEvent) error {
			return errors.New("firestore unavailable")
		},
	})
	router.Route("/webhooks", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/tap", bytes.NewBufferString(`{"id":"chg_abc","status":"CAPTURED"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 so the gateway retries, got %d", rr.Code)
	}
}

func TestWebhookHandlersTapChargeMapsInvalidInput(t *testing.T) {
	router := chi.NewRouter()
	handler := NewWebhookHandlers(&stubPaymentService{
		webhookFunc: func(context.Context, services.GatewayWebhookEvent) error {
			return services.ErrPaymentInvalidInput
		},
	})
	router.Route("/webhooks", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/tap", bytes.NewBufferString(`{"id":"","status":""}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
