package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/services"
)

func sampleOrder() services.Order {
	paidAt := time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)
	return services.Order{
		ID:          "ord_01ABC",
		OrderNumber: "SL00042",
		PackageID:   "premium",
		PackageName: "Premium CV",
		BasePrice:   499,
		AddOns:      []string{"cover-letter"},
		Subtotal:    578,
		Total:       578,
		Currency:    "SAR",
		Customer: services.CustomerInfo{
			Name:   "Sara Al-Qahtani",
			Email:  "sara@example.com",
			Phone:  "+966502223333",
			Locale: "ar",
		},
		Status:        domain.OrderStatusInProgress,
		PaymentState:  domain.PaymentStatePaid,
		PaymentMethod: domain.PaymentMethodWallet,
		PaidAt:        &paidAt,
		CreatedAt:     time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC),
	}
}

func TestOrderHandlersCreateOrderSuccess(t *testing.T) {
	router := chi.NewRouter()
	var captured services.CreateOrderCommand
	service := &stubOrderService{
		createFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusNew
			order.PaymentState = domain.PaymentStateUnpaid
			order.PaymentMethod = ""
			order.PaidAt = nil
			return order, nil
		},
	}

	handler := NewOrderHandlers(service, &stubMessageService{})
	router.Route("/orders", handler.Routes)

	payload := `{
		"package_id": "premium",
		"addon_ids": ["cover-letter"],
		"discount_code": "WELCOME10",
		"customer": {"name": "Sara Al-Qahtani", "email": "Sara@Example.com", "phone": "+966502223333", "locale": "ar"},
		"goals": "Targeting fintech roles",
		"metadata": {"source": "landing"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if captured.PackageID != "premium" {
		t.Fatalf("expected package id forwarded, got %q", captured.PackageID)
	}
	if captured.DiscountCode != "WELCOME10" {
		t.Fatalf("expected discount code forwarded, got %q", captured.DiscountCode)
	}
	if captured.Customer.Locale != "ar" {
		t.Fatalf("expected customer locale forwarded, got %q", captured.Customer.Locale)
	}
	if captured.Metadata["source"] != "landing" {
		t.Fatalf("expected metadata propagated, got %#v", captured.Metadata)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.ID != "ord_01ABC" {
		t.Fatalf("expected order id ord_01ABC, got %s", resp.Order.ID)
	}
	if resp.Order.OrderNumber != "SL00042" {
		t.Fatalf("expected order number SL00042, got %s", resp.Order.OrderNumber)
	}
	if resp.Order.Customer.Locale != "ar" {
		t.Fatalf("expected locale echoed in payload, got %q", resp.Order.Customer.Locale)
	}
}

func TestOrderHandlersCreateOrderRequiresBody(t *testing.T) {
	router := chi.NewRouter()
	handler := NewOrderHandlers(&stubOrderService{}, &stubMessageService{})
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString("  "))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderMapsDiscountErrors(t *testing.T) {
	router := chi.NewRouter()
	handler := NewOrderHandlers(&stubOrderService{
		createFunc: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrDiscountCodeExpired
		},
	}, &stubMessageService{})
	router.Route("/orders", handler.Routes)

	payload := `{"package_id":"premium","customer":{"name":"Sara","email":"sara@example.com"},"discount_code":"OLD"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusGone {
		t.Fatalf("expected status 410, got %d", rr.Code)
	}
	var errResp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp["error"] != "discount_expired" {
		t.Fatalf("expected error code discount_expired, got %#v", errResp["error"])
	}
}

func TestOrderHandlersGetOrderSuccess(t *testing.T) {
	router := chi.NewRouter()
	handler := NewOrderHandlers(&stubOrderService{
		getFunc: func(ctx context.Context, orderID string) (services.Order, error) {
			if orderID != "ord_01ABC" {
				t.Fatalf("unexpected order id %s", orderID)
			}
			return sampleOrder(), nil
		},
	}, &stubMessageService{})
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_01ABC", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.PaymentState != "paid" {
		t.Fatalf("expected payment state paid, got %s", resp.Order.PaymentState)
	}
	if resp.Order.PaidAt == "" {
		t.Fatalf("expected paid_at to be rendered")
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	router := chi.NewRouter()
	handler := NewOrderHandlers(&stubOrderService{
		getFunc: func(context.Context, string) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}, &stubMessageService{})
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var errResp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp["error"] != "order_not_found" {
		t.Fatalf("expected error code order_not_found, got %#v", errResp["error"])
	}
}

func TestOrderHandlersTimelineProjectsStatus(t *testing.T) {
	router := chi.NewRouter()
	handler := NewOrderHandlers(&stubOrderService{
		getFunc: func(context.Context, string) (services.Order, error) {
			order := sampleOrder()
			order.Status = domain.OrderStatusInProgress
			return order, nil
		},
	}, &stubMessageService{})
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_01ABC/timeline", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp timelineResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderID != "ord_01ABC" {
		t.Fatalf("expected order id echoed, got %s", resp.OrderID)
	}
	if resp.Status != "IN_PROGRESS" {
		t.Fatalf("expected status IN_PROGRESS, got %s", resp.Status)
	}
	want := []timelineStagePayload{
		{Stage: "review", State: "completed"},
		{Stage: "work", State: "active"},
		{Stage: "delivery", State: "pending"},
	}
	if len(resp.Stages) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(resp.Stages))
	}
	for i, stage := range want {
		if resp.Stages[i] != stage {
			t.Fatalf("stage %d: expected %+v, got %+v", i, stage, resp.Stages[i])
		}
	}
}

func TestOrderHandlersPostMessageSuccess(t *testing.T) {
	router := chi.NewRouter()
	var captured services.PostMessageCommand
	handler := NewOrderHandlers(&stubOrderService{}, &stubMessageService{
		postFunc: func(ctx context.Context, cmd services.PostMessageCommand) (services.Message, error) {
			captured = cmd
			return services.Message{
				ID:        "msg_01",
				OrderID:   cmd.OrderID,
				Sender:    "client",
				Body:      cmd.Body,
				CreatedAt: time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC),
			}, nil
		},
	})
	router.Route("/orders", handler.Routes)

	payload := `{"sender":"client","body":"Any update on the draft?"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_01ABC/messages", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_01ABC" {
		t.Fatalf("expected order id from path, got %q", captured.OrderID)
	}
	var resp messagePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "msg_01" {
		t.Fatalf("expected message id msg_01, got %s", resp.ID)
	}
}

func TestOrderHandlersPostMessageRateLimited(t *testing.T) {
	router := chi.NewRouter()
	handler := NewOrderHandlers(&stubOrderService{}, &stubMessageService{
		postFunc: func(ctx context.Context, cmd services.PostMessageCommand) (services.Message, error) {
			return services.Message{ID: "msg_ok", OrderID: cmd.OrderID}, nil
		},
	})
	router.Route("/orders", handler.Routes)

	for i := 0; i < messagePostLimit; i++ {
		req := httptest.NewRequest(http.MethodPost, "/orders/ord_limited/messages", bytes.NewBufferString(`{"sender":"client","body":"ping"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("request %d: expected status 201, got %d", i+1, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_limited/messages", bytes.NewBufferString(`{"sender":"client","body":"ping"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
}

func TestOrderHandlersPostMessageMapsOrderMissing(t *testing.T) {
	router := chi.NewRouter()
	handler := NewOrderHandlers(&stubOrderService{}, &stubMessageService{
		postFunc: func(context.Context, services.PostMessageCommand) (services.Message, error) {
			return services.Message{}, services.ErrMessageOrderNotFound
		},
	})
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_gone/messages", bytes.NewBufferString(`{"sender":"client","body":"hello"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersListMessagesForwardsQuery(t *testing.T) {
	router := chi.NewRouter()
	var capturedAfter time.Time
	var capturedPager services.Pagination
	handler := NewOrderHandlers(&stubOrderService{}, &stubMessageService{
		listFunc: func(ctx context.Context, orderID string, after time.Time, pager services.Pagination) (domain.CursorPage[services.Message], error) {
			if orderID != "ord_01ABC" {
				t.Fatalf("unexpected order id %s", orderID)
			}
			capturedAfter = after
			capturedPager = pager
			return domain.CursorPage[services.Message]{
				Items: []services.Message{
					{ID: "msg_1", OrderID: orderID, Sender: "staff", Body: "Draft sent", CreatedAt: time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC)},
				},
				NextPageToken: "tok_next",
			}, nil
		},
	})
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_01ABC/messages?after=2025-04-03T00:00:00Z&page_size=500&page_token=tok_prev", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !capturedAfter.Equal(time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected after cutoff forwarded, got %v", capturedAfter)
	}
	if capturedPager.PageSize != maxMessagePageSize {
		t.Fatalf("expected page size capped at %d, got %d", maxMessagePageSize, capturedPager.PageSize)
	}
	if capturedPager.PageToken != "tok_prev" {
		t.Fatalf("expected page token forwarded, got %q", capturedPager.PageToken)
	}

	var resp messageListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "msg_1" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
	if resp.NextPageToken != "tok_next" {
		t.Fatalf("expected next page token, got %q", resp.NextPageToken)
	}
}

func TestOrderHandlersListMessagesRejectsBadAfter(t *testing.T) {
	router := chi.NewRouter()
	handler := NewOrderHandlers(&stubOrderService{}, &stubMessageService{})
	router.Route("/orders", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_01ABC/messages?after=yesterday", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

// Stubs ----------------------------------------------------------------------

type stubOrderService struct {
	createFunc     func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	getFunc        func(ctx context.Context, orderID string) (services.Order, error)
	listFunc       func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	updateFunc     func(ctx context.Context, cmd services.UpdateOrderCommand) (services.Order, error)
	transitionFunc func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	markPaidFunc   func(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error)
	deleteFunc     func(ctx context.Context, cmd services.DeleteOrderCommand) error
	statsFunc      func(ctx context.Context) (services.OrderStats, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) List(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, errors.New("not implemented")
}

func (s *stubOrderService) Update(ctx context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFunc != nil {
		return s.transitionFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) MarkPaid(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error) {
	if s.markPaidFunc != nil {
		return s.markPaidFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Delete(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, cmd)
	}
	return errors.New("not implemented")
}

func (s *stubOrderService) Stats(ctx context.Context) (services.OrderStats, error) {
	if s.statsFunc != nil {
		return s.statsFunc(ctx)
	}
	return services.OrderStats{}, errors.New("not implemented")
}

type stubMessageService struct {
	postFunc func(ctx context.Context, cmd services.PostMessageCommand) (services.Message, error)
	listFunc func(ctx context.Context, orderID string, after time.Time, pager services.Pagination) (domain.CursorPage[services.Message], error)
}

func (s *stubMessageService) Post(ctx context.Context, cmd services.PostMessageCommand) (services.Message, error) {
	if s.postFunc != nil {
		return s.postFunc(ctx, cmd)
	}
	return services.Message{}, errors.New("not implemented")
}

func (s *stubMessageService) ListSince(ctx context.Context, orderID string, after time.Time, pager services.Pagination) (domain.CursorPage[services.Message], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, orderID, after, pager)
	}
	return domain.CursorPage[services.Message]{}, errors.New("not implemented")
}
