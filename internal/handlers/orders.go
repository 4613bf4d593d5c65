package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seera-lab/api/internal/platform/httpx"
	"github.com/seera-lab/api/internal/services"
)

const (
	maxCheckoutBodySize = 32 * 1024
	maxMessageBodySize  = 16 * 1024

	defaultMessagePageSize = 50
	maxMessagePageSize     = 200

	messagePostLimit  = 20
	messagePostWindow = time.Minute
)

// OrderHandlers exposes the client-facing order endpoints: checkout,
// tracking, the progress timeline, and the messaging channel.
type OrderHandlers struct {
	orders   services.OrderService
	messages services.MessageService
	throttle *messageThrottle
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, messages services.MessageService) *OrderHandlers {
	return &OrderHandlers{
		orders:   orders,
		messages: messages,
		throttle: newMessageThrottle(messagePostLimit, messagePostWindow, nil),
		logger:   func(context.Context, string, map[string]any) {},
	}
}

// WithLogger replaces the no-op event logger.
func (h *OrderHandlers) WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) *OrderHandlers {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/timeline", h.getTimeline)
	r.Get("/{orderID}/messages", h.listMessages)
	r.Post("/{orderID}/messages", h.postMessage)
}

type createOrderRequest struct {
	PackageID    string   `json:"package_id"`
	AddOnIDs     []string `json:"addon_ids"`
	DiscountCode string   `json:"discount_code"`
	Customer     struct {
		Name   string `json:"name"`
		Email  string `json:"email"`
		Phone  string `json:"phone"`
		Locale string `json:"locale"`
	} `json:"customer"`
	Goals    string         `json:"goals"`
	Metadata map[string]any `json:"metadata"`
}

type orderPayload struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"order_number"`
	PackageID       string              `json:"package_id"`
	PackageName     string              `json:"package_name"`
	BasePrice       int64               `json:"base_price"`
	AddOns          []string            `json:"addons,omitempty"`
	DiscountCode    string              `json:"discount_code,omitempty"`
	DiscountPercent int                 `json:"discount_percent,omitempty"`
	Subtotal        int64               `json:"subtotal"`
	Total           int64               `json:"total"`
	Currency        string              `json:"currency"`
	Customer        customerInfoPayload `json:"customer"`
	Goals           string              `json:"goals,omitempty"`
	Status          string              `json:"status"`
	PaymentState    string              `json:"payment_state"`
	PaymentMethod   string              `json:"payment_method,omitempty"`
	PaidAt          string              `json:"paid_at,omitempty"`
	Metadata        map[string]any      `json:"metadata,omitempty"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at,omitempty"`
}

type customerInfoPayload struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	Locale string `json:"locale,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		PackageID:    req.PackageID,
		AddOnIDs:     req.AddOnIDs,
		DiscountCode: req.DiscountCode,
		Customer: services.CustomerInfo{
			Name:   req.Customer.Name,
			Email:  req.Customer.Email,
			Phone:  req.Customer.Phone,
			Locale: req.Customer.Locale,
		},
		Goals:    req.Goals,
		Metadata: cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type timelineResponse struct {
	OrderID string                 `json:"order_id"`
	Status  string                 `json:"status"`
	Stages  []timelineStagePayload `json:"stages"`
}

type timelineStagePayload struct {
	Stage string `json:"stage"`
	State string `json:"state"`
}

func (h *OrderHandlers) getTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	timeline := services.ProjectTimeline(ctx, order.Status, h.logger)
	writeJSONResponse(w, http.StatusOK, timelineResponse{
		OrderID: order.ID,
		Status:  string(order.Status),
		Stages: []timelineStagePayload{
			{Stage: "review", State: string(timeline.Review)},
			{Stage: "work", State: string(timeline.Work)},
			{Stage: "delivery", State: string(timeline.Delivery)},
		},
	})
}

type postMessageRequest struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
}

type messagePayload struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

type messageListResponse struct {
	Items         []messagePayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

func (h *OrderHandlers) postMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.messages == nil {
		httpx.WriteError(ctx, w, httpx.NewError("message_service_unavailable", "message service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if !h.throttle.Allow(orderID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many messages, slow down", http.StatusTooManyRequests))
		return
	}

	var req postMessageRequest
	body, err := readLimitedBody(r, maxMessageBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	message, err := h.messages.Post(ctx, services.PostMessageCommand{
		OrderID: orderID,
		Sender:  req.Sender,
		Body:    req.Body,
	})
	if err != nil {
		writeMessageError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildMessagePayload(message))
}

func (h *OrderHandlers) listMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.messages == nil {
		httpx.WriteError(ctx, w, httpx.NewError("message_service_unavailable", "message service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	var after time.Time
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		after = ts
	}

	pageSize, err := parsePageSize(query.Get("page_size"), defaultMessagePageSize, maxMessagePageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.messages.ListSince(ctx, orderID, after, services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	})
	if err != nil {
		writeMessageError(ctx, w, err)
		return
	}

	items := make([]messagePayload, 0, len(page.Items))
	for _, message := range page.Items {
		items = append(items, buildMessagePayload(message))
	}
	writeJSONResponse(w, http.StatusOK, messageListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func buildOrderPayload(order services.Order) orderPayload {
	return orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		PackageID:       order.PackageID,
		PackageName:     order.PackageName,
		BasePrice:       order.BasePrice,
		AddOns:          order.AddOns,
		DiscountCode:    order.DiscountCode,
		DiscountPercent: order.DiscountPercent,
		Subtotal:        order.Subtotal,
		Total:           order.Total,
		Currency:        order.Currency,
		Customer: customerInfoPayload{
			Name:   order.Customer.Name,
			Email:  order.Customer.Email,
			Phone:  order.Customer.Phone,
			Locale: order.Customer.Locale,
		},
		Goals:         order.Goals,
		Status:        string(order.Status),
		PaymentState:  string(order.PaymentState),
		PaymentMethod: string(order.PaymentMethod),
		PaidAt:        formatTime(pointerTime(order.PaidAt)),
		Metadata:      cloneMap(order.Metadata),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
}

func buildMessagePayload(message services.Message) messagePayload {
	return messagePayload{
		ID:        message.ID,
		OrderID:   message.OrderID,
		Sender:    message.Sender,
		Body:      message.Body,
		CreatedAt: formatTime(message.CreatedAt),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrDiscountCodeNotFound),
		errors.Is(err, services.ErrDiscountCodeExpired),
		errors.Is(err, services.ErrDiscountCodeInactive),
		errors.Is(err, services.ErrDiscountCodeEmpty):
		writeDiscountError(ctx, w, err)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeMessageError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrMessageInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrMessageOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("message_error", "failed to process message request", http.StatusInternalServerError))
	}
}
