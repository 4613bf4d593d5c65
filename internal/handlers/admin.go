package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/platform/auth"
	"github.com/seera-lab/api/internal/platform/httpx"
	"github.com/seera-lab/api/internal/services"
)

const (
	maxAdminBodySize = 64 * 1024

	defaultAdminPageSize = 20
	maxAdminPageSize     = 100
)

// AdminHandlers exposes the back-office endpoints for orders, customers,
// staff, discount codes, statistics, and the audit trail.
type AdminHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	customers services.CustomerService
	team      services.TeamService
	discounts services.DiscountService
	auditLogs services.AuditLogService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(
	authn *auth.Authenticator,
	orders services.OrderService,
	customers services.CustomerService,
	team services.TeamService,
	discounts services.DiscountService,
	auditLogs services.AuditLogService,
) *AdminHandlers {
	return &AdminHandlers{
		authn:     authn,
		orders:    orders,
		customers: customers,
		team:      team,
		discounts: discounts,
		auditLogs: auditLogs,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}

	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Patch("/orders/{orderID}", h.updateOrder)
	r.Post("/orders/{orderID}:transition", h.transitionOrder)
	r.Post("/orders/{orderID}:mark-paid", h.markOrderPaid)
	r.Delete("/orders/{orderID}", h.deleteOrder)
	r.Get("/stats", h.stats)

	r.Get("/customers", h.listCustomers)
	r.Get("/customers/{email}", h.getCustomer)

	r.Get("/team", h.listTeam)
	r.Post("/team", h.createTeamMember)
	r.Get("/team/{memberID}", h.getTeamMember)
	r.Patch("/team/{memberID}", h.updateTeamMember)
	r.Delete("/team/{memberID}", h.deleteTeamMember)

	r.Get("/discounts", h.listDiscounts)
	r.Post("/discounts", h.createDiscount)
	r.Patch("/discounts/{code}", h.updateDiscount)
	r.Delete("/discounts/{code}", h.deleteDiscount)

	r.Get("/audit-logs", h.listAuditLogs)
}

func (h *AdminHandlers) actorID(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return ""
	}
	return strings.TrimSpace(identity.UID)
}

func (h *AdminHandlers) audit(ctx context.Context, action, targetKind, targetID string, detail map[string]any) {
	if h.auditLogs == nil {
		return
	}
	h.auditLogs.Record(ctx, services.AuditLogRecord{
		ActorID:    h.actorID(ctx),
		Action:     action,
		TargetKind: targetKind,
		TargetID:   targetID,
		Detail:     detail,
	})
}

// Orders ---------------------------------------------------------------------

type adminOrderPayload struct {
	orderPayload
	AssigneeID    string `json:"assignee_id,omitempty"`
	InternalNotes string `json:"internal_notes,omitempty"`
	PaymentRef    string `json:"payment_ref,omitempty"`
}

type adminOrderResponse struct {
	Order adminOrderPayload `json:"order"`
}

type adminOrderListResponse struct {
	Items         []adminOrderPayload `json:"items"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

func buildAdminOrderPayload(order services.Order) adminOrderPayload {
	return adminOrderPayload{
		orderPayload:  buildOrderPayload(order),
		AssigneeID:    order.AssigneeID,
		InternalNotes: order.InternalNotes,
		PaymentRef:    order.PaymentRef,
	}
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	var statuses []domain.OrderStatus
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.OrderStatus(raw)
		if !status.IsKnown() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		statuses = append(statuses, status)
	}

	var dateFrom, dateTo *time.Time
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateFrom = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateTo = &ts
	}

	pageSize, err := parsePageSize(query.Get("page_size"), defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.List(ctx, services.OrderListFilter{
		Status:     statuses,
		AssigneeID: strings.TrimSpace(query.Get("assignee_id")),
		Email:      strings.TrimSpace(query.Get("email")),
		Search:     strings.TrimSpace(query.Get("q")),
		DateFrom:   dateFrom,
		DateTo:     dateTo,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]adminOrderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildAdminOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, adminOrderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, adminOrderResponse{Order: buildAdminOrderPayload(order)})
}

type updateOrderRequest struct {
	Status        *string `json:"status"`
	AssigneeID    *string `json:"assignee_id"`
	InternalNotes *string `json:"internal_notes"`
}

func (h *AdminHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req updateOrderRequest
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateOrderCommand{
		OrderID:       orderID,
		AssigneeID:    req.AssigneeID,
		InternalNotes: req.InternalNotes,
		ActorID:       h.actorID(ctx),
	}
	if req.Status != nil {
		status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		if !status.IsKnown() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		cmd.Status = &status
	}

	order, err := h.orders.Update(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	h.audit(ctx, "order.updated", "order", order.ID, map[string]any{"status": string(order.Status)})
	writeJSONResponse(w, http.StatusOK, adminOrderResponse{Order: buildAdminOrderPayload(order)})
}

type transitionOrderRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *AdminHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req transitionOrderRequest
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !status.IsKnown() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: status,
		ActorID:      h.actorID(ctx),
		Reason:       req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	h.audit(ctx, "order.status.changed", "order", order.ID, map[string]any{"status": string(order.Status), "reason": req.Reason})
	writeJSONResponse(w, http.StatusOK, adminOrderResponse{Order: buildAdminOrderPayload(order)})
}

type markPaidRequest struct {
	Method     string `json:"method"`
	PaymentRef string `json:"payment_ref"`
}

func (h *AdminHandlers) markOrderPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req markPaidRequest
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if method == "" {
		method = domain.PaymentMethodBankTransfer
	}
	if method != domain.PaymentMethodWallet && method != domain.PaymentMethodBankTransfer {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "method must be wallet or bank_transfer", http.StatusBadRequest))
		return
	}

	order, err := h.orders.MarkPaid(ctx, services.MarkOrderPaidCommand{
		OrderID:    orderID,
		Method:     method,
		PaymentRef: req.PaymentRef,
		ActorID:    h.actorID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	h.audit(ctx, "order.marked_paid", "order", order.ID, map[string]any{"method": string(method)})
	writeJSONResponse(w, http.StatusOK, adminOrderResponse{Order: buildAdminOrderPayload(order)})
}

func (h *AdminHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if err := h.orders.Delete(ctx, services.DeleteOrderCommand{
		OrderID: orderID,
		ActorID: h.actorID(ctx),
	}); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	h.audit(ctx, "order.deleted", "order", orderID, nil)
	w.WriteHeader(http.StatusNoContent)
}

type statsResponse struct {
	TotalOrders    int64            `json:"total_orders"`
	PendingOrders  int64            `json:"pending_orders"`
	TotalRevenue   int64            `json:"total_revenue"`
	Currency       string           `json:"currency,omitempty"`
	RevenueByMonth map[string]int64 `json:"revenue_by_month"`
}

func (h *AdminHandlers) stats(w http.ResponseWriter, r *http.Request) {
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

	writeJSONResponse(w, http.StatusOK, statsResponse{
		TotalOrders:    stats.TotalOrders,
		PendingOrders:  stats.PendingOrders,
		TotalRevenue:   stats.TotalRevenue,
		Currency:       stats.Currency,
		RevenueByMonth: stats.RevenueByMonth,
	})
}

// Customers ------------------------------------------------------------------

type customerPayload struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	OrderCount   int64  `json:"order_count"`
	TotalSpend   int64  `json:"total_spend"`
	FirstOrderAt string `json:"first_order_at,omitempty"`
	LastOrderAt  string `json:"last_order_at,omitempty"`
}

func buildCustomerPayload(customer services.Customer) customerPayload {
	return customerPayload{
		Name:         customer.Name,
		Email:        customer.Email,
		Phone:        customer.Phone,
		OrderCount:   customer.OrderCount,
		TotalSpend:   customer.TotalSpend,
		FirstOrderAt: formatTime(customer.FirstOrderAt),
		LastOrderAt:  formatTime(customer.LastOrderAt),
	}
}

func (h *AdminHandlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.customers.List(ctx, services.CustomerListFilter{
		Search: strings.TrimSpace(query.Get("q")),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	items := make([]customerPayload, 0, len(page.Items))
	for _, customer := range page.Items {
		items = append(items, buildCustomerPayload(customer))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *AdminHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	email := strings.TrimSpace(chi.URLParam(r, "email"))
	customer, err := h.customers.Get(ctx, email)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomerPayload(customer))
}

// Team -----------------------------------------------------------------------

type teamMemberPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Position  string `json:"position,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildTeamMemberPayload(member services.TeamMember) teamMemberPayload {
	return teamMemberPayload{
		ID:        member.ID,
		Name:      member.Name,
		Email:     member.Email,
		Position:  member.Position,
		Active:    member.Active,
		CreatedAt: formatTime(member.CreatedAt),
		UpdatedAt: formatTime(member.UpdatedAt),
	}
}

type upsertTeamMemberRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Position string `json:"position"`
	Active   *bool  `json:"active"`
}

func (h *AdminHandlers) listTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.team == nil {
		httpx.WriteError(ctx, w, httpx.NewError("team_service_unavailable", "team service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.team.List(ctx, services.TeamListFilter{
		ActiveOnly: strings.EqualFold(query.Get("active_only"), "true"),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeTeamError(ctx, w, err)
		return
	}

	items := make([]teamMemberPayload, 0, len(page.Items))
	for _, member := range page.Items {
		items = append(items, buildTeamMemberPayload(member))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *AdminHandlers) getTeamMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.team == nil {
		httpx.WriteError(ctx, w, httpx.NewError("team_service_unavailable", "team service unavailable", http.StatusServiceUnavailable))
		return
	}

	memberID := strings.TrimSpace(chi.URLParam(r, "memberID"))
	member, err := h.team.Get(ctx, memberID)
	if err != nil {
		writeTeamError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildTeamMemberPayload(member))
}

func (h *AdminHandlers) createTeamMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.team == nil {
		httpx.WriteError(ctx, w, httpx.NewError("team_service_unavailable", "team service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertTeamMemberRequest
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	member, err := h.team.Create(ctx, services.UpsertTeamMemberCommand{
		Name:     req.Name,
		Email:    req.Email,
		Position: req.Position,
		Active:   req.Active,
		ActorID:  h.actorID(ctx),
	})
	if err != nil {
		writeTeamError(ctx, w, err)
		return
	}

	h.audit(ctx, "team.member.created", "team_member", member.ID, nil)
	writeJSONResponse(w, http.StatusCreated, buildTeamMemberPayload(member))
}

func (h *AdminHandlers) updateTeamMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.team == nil {
		httpx.WriteError(ctx, w, httpx.NewError("team_service_unavailable", "team service unavailable", http.StatusServiceUnavailable))
		return
	}

	memberID := strings.TrimSpace(chi.URLParam(r, "memberID"))

	var req upsertTeamMemberRequest
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	member, err := h.team.Update(ctx, services.UpsertTeamMemberCommand{
		MemberID: memberID,
		Name:     req.Name,
		Email:    req.Email,
		Position: req.Position,
		Active:   req.Active,
		ActorID:  h.actorID(ctx),
	})
	if err != nil {
		writeTeamError(ctx, w, err)
		return
	}

	h.audit(ctx, "team.member.updated", "team_member", member.ID, nil)
	writeJSONResponse(w, http.StatusOK, buildTeamMemberPayload(member))
}

func (h *AdminHandlers) deleteTeamMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.team == nil {
		httpx.WriteError(ctx, w, httpx.NewError("team_service_unavailable", "team service unavailable", http.StatusServiceUnavailable))
		return
	}

	memberID := strings.TrimSpace(chi.URLParam(r, "memberID"))
	if err := h.team.Delete(ctx, memberID); err != nil {
		writeTeamError(ctx, w, err)
		return
	}

	h.audit(ctx, "team.member.deleted", "team_member", memberID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Discounts ------------------------------------------------------------------

type adminDiscountPayload struct {
	Code       string `json:"code"`
	Percent    int    `json:"percent"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	Active     bool   `json:"active"`
	UsageCount int64  `json:"usage_count"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func buildAdminDiscountPayload(code services.DiscountCode) adminDiscountPayload {
	return adminDiscountPayload{
		Code:       code.Code,
		Percent:    code.Percent,
		ExpiresAt:  formatTime(pointerTime(code.ExpiresAt)),
		Active:     code.Active,
		UsageCount: code.UsageCount,
		CreatedAt:  formatTime(code.CreatedAt),
		UpdatedAt:  formatTime(code.UpdatedAt),
	}
}

type upsertDiscountRequest struct {
	Code      string  `json:"code"`
	Percent   int     `json:"percent"`
	ExpiresAt *string `json:"expires_at"`
	Active    *bool   `json:"active"`
}

func (h *AdminHandlers) listDiscounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discount_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.discounts.ListCodes(ctx, services.DiscountListFilter{
		ActiveOnly: strings.EqualFold(query.Get("active_only"), "true"),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}

	items := make([]adminDiscountPayload, 0, len(page.Items))
	for _, code := range page.Items {
		items = append(items, buildAdminDiscountPayload(code))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *AdminHandlers) createDiscount(w http.ResponseWriter, r *http.Request) {
	h.saveDiscount(w, r, "")
}

func (h *AdminHandlers) updateDiscount(w http.ResponseWriter, r *http.Request) {
	h.saveDiscount(w, r, strings.TrimSpace(chi.URLParam(r, "code")))
}

func (h *AdminHandlers) saveDiscount(w http.ResponseWriter, r *http.Request, code string) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discount_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertDiscountRequest
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.UpsertDiscountCommand{
		Code:    req.Code,
		Percent: req.Percent,
		Active:  req.Active,
		ActorID: h.actorID(ctx),
	}
	if code != "" {
		cmd.Code = code
	}
	if req.ExpiresAt != nil {
		if raw := strings.TrimSpace(*req.ExpiresAt); raw != "" {
			ts, err := parseTimeParam(raw)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expires_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
				return
			}
			cmd.ExpiresAt = &ts
		}
	}

	var (
		discount services.DiscountCode
		action   string
		status   int
	)
	if code == "" {
		discount, err = h.discounts.CreateCode(ctx, cmd)
		action = "discount.created"
		status = http.StatusCreated
	} else {
		discount, err = h.discounts.UpdateCode(ctx, cmd)
		action = "discount.updated"
		status = http.StatusOK
	}
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}

	h.audit(ctx, action, "discount", discount.Code, map[string]any{"percent": discount.Percent})
	writeJSONResponse(w, status, buildAdminDiscountPayload(discount))
}

func (h *AdminHandlers) deleteDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discount_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if err := h.discounts.DeleteCode(ctx, code); err != nil {
		writeDiscountError(ctx, w, err)
		return
	}

	h.audit(ctx, "discount.deleted", "discount", code, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Audit logs -----------------------------------------------------------------

type auditLogPayload struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	TargetKind string         `json:"target_kind,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auditLogs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_unavailable", "audit log service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.AuditLogFilter{
		ActorID:    strings.TrimSpace(query.Get("actor_id")),
		Action:     strings.TrimSpace(query.Get("action")),
		TargetKind: strings.TrimSpace(query.Get("target_kind")),
		TargetID:   strings.TrimSpace(query.Get("target_id")),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateFrom = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateTo = &ts
	}

	page, err := h.auditLogs.List(ctx, filter)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_error", "failed to list audit logs", http.StatusInternalServerError))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, auditLogPayload{
			ID:         entry.ID,
			ActorID:    entry.ActorID,
			Action:     entry.Action,
			TargetKind: entry.TargetKind,
			TargetID:   entry.TargetID,
			Detail:     cloneMap(entry.Detail),
			CreatedAt:  formatTime(entry.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

func writeCustomerError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "customer not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("customer_error", "failed to process customer request", http.StatusInternalServerError))
	}
}

func writeTeamError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrTeamInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrTeamMemberNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("team_member_not_found", "team member not found", http.StatusNotFound))
	case errors.Is(err, services.ErrTeamConflict):
		httpx.WriteError(ctx, w, httpx.NewError("team_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("team_error", "failed to process team request", http.StatusInternalServerError))
	}
}
