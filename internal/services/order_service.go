package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventStatusChanged   = "order.status.changed"
	orderEventPaymentCaptured = "order.payment.captured"
	orderEventDeleted         = "order.deleted"

	orderIDPrefix = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates duplicate identifiers or concurrent edits.
	ErrOrderConflict = errors.New("order: conflict")
)

// orderStateTransitions encodes the documented flow: NEW → IN_PROGRESS →
// COMPLETED, with cancellation reachable from the two non-terminal states.
// Admin status edits may also jump NEW straight to COMPLETED; COMPLETED and
// CANCELLED accept nothing.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusNew: {
		domain.OrderStatusInProgress,
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusInProgress: {
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
	},
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	Counters    repositories.CounterRepository
	Pricing     PricingEngine
	Discounts   DiscountService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	customers  repositories.CustomerRepository
	counters   repositories.CounterRepository
	pricing    PricingEngine
	discounts  DiscountService
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		customers:  deps.Customers,
		counters:   deps.Counters,
		pricing:    deps.Pricing,
		discounts:  deps.Discounts,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// Create submits a checkout. The discount is resolved first, the quote priced,
// and the order persisted with status NEW. A persistence failure aborts the
// whole checkout; the redemption counter is only touched after the order is
// durable.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	name := strings.TrimSpace(cmd.Customer.Name)
	email := strings.ToLower(strings.TrimSpace(cmd.Customer.Email))
	if name == "" {
		return Order{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if email == "" {
		return Order{}, fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.PackageID) == "" {
		return Order{}, fmt.Errorf("%w: package id is required", ErrOrderInvalidInput)
	}
	locale, err := canonicalLocale(cmd.Customer.Locale)
	if err != nil {
		return Order{}, err
	}

	discountPercent := 0
	discountCode := ""
	if code := strings.TrimSpace(cmd.DiscountCode); code != "" {
		if s.discounts == nil {
			return Order{}, fmt.Errorf("%w: discount codes are not accepted", ErrOrderInvalidInput)
		}
		discount, err := s.discounts.Resolve(ctx, code)
		if err != nil {
			return Order{}, err
		}
		discountPercent = discount.Percent
		discountCode = discount.Code
	}

	quote, err := s.pricing.Quote(ctx, QuoteRequest{
		PackageID:       cmd.PackageID,
		AddOnIDs:        cmd.AddOnIDs,
		DiscountPercent: discountPercent,
		DiscountCode:    discountCode,
	})
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	order := Order{
		ID:              s.nextOrderID(),
		PackageID:       quote.PackageID,
		PackageName:     quote.PackageName,
		BasePrice:       quote.BasePrice,
		AddOns:          quoteAddOnIDs(quote),
		DiscountCode:    discountCode,
		DiscountPercent: discountPercent,
		Subtotal:        quote.Subtotal,
		Total:           quote.Total,
		Currency:        quote.Currency,
		Customer: CustomerInfo{
			Name:   name,
			Email:  email,
			Phone:  strings.TrimSpace(cmd.Customer.Phone),
			Locale: locale,
		},
		Goals:        strings.TrimSpace(cmd.Goals),
		Status:       domain.OrderStatusNew,
		PaymentState: domain.PaymentStateUnpaid,
		Metadata:     cloneMap(cmd.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	number, err := s.generateOrderNumber(ctx)
	if err != nil {
		return Order{}, err
	}
	order.OrderNumber = number

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if s.customers != nil {
			if _, err := s.customers.Upsert(txCtx, domain.Customer{
				Name:         order.Customer.Name,
				Email:        order.Customer.Email,
				Phone:        order.Customer.Phone,
				OrderCount:   1,
				TotalSpend:   order.Total,
				FirstOrderAt: now,
				LastOrderAt:  now,
				UpdatedAt:    now,
			}); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if discountCode != "" && s.discounts != nil {
		// At-most-once intent: the order is durable, a failed increment is
		// logged and never retried.
		if err := s.discounts.RecordRedemption(ctx, discountCode); err != nil {
			s.logger(ctx, "order.discount.redemption.failed", map[string]any{
				"order": order.ID,
				"code":  discountCode,
				"error": err.Error(),
			})
		}
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
		Metadata:      maps.Clone(order.Metadata),
	})

	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		Status:     filter.Status,
		AssigneeID: filter.AssigneeID,
		Email:      filter.Email,
		Search:     filter.Search,
		DateRange:  domain.RangeQuery[time.Time]{From: filter.DateFrom, To: filter.DateTo},
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// Update applies the admin-editable fields as a read-modify-write, returning
// the stored entity so the caller's cache reflects exactly what persisted.
func (s *orderService) Update(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prevStatus := order.Status
	statusChanged := false

	if cmd.Status != nil && *cmd.Status != order.Status {
		if err := s.applyStatusTransition(&order, *cmd.Status, now); err != nil {
			return Order{}, err
		}
		statusChanged = true
	}
	if cmd.AssigneeID != nil {
		order.AssigneeID = strings.TrimSpace(*cmd.AssigneeID)
	}
	if cmd.InternalNotes != nil {
		order.InternalNotes = *cmd.InternalNotes
	}
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if statusChanged {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			PreviousStatus: string(prevStatus),
			CurrentStatus:  string(order.Status),
			ActorID:        strings.TrimSpace(cmd.ActorID),
			OccurredAt:     now,
		})
	}

	return order, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.TargetStatus == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prevStatus := order.Status
	if err := s.applyStatusTransition(&order, cmd.TargetStatus, now); err != nil {
		return Order{}, err
	}
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	metadata := map[string]any{}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata["reason"] = reason
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return order, nil
}

// MarkPaid records a confirmed payment against the order and, for orders
// still in NEW, advances them to IN_PROGRESS so the team picks them up.
// Already-paid orders are left untouched, which makes webhook retries safe.
func (s *orderService) MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.PaymentState == domain.PaymentStatePaid {
		return order, nil
	}

	now := s.now()
	prevStatus := order.Status

	order.PaymentState = domain.PaymentStatePaid
	order.PaymentMethod = cmd.Method
	order.PaymentRef = strings.TrimSpace(cmd.PaymentRef)
	order.PaidAt = &now
	order.UpdatedAt = now

	if order.Status == domain.OrderStatusNew {
		if err := s.applyStatusTransition(&order, domain.OrderStatusInProgress, now); err != nil {
			return Order{}, err
		}
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaymentCaptured,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
		Metadata: map[string]any{
			"method":     string(cmd.Method),
			"paymentRef": order.PaymentRef,
		},
	})

	return order, nil
}

// Delete removes the order permanently. This is an explicit admin action with
// no soft-delete or undo semantics.
func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventDeleted,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       strings.TrimSpace(cmd.ActorID),
		OccurredAt:    s.now(),
	})
	return nil
}

// Stats aggregates the dashboard counters over all orders. Cancelled orders
// are excluded from revenue.
func (s *orderService) Stats(ctx context.Context) (OrderStats, error) {
	stats := OrderStats{
		RevenueByMonth: map[string]int64{},
	}

	token := ""
	for {
		page, err := s.orders.List(ctx, repositories.OrderListFilter{
			Pagination: domain.Pagination{PageSize: 500, PageToken: token},
		})
		if err != nil {
			return OrderStats{}, s.mapRepositoryError(err)
		}
		for _, order := range page.Items {
			stats.TotalOrders++
			if stats.Currency == "" {
				stats.Currency = order.Currency
			}
			if order.Status == domain.OrderStatusNew {
				stats.PendingOrders++
			}
			if order.Status == domain.OrderStatusCancelled {
				continue
			}
			stats.TotalRevenue += order.Total
			month := order.CreatedAt.UTC().Format("2006-01")
			stats.RevenueByMonth[month] += order.Total
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	return stats, nil
}

func (s *orderService) applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) error {
	if !target.IsKnown() {
		return fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}
	if !canTransition(order.Status, target) {
		return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, target)
	}
	order.Status = target
	order.UpdatedAt = now
	return nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SL%05d", seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func quoteAddOnIDs(quote Quote) []string {
	if len(quote.AddOns) == 0 {
		return nil
	}
	ids := make([]string, 0, len(quote.AddOns))
	for _, line := range quote.AddOns {
		ids = append(ids, line.AddOnID)
	}
	return ids
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

// canonicalLocale validates and canonicalises a customer language preference.
// An empty tag is allowed and keeps the storefront default.
func canonicalLocale(tag string) (string, error) {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	if tag == "" {
		return "", nil
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("%w: invalid locale %q", ErrOrderInvalidInput, tag)
	}
	return parsed.String(), nil
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
