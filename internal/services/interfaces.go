package services

import (
	"context"
	"time"

	domain "github.com/seera-lab/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	CustomerInfo       = domain.CustomerInfo
	Customer           = domain.Customer
	TeamMember         = domain.TeamMember
	DiscountCode       = domain.DiscountCode
	Message            = domain.Message
	PaymentAttempt     = domain.PaymentAttempt
	ServicePackage     = domain.ServicePackage
	AddOn              = domain.AddOn
	Quote              = domain.Quote
	Timeline           = domain.Timeline
	SystemHealthReport = domain.SystemHealthReport
	AuditLogEntry      = domain.AuditLogEntry
)

// CatalogService exposes the storefront packages and add-ons.
type CatalogService interface {
	ListPackages(ctx context.Context) ([]ServicePackage, error)
	GetPackage(ctx context.Context, packageID string) (ServicePackage, error)
	ListAddOns(ctx context.Context) ([]AddOn, error)
}

// PricingEngine computes quotes from a package selection, add-ons, and a discount percentage.
type PricingEngine interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
}

// DiscountService validates and administers discount codes.
type DiscountService interface {
	Resolve(ctx context.Context, code string) (DiscountCode, error)
	RecordRedemption(ctx context.Context, code string) error
	ListCodes(ctx context.Context, filter DiscountListFilter) (domain.CursorPage[DiscountCode], error)
	CreateCode(ctx context.Context, cmd UpsertDiscountCommand) (DiscountCode, error)
	UpdateCode(ctx context.Context, cmd UpsertDiscountCommand) (DiscountCode, error)
	DeleteCode(ctx context.Context, code string) error
}

// OrderService owns the order lifecycle from checkout submission onwards.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	Update(ctx context.Context, cmd UpdateOrderCommand) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) error
	Stats(ctx context.Context) (OrderStats, error)
}

// PaymentService coordinates the wallet OTP flow and the bank transfer path
// against the payment gateway, and links confirmed payments back to the order.
type PaymentService interface {
	InitiateWalletPayment(ctx context.Context, cmd InitiateWalletPaymentCommand) (PaymentAttempt, error)
	ConfirmWalletPayment(ctx context.Context, cmd ConfirmWalletPaymentCommand) (PaymentAttempt, error)
	HandleGatewayWebhook(ctx context.Context, event GatewayWebhookEvent) error
	BankTransferInstructions(ctx context.Context, orderID string) (BankTransferInstructions, error)
	ReconcilePending(ctx context.Context, cmd ReconcilePaymentsCommand) (ReconcileReport, error)
}

// MessageService is the order-scoped messaging channel between clients and staff.
type MessageService interface {
	Post(ctx context.Context, cmd PostMessageCommand) (Message, error)
	ListSince(ctx context.Context, orderID string, after time.Time, pager Pagination) (domain.CursorPage[Message], error)
}

// CustomerService reads the per-email customer aggregates maintained by checkout.
type CustomerService interface {
	List(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[Customer], error)
	Get(ctx context.Context, email string) (Customer, error)
}

// TeamService administers staff member profiles.
type TeamService interface {
	List(ctx context.Context, filter TeamListFilter) (domain.CursorPage[TeamMember], error)
	Get(ctx context.Context, memberID string) (TeamMember, error)
	Create(ctx context.Context, cmd UpsertTeamMemberCommand) (TeamMember, error)
	Update(ctx context.Context, cmd UpsertTeamMemberCommand) (TeamMember, error)
	Delete(ctx context.Context, memberID string) error
}

// SystemService aggregates utility endpoints (health checks, build metadata).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// Command and DTO definitions ------------------------------------------------

// QuoteRequest describes a pricing request from the storefront or checkout.
type QuoteRequest struct {
	PackageID       string
	AddOnIDs        []string
	DiscountPercent int
	DiscountCode    string
}

type DiscountListFilter struct {
	ActiveOnly bool
	Pagination
}

// UpsertDiscountCommand carries validated fields for discount code creation and edits,
// decoupled from any particular input mechanism.
type UpsertDiscountCommand struct {
	Code      string
	Percent   int
	ExpiresAt *time.Time
	Active    *bool
	ActorID   string
}

type CreateOrderCommand struct {
	PackageID    string
	AddOnIDs     []string
	DiscountCode string
	Customer     CustomerInfo
	Goals        string
	Metadata     map[string]any
}

type OrderListFilter struct {
	Status     []OrderStatus
	AssigneeID string
	Email      string
	Search     string
	DateFrom   *time.Time
	DateTo     *time.Time
	Pagination
}

// UpdateOrderCommand mutates the admin-editable order fields. Only status,
// assignee, and internal notes may change after creation; nil leaves a field
// untouched.
type UpdateOrderCommand struct {
	OrderID       string
	Status        *OrderStatus
	AssigneeID    *string
	InternalNotes *string
	ActorID       string
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
	Reason       string
}

type MarkOrderPaidCommand struct {
	OrderID    string
	Method     domain.PaymentMethod
	PaymentRef string
	ActorID    string
}

type DeleteOrderCommand struct {
	OrderID string
	ActorID string
}

// OrderStats summarises the dashboard counters shown in the back office.
type OrderStats struct {
	TotalOrders    int64
	PendingOrders  int64
	TotalRevenue   int64
	Currency       string
	RevenueByMonth map[string]int64
}

type InitiateWalletPaymentCommand struct {
	OrderID string
	Phone   string
}

type ConfirmWalletPaymentCommand struct {
	ChargeID string
	OTP      string
}

// GatewayWebhookEvent is the normalised charge update pushed by the gateway.
type GatewayWebhookEvent struct {
	ChargeID string
	Status   string
	OrderID  string
	Raw      map[string]any
}

// ReconcilePaymentsCommand bounds one reconciliation sweep over attempts
// still pending at the gateway.
type ReconcilePaymentsCommand struct {
	OlderThan time.Time
	Limit     int
}

// ReconcileReport summarises one reconciliation sweep.
type ReconcileReport struct {
	Scanned  int
	Captured int
	Failed   int
	Errors   int
}

// BankTransferInstructions carries the static beneficiary details plus the
// order number the customer must quote as the payment reference.
type BankTransferInstructions struct {
	BankName      string
	AccountName   string
	IBAN          string
	Amount        int64
	Currency      string
	Reference     string
	ContactLink   string
	ContactNumber string
}

type PostMessageCommand struct {
	OrderID string
	Sender  string
	Body    string
}

type CustomerListFilter struct {
	Search string
	Pagination
}

type TeamListFilter struct {
	ActiveOnly bool
	Pagination
}

type UpsertTeamMemberCommand struct {
	MemberID string
	Name     string
	Email    string
	Position string
	Active   *bool
	ActorID  string
}

// AuditLogRecord captures one back-office action for the audit trail.
type AuditLogRecord struct {
	ActorID    string
	Action     string
	TargetKind string
	TargetID   string
	Detail     map[string]any
}

type AuditLogFilter struct {
	ActorID    string
	Action     string
	TargetKind string
	TargetID   string
	DateFrom   *time.Time
	DateTo     *time.Time
	Pagination
}
