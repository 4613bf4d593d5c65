package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps paged results with an optional continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus captures the lifecycle state of a service order.
type OrderStatus string

const (
	// OrderStatusNew indicates the order has been submitted and awaits payment or pickup.
	OrderStatusNew OrderStatus = "NEW"
	// OrderStatusInProgress indicates the team is actively working on the deliverables.
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	// OrderStatusCompleted indicates all deliverables have been handed over. Terminal.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled indicates the order was cancelled before completion. Terminal.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// KnownOrderStatuses lists the closed status enumeration in documented flow order.
var KnownOrderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusInProgress,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// IsKnown reports whether the status is one of the four defined values.
func (s OrderStatus) IsKnown() bool {
	switch s {
	case OrderStatusNew, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// PaymentState tracks how far payment confirmation has progressed for an order.
type PaymentState string

const (
	// PaymentStateUnpaid indicates no payment confirmation has been received.
	PaymentStateUnpaid PaymentState = "unpaid"
	// PaymentStatePending indicates a bank transfer was announced but not confirmed.
	PaymentStatePending PaymentState = "pending"
	// PaymentStatePaid indicates the gateway or an operator confirmed payment.
	PaymentStatePaid PaymentState = "paid"
)

// PaymentMethod identifies the payment path a customer selected.
type PaymentMethod string

const (
	// PaymentMethodWallet is the mobile-wallet OTP path through the gateway.
	PaymentMethodWallet PaymentMethod = "wallet"
	// PaymentMethodBankTransfer is the manual bank transfer path.
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// CustomerInfo carries the contact details captured at checkout. Locale is a
// BCP 47 tag ("ar", "en") selecting the language for customer-facing copy.
type CustomerInfo struct {
	Name   string
	Email  string
	Phone  string
	Locale string
}

// Order is the central purchase entity moving through the lifecycle.
type Order struct {
	ID              string
	OrderNumber     string
	PackageID       string
	PackageName     string
	BasePrice       int64
	AddOns          []string
	DiscountCode    string
	DiscountPercent int
	Subtotal        int64
	Total           int64
	Currency        string
	Customer        CustomerInfo
	Goals           string
	Status          OrderStatus
	AssigneeID      string
	InternalNotes   string
	PaymentState    PaymentState
	PaymentMethod   PaymentMethod
	PaymentRef      string
	PaidAt          *time.Time
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DiscountCode is a redeemable percentage reduction subject to expiry and an active flag.
type DiscountCode struct {
	ID         string
	Code       string
	Percent    int
	ExpiresAt  *time.Time
	Active     bool
	UsageCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TeamMember is a staff profile orders can be assigned to. Order.AssigneeID is a
// weak reference: deleting a member leaves assigned orders pointing at a missing
// id, and reads degrade to an unassigned display.
type TeamMember struct {
	ID        string
	Name      string
	Email     string
	Position  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Customer aggregates a contact across every order placed with the same email.
type Customer struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	OrderCount   int64
	TotalSpend   int64
	FirstOrderAt time.Time
	LastOrderAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is a single entry on an order's client/staff messaging channel.
type Message struct {
	ID        string
	OrderID   string
	Sender    string
	Body      string
	CreatedAt time.Time
}

// PaymentAttemptState enumerates the wallet charge flow states.
type PaymentAttemptState string

const (
	// PaymentAttemptInitiated indicates a charge was requested from the gateway.
	PaymentAttemptInitiated PaymentAttemptState = "initiated"
	// PaymentAttemptOTPSent indicates the gateway dispatched the one-time code.
	PaymentAttemptOTPSent PaymentAttemptState = "otp_sent"
	// PaymentAttemptVerifying indicates an OTP confirmation is in flight.
	PaymentAttemptVerifying PaymentAttemptState = "verifying"
	// PaymentAttemptCaptured indicates the gateway captured the funds. Terminal.
	PaymentAttemptCaptured PaymentAttemptState = "captured"
	// PaymentAttemptFailed indicates the gateway reported a terminal failure.
	PaymentAttemptFailed PaymentAttemptState = "failed"
)

// PaymentAttempt records one wallet charge session keyed by the gateway charge id.
type PaymentAttempt struct {
	ID        string
	ChargeID  string
	OrderID   string
	Amount    int64
	Currency  string
	State     PaymentAttemptState
	Gateway   string
	Raw       map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StageState describes one stage of the client-facing progress timeline.
type StageState string

const (
	// StagePending marks a stage that has not started.
	StagePending StageState = "pending"
	// StageActive marks the stage currently underway.
	StageActive StageState = "active"
	// StageCompleted marks a finished stage.
	StageCompleted StageState = "completed"
)

// TimelineStage names the three client-visible stages in display order.
type TimelineStage string

const (
	// TimelineStageReview covers initial intake and review of the request.
	TimelineStageReview TimelineStage = "review"
	// TimelineStageWork covers the drafting/production work.
	TimelineStageWork TimelineStage = "work"
	// TimelineStageDelivery covers final delivery of the documents.
	TimelineStageDelivery TimelineStage = "delivery"
)

// Timeline is the ordered 3-stage projection of an order status.
type Timeline struct {
	Review   StageState
	Work     StageState
	Delivery StageState
}

// AuditLogEntry records a back-office action for later review.
type AuditLogEntry struct {
	ID         string
	ActorID    string
	Action     string
	TargetKind string
	TargetID   string
	Detail     map[string]any
	CreatedAt  time.Time
}
