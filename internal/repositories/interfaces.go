package repositories

import (
	"context"
	"time"

	domain "github.com/seera-lab/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Customers() CustomerRepository
	Team() TeamRepository
	Discounts() DiscountRepository
	Messages() MessageRepository
	PaymentAttempts() PaymentAttemptRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists service orders and their back-office mutations.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// CustomerRepository stores per-email customer aggregates.
type CustomerRepository interface {
	Upsert(ctx context.Context, customer domain.Customer) (domain.Customer, error)
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
	List(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[domain.Customer], error)
}

// TeamRepository manages staff member profiles used for order assignment.
type TeamRepository interface {
	Insert(ctx context.Context, member domain.TeamMember) error
	Update(ctx context.Context, member domain.TeamMember) error
	Delete(ctx context.Context, memberID string) error
	FindByID(ctx context.Context, memberID string) (domain.TeamMember, error)
	List(ctx context.Context, filter TeamListFilter) (domain.CursorPage[domain.TeamMember], error)
}

// DiscountRepository stores discount codes keyed by their normalised code.
type DiscountRepository interface {
	Insert(ctx context.Context, code domain.DiscountCode) error
	Update(ctx context.Context, code domain.DiscountCode) error
	Delete(ctx context.Context, codeID string) error
	FindByCode(ctx context.Context, code string) (domain.DiscountCode, error)
	IncrementUsage(ctx context.Context, codeID string, delta int64) error
	List(ctx context.Context, filter DiscountListFilter) (domain.CursorPage[domain.DiscountCode], error)
}

// MessageRepository appends and reads the per-order messaging channel.
type MessageRepository interface {
	Append(ctx context.Context, message domain.Message) error
	ListSince(ctx context.Context, orderID string, after time.Time, pager domain.Pagination) (domain.CursorPage[domain.Message], error)
}

// PaymentAttemptRepository records wallet charge sessions keyed by gateway charge id.
type PaymentAttemptRepository interface {
	Insert(ctx context.Context, attempt domain.PaymentAttempt) error
	Update(ctx context.Context, attempt domain.PaymentAttempt) error
	FindByChargeID(ctx context.Context, chargeID string) (domain.PaymentAttempt, error)
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentAttempt, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	Status     []domain.OrderStatus
	AssigneeID string
	Email      string
	Search     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type CustomerListFilter struct {
	Search     string
	Pagination domain.Pagination
}

type TeamListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

type DiscountListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

type AuditLogFilter struct {
	ActorID    string
	Action     string
	TargetKind string
	TargetID   string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
