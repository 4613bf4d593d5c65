package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/seera-lab/api/internal/platform/firestore"
	"github.com/seera-lab/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	orders    *OrderRepository
	customers *CustomerRepository
	team      *TeamRepository
	discounts *DiscountRepository
	messages  *MessageRepository
	attempts  *PaymentAttemptRepository
	auditLogs *AuditLogRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository against the shared provider.
// The health repository is injected because its dependency checks reach beyond
// Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	reg := &Registry{provider: provider, health: health}

	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: order repository: %w", err)
	}
	if reg.customers, err = NewCustomerRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: customer repository: %w", err)
	}
	if reg.team, err = NewTeamRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: team repository: %w", err)
	}
	if reg.discounts, err = NewDiscountRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: discount repository: %w", err)
	}
	if reg.messages, err = NewMessageRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: message repository: %w", err)
	}
	if reg.attempts, err = NewPaymentAttemptRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: payment attempt repository: %w", err)
	}
	if reg.auditLogs, err = NewAuditLogRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: audit log repository: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: counter repository: %w", err)
	}

	return reg, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn as one logical unit. The repositories issue independent
// document writes, so this is sequential execution rather than a Firestore
// transaction; callers tolerate partial application on crash.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Customers() repositories.CustomerRepository { return r.customers }

func (r *Registry) Team() repositories.TeamRepository { return r.team }

func (r *Registry) Discounts() repositories.DiscountRepository { return r.discounts }

func (r *Registry) Messages() repositories.MessageRepository { return r.messages }

func (r *Registry) PaymentAttempts() repositories.PaymentAttemptRepository { return r.attempts }

func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.auditLogs }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
