package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Status mirrors the charge states reported by the gateway.
type Status string

const (
	// StatusInitiated indicates the charge was created and the wallet OTP dispatched.
	StatusInitiated Status = "INITIATED"
	// StatusCaptured indicates the gateway captured the funds. The only success state.
	StatusCaptured Status = "CAPTURED"
	// StatusFailed indicates the gateway reported a terminal failure.
	StatusFailed Status = "FAILED"
	// StatusDeclined indicates the charge was declined by the wallet issuer.
	StatusDeclined Status = "DECLINED"
	// StatusAbandoned indicates the customer never completed OTP entry.
	StatusAbandoned Status = "ABANDONED"
)

// IsCaptured reports whether the status is the sole success state.
func (s Status) IsCaptured() bool {
	return s == StatusCaptured
}

// IsTerminalFailure reports whether the gateway will not progress the charge further.
func (s Status) IsTerminalFailure() bool {
	switch s {
	case StatusFailed, StatusDeclined, StatusAbandoned:
		return true
	}
	return false
}

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ChargeCustomer carries the cardholder contact details sent with a charge.
type ChargeCustomer struct {
	Name  string
	Email string
	Phone string
}

// ChargeRequest captures the payload required to open a wallet charge.
type ChargeRequest struct {
	OrderID     string
	OrderNumber string
	Amount      int64
	Currency    string
	Description string
	Customer    ChargeCustomer
	WalletPhone string
	Metadata    map[string]string
}

// Charge normalises gateway specific charge fields for storage.
type Charge struct {
	ID       string
	Provider string
	OrderID  string
	Status   Status
	Amount   int64
	Currency string
	Raw      map[string]any
}

// VerifyOTPRequest forwards the customer supplied one-time code to the gateway.
type VerifyOTPRequest struct {
	ChargeID string
	OTP      string
}

// Provider defines the contract for wallet gateway adapters to implement.
type Provider interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	VerifyOTP(ctx context.Context, req VerifyOTPRequest) (Charge, error)
	LookupCharge(ctx context.Context, chargeID string) (Charge, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["tap"]; ok {
		m.defaultProvider = "tap"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
	Metadata          map[string]string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCharge delegates to the resolved provider.
func (m *Manager) CreateCharge(ctx context.Context, paymentCtx PaymentContext, req ChargeRequest) (Charge, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Charge{}, err
	}
	charge, err := provider.CreateCharge(ctx, req)
	if err != nil {
		return Charge{}, err
	}
	charge.Provider = key
	return charge, nil
}

// VerifyOTP delegates to the resolved provider.
func (m *Manager) VerifyOTP(ctx context.Context, paymentCtx PaymentContext, req VerifyOTPRequest) (Charge, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Charge{}, err
	}
	charge, err := provider.VerifyOTP(ctx, req)
	if err != nil {
		return Charge{}, err
	}
	charge.Provider = key
	return charge, nil
}

// LookupCharge delegates to the resolved provider.
func (m *Manager) LookupCharge(ctx context.Context, paymentCtx PaymentContext, chargeID string) (Charge, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Charge{}, err
	}
	charge, err := provider.LookupCharge(ctx, chargeID)
	if err != nil {
		return Charge{}, err
	}
	charge.Provider = key
	return charge, nil
}
