package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seera-lab/api/internal/payments"
	"github.com/seera-lab/api/internal/platform/config"
	"github.com/seera-lab/api/internal/repositories"
	"github.com/seera-lab/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog   services.CatalogService
	Pricing   services.PricingEngine
	Discounts services.DiscountService
	Orders    services.OrderService
	Payments  services.PaymentService
	Messages  services.MessageService
	Customers services.CustomerService
	Team      services.TeamService
	System    services.SystemService
	AuditLogs services.AuditLogService
}

// Deps carries collaborators constructed outside the repository registry.
type Deps struct {
	Gateway      *payments.Manager
	Events       services.OrderEventPublisher
	BankTransfer services.BankTransferConfig
	Build        services.BuildInfo
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps Deps) (Services, error) {
	var svc Services

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Catalog: catalogSvc,
		Logger:  logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			AuditLogs: auditRepo,
			Clock:     clock,
			Logger:    logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.AuditLogs = auditSvc
	}

	if discountRepo := reg.Discounts(); discountRepo != nil {
		discountSvc, err := services.NewDiscountService(services.DiscountServiceDeps{
			Discounts: discountRepo,
			Clock:     clock,
			Logger:    logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build discount service: %w", err)
		}
		svc.Discounts = discountSvc
	}

	ordersRepo := reg.Orders()
	if ordersRepo != nil && reg.Counters() != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:     ordersRepo,
			Customers:  reg.Customers(),
			Counters:   reg.Counters(),
			Pricing:    pricing,
			Discounts:  svc.Discounts,
			UnitOfWork: reg,
			Clock:      clock,
			Events:     deps.Events,
			Logger:     logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if svc.Orders != nil && reg.PaymentAttempts() != nil && deps.Gateway != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Orders:       svc.Orders,
			Attempts:     reg.PaymentAttempts(),
			Gateway:      deps.Gateway,
			BankTransfer: deps.BankTransfer,
			Clock:        clock,
			Logger:       logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	if messagesRepo := reg.Messages(); messagesRepo != nil && ordersRepo != nil {
		messageSvc, err := services.NewMessageService(services.MessageServiceDeps{
			Messages: messagesRepo,
			Orders:   ordersRepo,
			Clock:    clock,
			Logger:   logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build message service: %w", err)
		}
		svc.Messages = messageSvc
	}

	if customersRepo := reg.Customers(); customersRepo != nil {
		customerSvc, err := services.NewCustomerService(services.CustomerServiceDeps{
			Customers: customersRepo,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build customer service: %w", err)
		}
		svc.Customers = customerSvc
	}

	if teamRepo := reg.Team(); teamRepo != nil {
		teamSvc, err := services.NewTeamService(services.TeamServiceDeps{
			Team:   teamRepo,
			Clock:  clock,
			Logger: logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build team service: %w", err)
		}
		svc.Team = teamSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := deps.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
