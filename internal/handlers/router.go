package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/seera-lab/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

const (
	groupPublic   = "public"
	groupOrders   = "orders"
	groupPayments = "payments"
	groupAdmin    = "admin"
	groupWebhooks = "webhooks"
	groupInternal = "internal"
)

// mountOrder fixes the order route groups appear under the API prefix. Every
// group is always mounted; a group without a registrar answers 501 so that a
// missing wiring step fails loudly instead of as a generic 404.
var mountOrder = []string{
	groupPublic,
	groupOrders,
	groupPayments,
	groupAdmin,
	groupWebhooks,
	groupInternal,
}

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	registrars  map[string]RouteRegistrar
	groupMW     map[string][]func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter constructs the chi router with shared middleware and the fixed
// route groups of the storefront API.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
		registrars: make(map[string]RouteRegistrar),
		groupMW:    make(map[string][]func(http.Handler) http.Handler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, name := range mountOrder {
			cfg.mount(api, name)
		}
	})

	return r
}

func (cfg *routerConfig) mount(api chi.Router, name string) {
	api.Route("/"+name, func(group chi.Router) {
		for _, mw := range cfg.groupMW[name] {
			if mw != nil {
				group.Use(mw)
			}
		}
		if registrar := cfg.registrars[name]; registrar != nil {
			registrar(group)
			return
		}

		stub := func(w http.ResponseWriter, req *http.Request) {
			httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
		}
		group.HandleFunc("/*", stub)
		group.HandleFunc("/", stub)
		group.NotFound(stub)
		group.MethodNotAllowed(stub)
	})
}

func routesOption(name string) func(RouteRegistrar) Option {
	return func(reg RouteRegistrar) Option {
		return func(cfg *routerConfig) {
			cfg.registrars[name] = reg
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithPublicRoutes configures the registrar for the catalog and other
// unauthenticated endpoints.
var WithPublicRoutes = routesOption(groupPublic)

// WithOrderRoutes configures the registrar for customer order endpoints.
var WithOrderRoutes = routesOption(groupOrders)

// WithPaymentRoutes configures the registrar for payment endpoints.
var WithPaymentRoutes = routesOption(groupPayments)

// WithAdminRoutes configures the registrar for staff and admin endpoints.
var WithAdminRoutes = routesOption(groupAdmin)

// WithWebhookRoutes configures the registrar for gateway webhook endpoints.
var WithWebhookRoutes = routesOption(groupWebhooks)

// WithInternalRoutes configures the registrar for service-to-service jobs.
var WithInternalRoutes = routesOption(groupInternal)

// WithWebhookMiddlewares configures middlewares applied to the /webhooks group.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.groupMW[groupWebhooks] = append(cfg.groupMW[groupWebhooks], mw...)
	}
}

// WithInternalMiddlewares configures middlewares applied to the /internal group.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.groupMW[groupInternal] = append(cfg.groupMW[groupInternal], mw...)
	}
}
