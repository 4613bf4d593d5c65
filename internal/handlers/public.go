package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/platform/httpx"
	"github.com/seera-lab/api/internal/services"
)

const maxQuoteBodySize = 16 * 1024

// PublicHandlers exposes the unauthenticated storefront endpoints.
type PublicHandlers struct {
	catalog   services.CatalogService
	pricing   services.PricingEngine
	discounts services.DiscountService
}

// NewPublicHandlers constructs a new PublicHandlers instance.
func NewPublicHandlers(catalog services.CatalogService, pricing services.PricingEngine, discounts services.DiscountService) *PublicHandlers {
	return &PublicHandlers{
		catalog:   catalog,
		pricing:   pricing,
		discounts: discounts,
	}
}

// Routes registers the /public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/packages", h.listPackages)
	r.Get("/packages/{packageID}", h.getPackage)
	r.Get("/addons", h.listAddOns)
	r.Post("/quote", h.quote)
	r.Get("/discounts/{code}", h.resolveDiscount)
}

type packagePayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	NameAr      string   `json:"name_ar,omitempty"`
	Description string   `json:"description,omitempty"`
	Price       int64    `json:"price"`
	Currency    string   `json:"currency"`
	Features    []string `json:"features,omitempty"`
}

type addOnPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

func (h *PublicHandlers) listPackages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	packages, err := h.catalog.ListPackages(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load packages", http.StatusInternalServerError))
		return
	}

	items := make([]packagePayload, 0, len(packages))
	for _, pkg := range packages {
		items = append(items, buildPackagePayload(pkg))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *PublicHandlers) getPackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	packageID := strings.TrimSpace(chi.URLParam(r, "packageID"))
	if packageID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "package id is required", http.StatusBadRequest))
		return
	}

	pkg, err := h.catalog.GetPackage(ctx, packageID)
	if err != nil {
		if errors.Is(err, services.ErrCatalogPackageNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("package_not_found", "package not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load package", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPackagePayload(pkg))
}

func (h *PublicHandlers) listAddOns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	addOns, err := h.catalog.ListAddOns(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load add-ons", http.StatusInternalServerError))
		return
	}

	items := make([]addOnPayload, 0, len(addOns))
	for _, addOn := range addOns {
		items = append(items, addOnPayload{
			ID:       addOn.ID,
			Name:     addOn.Name,
			Price:    addOn.Price,
			Currency: addOn.Currency,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

type quoteRequest struct {
	PackageID    string   `json:"package_id"`
	AddOnIDs     []string `json:"addon_ids"`
	DiscountCode string   `json:"discount_code"`
}

type quoteLinePayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type quotePayload struct {
	PackageID       string             `json:"package_id"`
	PackageName     string             `json:"package_name"`
	BasePrice       int64              `json:"base_price"`
	AddOns          []quoteLinePayload `json:"addons"`
	Subtotal        int64              `json:"subtotal"`
	DiscountCode    string             `json:"discount_code,omitempty"`
	DiscountPercent int                `json:"discount_percent,omitempty"`
	DiscountAmount  int64              `json:"discount_amount"`
	Total           int64              `json:"total"`
	Currency        string             `json:"currency"`
}

func (h *PublicHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	body, err := readLimitedBody(r, maxQuoteBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	discountPercent := 0
	discountCode := ""
	if code := strings.TrimSpace(req.DiscountCode); code != "" && h.discounts != nil {
		discount, err := h.discounts.Resolve(ctx, code)
		if err != nil {
			writeDiscountError(ctx, w, err)
			return
		}
		discountPercent = discount.Percent
		discountCode = discount.Code
	}

	quote, err := h.pricing.Quote(ctx, services.QuoteRequest{
		PackageID:       req.PackageID,
		AddOnIDs:        req.AddOnIDs,
		DiscountPercent: discountPercent,
		DiscountCode:    discountCode,
	})
	if err != nil {
		if errors.Is(err, services.ErrPricingInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", "failed to compute quote", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, buildQuotePayload(quote))
}

type discountPayload struct {
	Code      string `json:"code"`
	Percent   int    `json:"percent"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func (h *PublicHandlers) resolveDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discount_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	discount, err := h.discounts.Resolve(ctx, code)
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, discountPayload{
		Code:      discount.Code,
		Percent:   discount.Percent,
		ExpiresAt: formatTime(pointerTime(discount.ExpiresAt)),
	})
}

func buildPackagePayload(pkg services.ServicePackage) packagePayload {
	return packagePayload{
		ID:          pkg.ID,
		Name:        pkg.Name,
		NameAr:      pkg.NameAr,
		Description: pkg.Description,
		Price:       pkg.Price,
		Currency:    pkg.Currency,
		Features:    pkg.Features,
	}
}

func buildQuotePayload(quote domain.Quote) quotePayload {
	lines := make([]quoteLinePayload, 0, len(quote.AddOns))
	for _, line := range quote.AddOns {
		lines = append(lines, quoteLinePayload{
			ID:    line.AddOnID,
			Name:  line.Name,
			Price: line.Price,
		})
	}
	return quotePayload{
		PackageID:       quote.PackageID,
		PackageName:     quote.PackageName,
		BasePrice:       quote.BasePrice,
		AddOns:          lines,
		Subtotal:        quote.Subtotal,
		DiscountCode:    quote.DiscountCode,
		DiscountPercent: quote.DiscountPercent,
		DiscountAmount:  quote.DiscountAmount,
		Total:           quote.Total,
		Currency:        quote.Currency,
	}
}

func writeDiscountError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDiscountCodeEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "discount code is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrDiscountCodeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("discount_not_found", "discount code not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDiscountCodeExpired):
		httpx.WriteError(ctx, w, httpx.NewError("discount_expired", "discount code has expired", http.StatusGone))
	case errors.Is(err, services.ErrDiscountCodeInactive):
		httpx.WriteError(ctx, w, httpx.NewError("discount_inactive", "discount code is not active", http.StatusGone))
	case errors.Is(err, services.ErrDiscountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDiscountCodeConflict):
		httpx.WriteError(ctx, w, httpx.NewError("discount_conflict", "discount code already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("discount_error", "failed to process discount request", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}
