package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/seera-lab/api/internal/domain"
)

var (
	// ErrPricingInvalidInput signals bad request data such as a missing package
	// or a discount percentage outside [0, 100].
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

// PricingEngineDeps bundles collaborators needed to price a quote.
type PricingEngineDeps struct {
	Catalog CatalogService
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type pricingEngine struct {
	catalog CatalogService
	logger  func(context.Context, string, map[string]any)
}

var _ PricingEngine = (*pricingEngine)(nil)

// NewPricingEngine wires the catalog into a PricingEngine implementation.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing engine: catalog service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingEngine{catalog: deps.Catalog, logger: logger}, nil
}

// Quote prices a package selection. The subtotal is the package price plus
// every selected add-on's price; ids not present in the catalog are ignored.
// The total applies the discount percentage and rounds half-up to the nearest
// whole currency unit.
func (e *pricingEngine) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return Quote{}, fmt.Errorf("%w: discount percent %d outside [0, 100]", ErrPricingInvalidInput, req.DiscountPercent)
	}

	pkg, err := e.catalog.GetPackage(ctx, req.PackageID)
	if err != nil {
		if errors.Is(err, ErrCatalogPackageNotFound) {
			return Quote{}, fmt.Errorf("%w: unknown package %q", ErrPricingInvalidInput, req.PackageID)
		}
		return Quote{}, err
	}
	if pkg.Price < 0 {
		return Quote{}, fmt.Errorf("%w: package %q has negative price", ErrPricingInvalidInput, pkg.ID)
	}

	quote := Quote{
		PackageID:       pkg.ID,
		PackageName:     pkg.Name,
		BasePrice:       pkg.Price,
		Subtotal:        pkg.Price,
		DiscountCode:    strings.ToUpper(strings.TrimSpace(req.DiscountCode)),
		DiscountPercent: req.DiscountPercent,
		Currency:        pkg.Currency,
	}

	addOns, err := e.catalog.ListAddOns(ctx)
	if err != nil {
		return Quote{}, err
	}
	available := make(map[string]AddOn, len(addOns))
	for _, addOn := range addOns {
		available[addOn.ID] = addOn
	}

	seen := make(map[string]bool, len(req.AddOnIDs))
	for _, id := range req.AddOnIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		addOn, ok := available[id]
		if !ok {
			e.logger(ctx, "pricing.addon.unknown", map[string]any{
				"addOn":   id,
				"package": pkg.ID,
			})
			continue
		}
		quote.AddOns = append(quote.AddOns, domain.QuoteLine{AddOnID: addOn.ID, Name: addOn.Name, Price: addOn.Price})
		quote.Subtotal += addOn.Price
	}

	quote.DiscountAmount = roundHalfUpPercent(quote.Subtotal, int64(req.DiscountPercent))
	quote.Total = quote.Subtotal - quote.DiscountAmount
	return quote, nil
}

// roundHalfUpPercent computes round(amount * percent / 100) with half-up
// rounding using integer arithmetic, matching whole-unit currency handling.
func roundHalfUpPercent(amount int64, percent int64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return (amount*percent + 50) / 100
}
