package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/seera-lab/api/internal/domain"
)

func testCatalog(t *testing.T) CatalogService {
	t.Helper()
	catalog, err := NewCatalogService(CatalogServiceDeps{
		Packages: []domain.ServicePackage{
			{ID: "premium", Name: "Premium Package", Price: 499, Currency: "SAR", Active: true},
			{ID: "retired", Name: "Retired Package", Price: 100, Currency: "SAR", Active: false},
		},
		AddOns: []domain.AddOn{
			{ID: "cover-letter", Name: "Cover Letter", Price: 79, Currency: "SAR", Active: true},
			{ID: "interview-prep", Name: "Interview Preparation", Price: 149, Currency: "SAR", Active: true},
		},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	return catalog
}

func TestPricingEngineQuote(t *testing.T) {
	ctx := context.Background()
	engine, err := NewPricingEngine(PricingEngineDeps{Catalog: testCatalog(t)})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}

	quote, err := engine.Quote(ctx, QuoteRequest{
		PackageID: "premium",
		AddOnIDs:  []string{"cover-letter", "interview-prep"},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.BasePrice != 499 {
		t.Fatalf("unexpected base price %d", quote.BasePrice)
	}
	if quote.Subtotal != 727 {
		t.Fatalf("unexpected subtotal %d", quote.Subtotal)
	}
	if quote.Total != 727 || quote.DiscountAmount != 0 {
		t.Fatalf("unexpected total %d discount %d", quote.Total, quote.DiscountAmount)
	}
	if quote.Currency != "SAR" {
		t.Fatalf("unexpected currency %s", quote.Currency)
	}
	if len(quote.AddOns) != 2 {
		t.Fatalf("expected 2 add-on lines got %d", len(quote.AddOns))
	}
}

func TestPricingEngineQuoteAppliesDiscountHalfUp(t *testing.T) {
	ctx := context.Background()
	engine, err := NewPricingEngine(PricingEngineDeps{Catalog: testCatalog(t)})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}

	// 15% of 499 is 74.85, which rounds half-up to 75.
	quote, err := engine.Quote(ctx, QuoteRequest{
		PackageID:       "premium",
		DiscountPercent: 15,
		DiscountCode:    "save15",
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.DiscountAmount != 75 {
		t.Fatalf("expected discount 75 got %d", quote.DiscountAmount)
	}
	if quote.Total != 424 {
		t.Fatalf("expected total 424 got %d", quote.Total)
	}
	if quote.DiscountCode != "SAVE15" {
		t.Fatalf("expected uppercased code got %s", quote.DiscountCode)
	}
}

func TestPricingEngineQuoteIgnoresUnknownAndDuplicateAddOns(t *testing.T) {
	ctx := context.Background()
	engine, err := NewPricingEngine(PricingEngineDeps{Catalog: testCatalog(t)})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}

	quote, err := engine.Quote(ctx, QuoteRequest{
		PackageID: "premium",
		AddOnIDs:  []string{"cover-letter", "cover-letter", "no-such-addon", " "},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Subtotal != 578 {
		t.Fatalf("duplicates and unknown ids must not change the subtotal, got %d", quote.Subtotal)
	}
	if len(quote.AddOns) != 1 {
		t.Fatalf("expected single add-on line got %d", len(quote.AddOns))
	}
}

func TestPricingEngineQuoteRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	engine, err := NewPricingEngine(PricingEngineDeps{Catalog: testCatalog(t)})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}

	if _, err := engine.Quote(ctx, QuoteRequest{PackageID: "premium", DiscountPercent: 120}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input for percent got %v", err)
	}
	if _, err := engine.Quote(ctx, QuoteRequest{PackageID: "no-such-package"}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input for unknown package got %v", err)
	}
	if _, err := engine.Quote(ctx, QuoteRequest{PackageID: "retired"}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("inactive packages must not be quotable, got %v", err)
	}
}

func TestRoundHalfUpPercent(t *testing.T) {
	cases := []struct {
		amount  int64
		percent int64
		want    int64
	}{
		{499, 15, 75},
		{499, 10, 50},
		{100, 0, 0},
		{0, 50, 0},
		{101, 50, 51},
		{578, 10, 58},
	}
	for _, tc := range cases {
		if got := roundHalfUpPercent(tc.amount, tc.percent); got != tc.want {
			t.Fatalf("roundHalfUpPercent(%d, %d) = %d, want %d", tc.amount, tc.percent, got, tc.want)
		}
	}
}
