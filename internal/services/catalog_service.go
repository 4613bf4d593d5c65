package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/seera-lab/api/internal/domain"
)

const catalogCurrency = "SAR"

var (
	// ErrCatalogPackageNotFound indicates the requested package id is not in the catalog.
	ErrCatalogPackageNotFound = errors.New("catalog: package not found")
)

// defaultPackages is the seeded storefront catalog. Prices are the public
// prices after the standing launch discount, in whole riyals.
var defaultPackages = []domain.ServicePackage{
	{
		ID:       "basic",
		Name:     "Basic Resume",
		NameAr:   "السيرة الأساسية",
		Price:    159,
		Currency: catalogCurrency,
		Features: []string{"ATS-friendly resume", "2 revision rounds", "Delivery within 3 days"},
		Active:   true,
	},
	{
		ID:       "premium",
		Name:     "Premium Resume",
		NameAr:   "السيرة الاحترافية",
		Price:    279,
		Currency: catalogCurrency,
		Features: []string{"ATS-friendly resume", "Unlimited revisions", "Cover letter draft", "Delivery within 2 days"},
		Active:   true,
	},
	{
		ID:       "vip",
		Name:     "VIP Package",
		NameAr:   "باقة كبار الشخصيات",
		Price:    399,
		Currency: catalogCurrency,
		Features: []string{"Resume + LinkedIn profile", "Unlimited revisions", "Interview preparation call", "Next-day delivery"},
		Active:   true,
	},
	{
		ID:       "cv-improvement",
		Name:     "CV Improvement",
		NameAr:   "تحسين السيرة الذاتية",
		Price:    239,
		Currency: catalogCurrency,
		Features: []string{"Review of an existing CV", "Targeted rewrite of weak sections"},
		Active:   true,
	},
	{
		ID:       "linkedin-junior",
		Name:     "LinkedIn Profile — Junior",
		NameAr:   "ملف لينكدإن — مبتدئ",
		Price:    120,
		Currency: catalogCurrency,
		Features: []string{"Headline and summary rewrite", "Skills and keywords optimisation"},
		Active:   true,
	},
	{
		ID:       "linkedin-mid",
		Name:     "LinkedIn Profile — Mid-level",
		NameAr:   "ملف لينكدإن — متوسط",
		Price:    200,
		Currency: catalogCurrency,
		Features: []string{"Full profile rewrite", "Experience section restructure"},
		Active:   true,
	},
	{
		ID:       "linkedin-senior",
		Name:     "LinkedIn Profile — Senior",
		NameAr:   "ملف لينكدإن — قيادي",
		Price:    280,
		Currency: catalogCurrency,
		Features: []string{"Executive positioning", "Full profile rewrite", "Recruiter outreach tips"},
		Active:   true,
	},
}

var defaultAddOns = []domain.AddOn{
	{ID: "cover-letter", Name: "Cover Letter", NameAr: "خطاب التقديم", Price: 79, Currency: catalogCurrency, Active: true},
	{ID: "interview-prep", Name: "Interview Preparation", NameAr: "التحضير للمقابلة", Price: 149, Currency: catalogCurrency, Active: true},
}

// CatalogServiceDeps allows overriding the seeded catalog, primarily for tests.
type CatalogServiceDeps struct {
	Packages []domain.ServicePackage
	AddOns   []domain.AddOn
}

type catalogService struct {
	packages []domain.ServicePackage
	addOns   []domain.AddOn
	byID     map[string]domain.ServicePackage
	addOnsBy map[string]domain.AddOn
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog, falling back to the seeded defaults.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	packages := deps.Packages
	if len(packages) == 0 {
		packages = defaultPackages
	}
	addOns := deps.AddOns
	if len(addOns) == 0 {
		addOns = defaultAddOns
	}

	byID := make(map[string]domain.ServicePackage, len(packages))
	for _, pkg := range packages {
		id := strings.TrimSpace(pkg.ID)
		if id == "" {
			return nil, errors.New("catalog service: package id is required")
		}
		if _, exists := byID[id]; exists {
			return nil, fmt.Errorf("catalog service: duplicate package id %q", id)
		}
		byID[id] = pkg
	}

	addOnsBy := make(map[string]domain.AddOn, len(addOns))
	for _, addOn := range addOns {
		id := strings.TrimSpace(addOn.ID)
		if id == "" {
			return nil, errors.New("catalog service: add-on id is required")
		}
		if _, exists := addOnsBy[id]; exists {
			return nil, fmt.Errorf("catalog service: duplicate add-on id %q", id)
		}
		addOnsBy[id] = addOn
	}

	return &catalogService{
		packages: packages,
		addOns:   addOns,
		byID:     byID,
		addOnsBy: addOnsBy,
	}, nil
}

func (s *catalogService) ListPackages(_ context.Context) ([]ServicePackage, error) {
	out := make([]ServicePackage, 0, len(s.packages))
	for _, pkg := range s.packages {
		if pkg.Active {
			out = append(out, pkg)
		}
	}
	return out, nil
}

func (s *catalogService) GetPackage(_ context.Context, packageID string) (ServicePackage, error) {
	pkg, ok := s.byID[strings.TrimSpace(packageID)]
	if !ok || !pkg.Active {
		return ServicePackage{}, fmt.Errorf("%w: %q", ErrCatalogPackageNotFound, packageID)
	}
	return pkg, nil
}

func (s *catalogService) ListAddOns(_ context.Context) ([]AddOn, error) {
	out := make([]AddOn, 0, len(s.addOns))
	for _, addOn := range s.addOns {
		if addOn.Active {
			out = append(out, addOn)
		}
	}
	return out, nil
}
