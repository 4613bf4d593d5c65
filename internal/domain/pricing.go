package domain

// ServicePackage is a purchasable base offering from the storefront catalog.
type ServicePackage struct {
	ID          string
	Name        string
	NameAr      string
	Description string
	Price       int64
	Currency    string
	Features    []string
	Active      bool
}

// AddOn is an optional paid extra attached to a base package.
type AddOn struct {
	ID       string
	Name     string
	NameAr   string
	Price    int64
	Currency string
	Active   bool
}

// Quote captures the monetary result of pricing a package selection.
type Quote struct {
	PackageID       string
	PackageName     string
	BasePrice       int64
	AddOns          []QuoteLine
	Subtotal        int64
	DiscountCode    string
	DiscountPercent int
	DiscountAmount  int64
	Total           int64
	Currency        string
}

// QuoteLine records one selected add-on inside a quote.
type QuoteLine struct {
	AddOnID string
	Name    string
	Price   int64
}
