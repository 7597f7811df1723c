package models

// UnresolvedKey is the sentinel surrogate-key value written on a fact row when
// a dimension lookup fails. The row is retained; the reference is explicit.
const UnresolvedKey int64 = -1

// DimCustomer is one customer dimension row: a dense run-scoped surrogate key
// plus the canonical customer attributes.
type DimCustomer struct {
	SurrogateKey int64
	Customer
}

// DimProduct is one product dimension row for the current product version.
type DimProduct struct {
	SurrogateKey int64
	Product
}

// FactSalesLine is one fact row. CustomerSK and ProductSK are either resolved
// surrogate keys or UnresolvedKey.
type FactSalesLine struct {
	CustomerSK int64
	ProductSK  int64
	SalesLine
}

// Resolved reports whether both dimension references resolved.
func (f *FactSalesLine) Resolved() bool {
	return f.CustomerSK != UnresolvedKey && f.ProductSK != UnresolvedKey
}
