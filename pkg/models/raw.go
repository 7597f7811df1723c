package models

// Raw Store records arrive exactly as extracted: every attribute is a string,
// no cleanliness assumed. RawOffset is the loader-assigned extract-order
// position within the source table and is unique per table.

// RawCustomer is one row of raw.crm_customers or raw.erp_customers.
// The ERP extract only populates the demographic subset.
type RawCustomer struct {
	CustomerID    string
	FirstName     string
	LastName      string
	Gender        string
	MaritalStatus string
	Email         string
	City          string
	CountryCode   string
	BirthDate     string
	CreatedAt     string
	RawOffset     int64
}

// RawProduct is one row of raw.erp_products. Products are versioned: multiple
// rows may share a ProductKey with distinct StartDate values.
type RawProduct struct {
	ProductKey   string
	ProductName  string
	StandardCost string
	ListPrice    string
	LineCode     string
	StartDate    string
	CreatedAt    string
	RawOffset    int64
}

// RawProductExt is one row of raw.crm_product_ext, the enrichment extract.
// Coverage is partial; a product key may have no enrichment row.
type RawProductExt struct {
	ProductKey      string
	SubcategoryName string
	MaintenanceFlag string
	CreatedAt       string
	RawOffset       int64
}

// RawSalesLine is one row of raw.crm_sales, grain: one order line item.
type RawSalesLine struct {
	OrderNumber string
	LineNumber  string
	CustomerID  string
	ProductKey  string
	OrderDate   string
	ShipDate    string
	DueDate     string
	Quantity    string
	UnitPrice   string
	Amount      string
	CreatedAt   string
	RawOffset   int64
}
