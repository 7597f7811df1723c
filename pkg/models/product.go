package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a cleansed product version. Versions share a business key and are
// distinguished by StartDate; the business-rule stage derives each version's
// EndDate and the canonical view keeps only the open (nil EndDate) version.
type Product struct {
	BusinessKey  string
	Name         *string
	StandardCost *decimal.Decimal
	ListPrice    *decimal.Decimal
	LineName     *string
	StartDate    *time.Time
	EndDate      *time.Time

	// Derived by positional parse of the business key.
	Category    *string
	Subcategory *string

	// Enrichment attributes joined from the secondary extract.
	SubcategoryName *string
	Maintenance     *bool

	CreatedAt time.Time
	RawOffset int64
	Source    SourceSystem
}

// Key returns the product's business key.
func (p *Product) Key() string { return p.BusinessKey }

// Recency returns the dedup ranking inputs: recency timestamp and raw offset.
func (p *Product) Recency() (time.Time, int64) { return p.CreatedAt, p.RawOffset }

// IsCurrent reports whether this version is the open one for its business key.
func (p *Product) IsCurrent() bool { return p.EndDate == nil }

// ProductExt is a cleansed enrichment record, left-joined onto the product
// dimension by business key.
type ProductExt struct {
	BusinessKey     string
	SubcategoryName *string
	Maintenance     *bool
	CreatedAt       time.Time
	RawOffset       int64
}

// Key returns the enrichment record's business key.
func (e *ProductExt) Key() string { return e.BusinessKey }

// Recency returns the dedup ranking inputs: recency timestamp and raw offset.
func (e *ProductExt) Recency() (time.Time, int64) { return e.CreatedAt, e.RawOffset }
