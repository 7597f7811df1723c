package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SalesLine is a cleansed sales line item. Grain: one row per original order
// line, identified by (OrderNumber, LineNumber).
type SalesLine struct {
	OrderNumber string
	LineNumber  int

	// Business keys into the customer and product dimensions.
	CustomerKey string
	ProductKey  string

	OrderDate *time.Time
	ShipDate  *time.Time
	DueDate   *time.Time

	Quantity  *int64
	UnitPrice *decimal.Decimal
	Amount    *decimal.Decimal

	// Unrecoverable marks a line whose measures could not be reconciled
	// (quantity of zero with a missing price). The row is kept, never dropped.
	Unrecoverable bool

	CreatedAt time.Time
	RawOffset int64
	Source    SourceSystem
}

// Key returns the line's business key, the (order, line) pair.
func (s *SalesLine) Key() string { return fmt.Sprintf("%s/%d", s.OrderNumber, s.LineNumber) }

// Recency returns the dedup ranking inputs: recency timestamp and raw offset.
func (s *SalesLine) Recency() (time.Time, int64) { return s.CreatedAt, s.RawOffset }
