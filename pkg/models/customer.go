package models

import "time"

// SourceSystem identifies which source system a cleansed record came from.
type SourceSystem string

const (
	SourceCRM SourceSystem = "crm"
	SourceERP SourceSystem = "erp"
)

// Customer is a cleansed customer record. Until deduplication there may be
// several per business key; after dedup and cross-source merge exactly one
// canonical Customer exists per business key.
type Customer struct {
	BusinessKey   string
	FirstName     *string
	LastName      *string
	Gender        *string
	MaritalStatus *string
	Email         *string
	City          *string
	Country       *string
	BirthDate     *time.Time

	// Recency indicator used by dedup ranking. Zero when the raw value was
	// unparseable (such records rank last).
	CreatedAt time.Time
	RawOffset int64
	Source    SourceSystem
}

// Key returns the customer's business key.
func (c *Customer) Key() string { return c.BusinessKey }

// Recency returns the dedup ranking inputs: recency timestamp and raw offset.
func (c *Customer) Recency() (time.Time, int64) { return c.CreatedAt, c.RawOffset }
