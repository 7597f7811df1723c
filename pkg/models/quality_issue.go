package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Severity
// ============================================================================

// Severity classifies a quality issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)

// ValidSeverities contains all valid severity values.
var ValidSeverities = []Severity{SeverityInfo, SeverityWarning, SeverityFatal}

// IsValidSeverity checks if the given severity is valid.
func IsValidSeverity(s Severity) bool {
	for _, v := range ValidSeverities {
		if v == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Quality Issues
// ============================================================================

// QualityIssue records one correction, fallback, or violation observed by a
// pipeline stage. Issues are append-only within a run and discarded at the
// next run unless archived externally.
type QualityIssue struct {
	RunID       uuid.UUID
	Stage       StageName
	Family      EntityFamily
	BusinessKey string
	Rule        string
	Severity    Severity
	Detail      string
	CreatedAt   time.Time
}

// Issue rule identifiers. Each names the check or correction that fired.
const (
	RuleUnknownCode        = "unknown_code"
	RuleInvalidDate        = "invalid_date"
	RuleInvalidNumber      = "invalid_number"
	RuleMissingRequired    = "missing_required_value"
	RuleDuplicateKey       = "duplicate_key"
	RuleUnparseableKey     = "unparseable_business_key"
	RuleMeasureRecomputed  = "measure_recomputed"
	RulePriceDerived       = "price_derived"
	RuleUnrecoverableRow   = "unrecoverable_measures"
	RuleUnresolvedCustomer = "unresolved_customer_reference"
	RuleUnresolvedProduct  = "unresolved_product_reference"
	RuleMeasureMismatch    = "measure_mismatch"
	RuleKeyCollision       = "surrogate_key_collision"
)
