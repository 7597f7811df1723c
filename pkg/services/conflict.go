package services

import (
	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/models"
)

// MergeService reconciles overlapping attributes supplied by both source
// systems for the same canonical entity. Preference is declared per
// attribute, not globally: the preferred source's value wins unless it is
// null (absent or explicitly marked unknown upstream), in which case the
// fallback source's value applies; when both are null the field stays null.
type MergeService interface {
	MergeCustomers(primary, secondary []models.Customer) []models.Customer
}

// customerAttributePreference declares the source order per overlapping
// customer attribute. CRM is the system of record for identity and contact
// fields; demographics fall back to the ERP extract.
var customerAttributePreference = map[string][]models.SourceSystem{
	"gender":         {models.SourceCRM, models.SourceERP},
	"marital_status": {models.SourceCRM, models.SourceERP},
	"birth_date":     {models.SourceCRM, models.SourceERP},
}

// requiredCustomerAttributes must end up non-null on a canonical customer.
// A key with zero non-null candidates surfaces as a warning, never an abort.
var requiredCustomerAttributes = []string{"first_name", "last_name"}

type mergeService struct {
	issues *IssueCollector
	logger *zap.Logger
}

// NewMergeService creates a new MergeService.
func NewMergeService(issues *IssueCollector, logger *zap.Logger) MergeService {
	return &mergeService{
		issues: issues,
		logger: logger.Named("merge"),
	}
}

var _ MergeService = (*mergeService)(nil)

// MergeCustomers merges deduplicated ERP demographic records into the
// deduplicated CRM customer set. The CRM set defines which canonical
// customers exist; ERP contributes fallback attribute values only.
func (s *mergeService) MergeCustomers(primary, secondary []models.Customer) []models.Customer {
	fallback := make(map[string]*models.Customer, len(secondary))
	for i := range secondary {
		fallback[secondary[i].BusinessKey] = &secondary[i]
	}

	out := make([]models.Customer, len(primary))
	filled := 0
	for i := range primary {
		c := primary[i]
		if sec, ok := fallback[c.BusinessKey]; ok {
			filled += s.applyFallback(&c, sec)
		}
		s.checkRequired(&c)
		out[i] = c
	}

	s.logger.Info("Merged cross-source customer attributes",
		zap.Int("canonical", len(out)),
		zap.Int("fallback_records", len(secondary)),
		zap.Int("attributes_filled", filled))
	return out
}

// applyFallback resolves each declared attribute through its preference
// order. Returns how many attributes were filled from the fallback source.
func (s *mergeService) applyFallback(c, sec *models.Customer) int {
	filled := 0
	for attr, order := range customerAttributePreference {
		if len(order) < 2 || order[0] != models.SourceCRM {
			continue
		}
		switch attr {
		case "gender":
			if c.Gender == nil && sec.Gender != nil {
				c.Gender = sec.Gender
				filled++
			}
		case "marital_status":
			if c.MaritalStatus == nil && sec.MaritalStatus != nil {
				c.MaritalStatus = sec.MaritalStatus
				filled++
			}
		case "birth_date":
			if c.BirthDate == nil && sec.BirthDate != nil {
				bd := *sec.BirthDate
				c.BirthDate = &bd
				filled++
			}
		}
	}
	return filled
}

// checkRequired reports required attributes that no source could supply.
func (s *mergeService) checkRequired(c *models.Customer) {
	for _, attr := range requiredCustomerAttributes {
		var missing bool
		switch attr {
		case "first_name":
			missing = c.FirstName == nil
		case "last_name":
			missing = c.LastName == nil
		}
		if missing {
			s.issues.Add(models.StageDedup, models.FamilyCustomer, c.BusinessKey,
				models.RuleMissingRequired, models.SeverityWarning,
				"no source supplied a value for "+attr)
		}
	}
}
