package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/apperrors"
	"github.com/martforge/martforge/pkg/models"
)

// ValidationService runs post-stage assertions: key uniqueness within scope,
// required non-nulls, cross-field arithmetic consistency, and referential
// integrity between fact references and dimension key sets. Everything is
// recorded as a quality issue; only structural violations (an invariant-level
// key collision) return an error and halt the family chain.
type ValidationService interface {
	ValidateCustomers(stage models.StageName, customers []models.Customer, requireUnique bool) error
	ValidateProducts(stage models.StageName, products []models.Product, requireUniqueCurrent bool) error
	ValidateSales(stage models.StageName, lines []models.SalesLine) error
	ValidateFacts(facts []models.FactSalesLine, customerSKs, productSKs map[string]int64) error
}

type validationService struct {
	issues *IssueCollector
	logger *zap.Logger
}

// NewValidationService creates a new ValidationService.
func NewValidationService(issues *IssueCollector, logger *zap.Logger) ValidationService {
	return &validationService{
		issues: issues,
		logger: logger.Named("validation"),
	}
}

var _ ValidationService = (*validationService)(nil)

func (s *validationService) ValidateCustomers(stage models.StageName, customers []models.Customer, requireUnique bool) error {
	seen := make(map[string]int, len(customers))
	for i := range customers {
		c := &customers[i]
		if c.BusinessKey == "" {
			s.issues.Add(stage, models.FamilyCustomer, "", models.RuleMissingRequired,
				models.SeverityWarning, "customer record with empty business key")
			continue
		}
		seen[c.BusinessKey]++
	}

	if requireUnique {
		for k, n := range seen {
			if n > 1 {
				s.issues.Add(stage, models.FamilyCustomer, k, models.RuleKeyCollision,
					models.SeverityFatal, fmt.Sprintf("%d canonical records share business key", n))
				return fmt.Errorf("customer key %q appears %d times after dedup: %w", k, n, apperrors.ErrKeyCollision)
			}
		}
	}
	return nil
}

// ValidateProducts checks version-level sanity and, when requireUniqueCurrent
// is set, that at most one open version exists per business key.
func (s *validationService) ValidateProducts(stage models.StageName, products []models.Product, requireUniqueCurrent bool) error {
	openVersions := make(map[string]int, len(products))
	for i := range products {
		p := &products[i]
		if p.BusinessKey == "" {
			s.issues.Add(stage, models.FamilyProduct, "", models.RuleMissingRequired,
				models.SeverityWarning, "product record with empty business key")
			continue
		}
		if p.IsCurrent() {
			openVersions[p.BusinessKey]++
		}
	}

	if requireUniqueCurrent {
		for k, n := range openVersions {
			if n > 1 {
				s.issues.Add(stage, models.FamilyProduct, k, models.RuleKeyCollision,
					models.SeverityFatal, fmt.Sprintf("%d open versions share business key", n))
				return fmt.Errorf("product key %q has %d open versions: %w", k, n, apperrors.ErrKeyCollision)
			}
		}
	}
	return nil
}

func (s *validationService) ValidateSales(stage models.StageName, lines []models.SalesLine) error {
	for i := range lines {
		l := &lines[i]
		if l.OrderNumber == "" {
			s.issues.Add(stage, models.FamilySales, "", models.RuleMissingRequired,
				models.SeverityWarning, "sales line with empty order number")
		}
		s.checkMeasureIdentity(stage, l)
	}
	return nil
}

// checkMeasureIdentity asserts amount == quantity * |price| unless the line
// is flagged unrecoverable.
func (s *validationService) checkMeasureIdentity(stage models.StageName, l *models.SalesLine) {
	if l.Unrecoverable {
		return
	}
	if l.Quantity == nil || l.UnitPrice == nil || l.Amount == nil {
		return // nulls are reported by the stage that produced them
	}

	expected := l.UnitPrice.Abs().Mul(decimal.NewFromInt(*l.Quantity))
	if !l.Amount.Equal(expected) {
		s.issues.Add(stage, models.FamilySales, l.Key(), models.RuleMeasureMismatch,
			models.SeverityWarning,
			fmt.Sprintf("amount %s != quantity %d * |price| %s", l.Amount, *l.Quantity, l.UnitPrice.Abs()))
	}
}

// ValidateFacts asserts referential soundness: every resolved surrogate-key
// reference must exist in its dimension's key set. A resolved reference
// outside the key set is an invariant violation, hence fatal; unresolved
// sentinels were already reported as warnings during assembly.
func (s *validationService) ValidateFacts(facts []models.FactSalesLine, customerSKs, productSKs map[string]int64) error {
	custSet := keySet(customerSKs)
	prodSet := keySet(productSKs)

	for i := range facts {
		f := &facts[i]
		if f.CustomerSK != models.UnresolvedKey && !custSet[f.CustomerSK] {
			s.issues.Add(models.StageValidation, models.FamilySales, f.Key(), models.RuleKeyCollision,
				models.SeverityFatal, fmt.Sprintf("customer surrogate key %d not in dimension", f.CustomerSK))
			return fmt.Errorf("fact %s references unknown customer surrogate key %d: %w",
				f.Key(), f.CustomerSK, apperrors.ErrKeyCollision)
		}
		if f.ProductSK != models.UnresolvedKey && !prodSet[f.ProductSK] {
			s.issues.Add(models.StageValidation, models.FamilySales, f.Key(), models.RuleKeyCollision,
				models.SeverityFatal, fmt.Sprintf("product surrogate key %d not in dimension", f.ProductSK))
			return fmt.Errorf("fact %s references unknown product surrogate key %d: %w",
				f.Key(), f.ProductSK, apperrors.ErrKeyCollision)
		}
		s.checkMeasureIdentity(models.StageValidation, &f.SalesLine)
	}

	s.logger.Info("Validated facts", zap.Int("rows", len(facts)))
	return nil
}

func keySet(m map[string]int64) map[int64]bool {
	set := make(map[int64]bool, len(m))
	for _, sk := range m {
		set[sk] = true
	}
	return set
}
