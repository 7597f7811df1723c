package services

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/models"
)

// RulesService applies entity-specific business derivations: product
// categorization and validity windows, and sales measure reconciliation.
// Fatal only when a rule's required input is structurally absent; ordinary
// nulls and inconsistencies are corrected or flagged.
type RulesService interface {
	// ApplyProductRules derives categories and validity windows over the
	// deduplicated version set, then returns all versions; use CurrentProducts
	// for the canonical latest-state view.
	ApplyProductRules(products []models.Product) []models.Product

	// CurrentProducts filters to the open (nil end date) version per key.
	CurrentProducts(products []models.Product) []models.Product

	// ReconcileSales enforces amount == quantity * |price| per line, deriving
	// the missing measure where possible and flagging the row unrecoverable
	// where not.
	ReconcileSales(lines []models.SalesLine) []models.SalesLine
}

type rulesService struct {
	codes  CodeMaps
	issues *IssueCollector
	logger *zap.Logger
}

// NewRulesService creates a new RulesService.
func NewRulesService(codes CodeMaps, issues *IssueCollector, logger *zap.Logger) RulesService {
	return &rulesService{
		codes:  codes,
		issues: issues,
		logger: logger.Named("rules"),
	}
}

var _ RulesService = (*rulesService)(nil)

func (s *rulesService) ApplyProductRules(products []models.Product) []models.Product {
	out := make([]models.Product, len(products))
	copy(out, products)

	for i := range out {
		s.categorize(&out[i])
	}
	s.deriveValidityWindows(out)

	s.logger.Info("Applied product rules", zap.Int("versions", len(out)))
	return out
}

// categorize parses the composite business key by fixed positions:
// characters 0-1 are the category code and 3-4 the subcategory code, with a
// dash separator at position 2 (e.g. "BK-MB-068"). Unparseable keys keep a
// nil category and log an issue.
func (s *rulesService) categorize(p *models.Product) {
	key := p.BusinessKey
	if len(key) < 5 || key[2] != '-' {
		s.issues.Add(models.StageRules, models.FamilyProduct, key, models.RuleUnparseableKey,
			models.SeverityWarning, fmt.Sprintf("business key %q does not match CC-SS-... layout", key))
		return
	}

	catCode := key[0:2]
	subCode := key[3:5]

	if cat, known := s.codes["category"].Lookup(catCode); known {
		p.Category = cat
	} else {
		s.issues.Add(models.StageRules, models.FamilyProduct, key, models.RuleUnknownCode,
			models.SeverityWarning, fmt.Sprintf("unrecognized category code %q", catCode))
	}
	if sub, known := s.codes["subcategory"].Lookup(subCode); known {
		p.Subcategory = sub
	} else {
		s.issues.Add(models.StageRules, models.FamilyProduct, key, models.RuleUnknownCode,
			models.SeverityWarning, fmt.Sprintf("unrecognized subcategory code %q", subCode))
	}
}

// deriveValidityWindows orders each key's versions by effective start and
// sets every version's end to one day before the next version's start. The
// last version stays open (nil end = current). Versions without a start date
// sort first, ordered by recency, so a single dateless version is simply the
// open one.
func (s *rulesService) deriveValidityWindows(products []models.Product) {
	byKey := make(map[string][]int)
	for i := range products {
		byKey[products[i].BusinessKey] = append(byKey[products[i].BusinessKey], i)
	}

	for _, idxs := range byKey {
		sort.Slice(idxs, func(a, b int) bool {
			pa, pb := &products[idxs[a]], &products[idxs[b]]
			switch {
			case pa.StartDate == nil && pb.StartDate == nil:
				return pa.CreatedAt.Before(pb.CreatedAt)
			case pa.StartDate == nil:
				return true
			case pb.StartDate == nil:
				return false
			default:
				return pa.StartDate.Before(*pb.StartDate)
			}
		})

		for n := 0; n < len(idxs); n++ {
			cur := &products[idxs[n]]
			if n == len(idxs)-1 {
				cur.EndDate = nil
				continue
			}
			next := &products[idxs[n+1]]
			if next.StartDate == nil {
				cur.EndDate = nil
				continue
			}
			end := next.StartDate.AddDate(0, 0, -1)
			cur.EndDate = &end
		}
	}
}

func (s *rulesService) CurrentProducts(products []models.Product) []models.Product {
	out := make([]models.Product, 0, len(products))
	for i := range products {
		if products[i].IsCurrent() {
			out = append(out, products[i])
		}
	}
	return out
}

func (s *rulesService) ReconcileSales(lines []models.SalesLine) []models.SalesLine {
	out := make([]models.SalesLine, len(lines))
	copy(out, lines)

	recomputed, derived, unrecoverable := 0, 0, 0
	for i := range out {
		switch s.reconcileLine(&out[i]) {
		case reconcileRecomputed:
			recomputed++
		case reconcilePriceDerived:
			derived++
		case reconcileUnrecoverable:
			unrecoverable++
		}
	}

	s.logger.Info("Reconciled sales measures",
		zap.Int("lines", len(out)),
		zap.Int("amounts_recomputed", recomputed),
		zap.Int("prices_derived", derived),
		zap.Int("unrecoverable", unrecoverable))
	return out
}

type reconcileOutcome int

const (
	reconcileClean reconcileOutcome = iota
	reconcileRecomputed
	reconcilePriceDerived
	reconcileUnrecoverable
)

// reconcileLine enforces the measure identity on one line:
//   - price known and non-zero: amount recomputed as quantity * |price| when
//     null, non-positive, or inconsistent (informational correction);
//   - price null or zero with known amount and non-zero quantity: price
//     derived as amount / quantity, then the identity re-applied;
//   - quantity null, or zero where a division would be needed: flagged
//     unrecoverable, never divided, never dropped.
func (s *rulesService) reconcileLine(l *models.SalesLine) reconcileOutcome {
	key := l.Key()

	if l.Quantity == nil {
		l.Unrecoverable = true
		s.issues.Add(models.StageRules, models.FamilySales, key, models.RuleUnrecoverableRow,
			models.SeverityWarning, "quantity missing, measures cannot be reconciled")
		return reconcileUnrecoverable
	}
	qty := decimal.NewFromInt(*l.Quantity)

	outcome := reconcileClean
	if l.UnitPrice == nil || l.UnitPrice.IsZero() {
		if l.Amount != nil && *l.Quantity != 0 {
			price := l.Amount.Div(qty)
			l.UnitPrice = &price
			s.issues.Add(models.StageRules, models.FamilySales, key, models.RulePriceDerived,
				models.SeverityInfo, fmt.Sprintf("price derived as %s from amount/quantity", price))
			outcome = reconcilePriceDerived
		} else {
			l.Unrecoverable = true
			s.issues.Add(models.StageRules, models.FamilySales, key, models.RuleUnrecoverableRow,
				models.SeverityWarning, "no usable price and quantity is zero or amount missing")
			return reconcileUnrecoverable
		}
	}

	expected := qty.Mul(l.UnitPrice.Abs())
	if l.Amount == nil || !l.Amount.Equal(expected) {
		old := "null"
		if l.Amount != nil {
			old = l.Amount.String()
		}
		l.Amount = &expected
		s.issues.Add(models.StageRules, models.FamilySales, key, models.RuleMeasureRecomputed,
			models.SeverityInfo, fmt.Sprintf("amount %s recomputed to %s", old, expected))
		if outcome == reconcileClean {
			outcome = reconcileRecomputed
		}
	}
	return outcome
}
