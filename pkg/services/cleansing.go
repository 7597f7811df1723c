package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/models"
)

// CleansingService normalizes raw extracts field by field: whitespace
// trimming, code-to-description mapping through the explicit lookup tables,
// strict date validation, and numeric parsing. Data-level problems are never
// fatal: bad values become nulls and every correction is reported as a
// quality issue. Output cardinality always equals input cardinality.
type CleansingService interface {
	CleanseCustomers(source models.SourceSystem, raws []models.RawCustomer) []models.Customer
	CleanseProducts(raws []models.RawProduct) []models.Product
	CleanseProductExt(raws []models.RawProductExt) []models.ProductExt
	CleanseSales(raws []models.RawSalesLine) []models.SalesLine
}

type cleansingService struct {
	codes  CodeMaps
	issues *IssueCollector
	logger *zap.Logger
}

// NewCleansingService creates a new CleansingService.
func NewCleansingService(codes CodeMaps, issues *IssueCollector, logger *zap.Logger) CleansingService {
	return &cleansingService{
		codes:  codes,
		issues: issues,
		logger: logger.Named("cleansing"),
	}
}

var _ CleansingService = (*cleansingService)(nil)

// Values the source systems use to mean "we don't know". Mapped to null
// without an issue; they are markers, not dirt.
var unknownMarkers = map[string]struct{}{
	"":        {},
	"n/a":     {},
	"na":      {},
	"null":    {},
	"unknown": {},
	"-":       {},
}

func isUnknownMarker(s string) bool {
	_, ok := unknownMarkers[strings.ToLower(s)]
	return ok
}

// cleanString trims incidental whitespace and maps unknown markers to nil.
func cleanString(s string) *string {
	s = strings.TrimSpace(s)
	if isUnknownMarker(s) {
		return nil
	}
	return &s
}

const dateLayout = "2006-01-02"

// timestampLayouts are accepted for recency indicators, most specific first.
var timestampLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", dateLayout}

func (s *cleansingService) CleanseCustomers(source models.SourceSystem, raws []models.RawCustomer) []models.Customer {
	family := models.FamilyCustomer
	out := make([]models.Customer, 0, len(raws))

	for i := range raws {
		r := &raws[i]
		key := strings.TrimSpace(r.CustomerID)
		if key == "" {
			s.issues.Add(models.StageCleansing, family, key, models.RuleMissingRequired,
				models.SeverityWarning, fmt.Sprintf("customer at raw offset %d has no business key", r.RawOffset))
		}

		c := models.Customer{
			BusinessKey:   key,
			FirstName:     cleanString(r.FirstName),
			LastName:      cleanString(r.LastName),
			Gender:        s.mapCode(family, key, "gender", r.Gender),
			MaritalStatus: s.mapCode(family, key, "marital_status", r.MaritalStatus),
			Email:         cleanString(r.Email),
			City:          cleanString(r.City),
			Country:       s.mapCode(family, key, "country", r.CountryCode),
			BirthDate:     s.parseDate(family, key, "birth_date", r.BirthDate),
			CreatedAt:     s.parseTimestamp(family, key, r.CreatedAt),
			RawOffset:     r.RawOffset,
			Source:        source,
		}
		out = append(out, c)
	}

	s.logger.Info("Cleansed customers",
		zap.String("source", string(source)),
		zap.Int("rows", len(out)))
	return out
}

func (s *cleansingService) CleanseProducts(raws []models.RawProduct) []models.Product {
	family := models.FamilyProduct
	out := make([]models.Product, 0, len(raws))

	for i := range raws {
		r := &raws[i]
		key := strings.TrimSpace(r.ProductKey)
		if key == "" {
			s.issues.Add(models.StageCleansing, family, key, models.RuleMissingRequired,
				models.SeverityWarning, fmt.Sprintf("product at raw offset %d has no business key", r.RawOffset))
		}

		p := models.Product{
			BusinessKey:  key,
			Name:         cleanString(r.ProductName),
			StandardCost: s.parseDecimal(family, key, "standard_cost", r.StandardCost),
			ListPrice:    s.parseDecimal(family, key, "list_price", r.ListPrice),
			LineName:     s.mapCode(family, key, "product_line", r.LineCode),
			StartDate:    s.parseDate(family, key, "start_date", r.StartDate),
			CreatedAt:    s.parseTimestamp(family, key, r.CreatedAt),
			RawOffset:    r.RawOffset,
			Source:       models.SourceERP,
		}
		out = append(out, p)
	}

	s.logger.Info("Cleansed products", zap.Int("rows", len(out)))
	return out
}

func (s *cleansingService) CleanseProductExt(raws []models.RawProductExt) []models.ProductExt {
	family := models.FamilyProduct
	out := make([]models.ProductExt, 0, len(raws))

	for i := range raws {
		r := &raws[i]
		key := strings.TrimSpace(r.ProductKey)

		e := models.ProductExt{
			BusinessKey:     key,
			SubcategoryName: cleanString(r.SubcategoryName),
			Maintenance:     s.parseBool(family, key, "maintenance_flag", r.MaintenanceFlag),
			CreatedAt:       s.parseTimestamp(family, key, r.CreatedAt),
			RawOffset:       r.RawOffset,
		}
		out = append(out, e)
	}

	s.logger.Info("Cleansed product enrichment", zap.Int("rows", len(out)))
	return out
}

func (s *cleansingService) CleanseSales(raws []models.RawSalesLine) []models.SalesLine {
	family := models.FamilySales
	out := make([]models.SalesLine, 0, len(raws))

	for i := range raws {
		r := &raws[i]
		order := strings.TrimSpace(r.OrderNumber)
		if order == "" {
			s.issues.Add(models.StageCleansing, family, order, models.RuleMissingRequired,
				models.SeverityWarning, fmt.Sprintf("sales line at raw offset %d has no order number", r.RawOffset))
		}

		line := models.SalesLine{
			OrderNumber: order,
			LineNumber:  s.parseLineNumber(family, order, r.LineNumber),
			CustomerKey: strings.TrimSpace(r.CustomerID),
			ProductKey:  strings.TrimSpace(r.ProductKey),
			OrderDate:   s.parseDate(family, order, "order_date", r.OrderDate),
			ShipDate:    s.parseDate(family, order, "ship_date", r.ShipDate),
			DueDate:     s.parseDate(family, order, "due_date", r.DueDate),
			Quantity:    s.parseInt(family, order, "quantity", r.Quantity),
			UnitPrice:   s.parseDecimal(family, order, "unit_price", r.UnitPrice),
			Amount:      s.parseDecimal(family, order, "amount", r.Amount),
			CreatedAt:   s.parseTimestamp(family, order, r.CreatedAt),
			RawOffset:   r.RawOffset,
			Source:      models.SourceCRM,
		}
		out = append(out, line)
	}

	s.logger.Info("Cleansed sales lines", zap.Int("rows", len(out)))
	return out
}

// mapCode resolves a short source code through its lookup table. Unknown
// markers become nil silently; genuinely unrecognized codes fall back to the
// table's default and log a warning. Never fails.
func (s *cleansingService) mapCode(family models.EntityFamily, key, attr, code string) *string {
	code = strings.TrimSpace(code)
	if isUnknownMarker(code) {
		return nil
	}

	table, ok := s.codes[attr]
	if !ok {
		// No table declared for this attribute; pass the trimmed value through.
		return &code
	}

	value, known := table.Lookup(code)
	if !known {
		s.issues.Add(models.StageCleansing, family, key, models.RuleUnknownCode,
			models.SeverityWarning, fmt.Sprintf("unrecognized %s code %q, using default", attr, code))
	}
	return value
}

// parseDate validates a date-like field against the strict layout and a sane
// range. Invalid values become nil with a logged issue, never an error.
func (s *cleansingService) parseDate(family models.EntityFamily, key, field, raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if isUnknownMarker(raw) {
		return nil
	}

	t, err := time.Parse(dateLayout, raw)
	if err != nil || t.Year() < 1900 || t.After(time.Now().AddDate(5, 0, 0)) {
		s.issues.Add(models.StageCleansing, family, key, models.RuleInvalidDate,
			models.SeverityWarning, fmt.Sprintf("invalid %s %q, nulled", field, raw))
		return nil
	}
	return &t
}

// parseTimestamp parses the recency indicator. An unparseable value ranks the
// record last in dedup (zero time) and logs a warning.
func (s *cleansingService) parseTimestamp(family models.EntityFamily, key, raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}

	s.issues.Add(models.StageCleansing, family, key, models.RuleInvalidDate,
		models.SeverityWarning, fmt.Sprintf("invalid created_at %q, record ranks last in dedup", raw))
	return time.Time{}
}

func (s *cleansingService) parseDecimal(family models.EntityFamily, key, field, raw string) *decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if isUnknownMarker(raw) {
		return nil
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		s.issues.Add(models.StageCleansing, family, key, models.RuleInvalidNumber,
			models.SeverityWarning, fmt.Sprintf("non-numeric %s %q, nulled", field, raw))
		return nil
	}
	return &d
}

func (s *cleansingService) parseInt(family models.EntityFamily, key, field, raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if isUnknownMarker(raw) {
		return nil
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.issues.Add(models.StageCleansing, family, key, models.RuleInvalidNumber,
			models.SeverityWarning, fmt.Sprintf("non-numeric %s %q, nulled", field, raw))
		return nil
	}
	return &n
}

// parseLineNumber keeps the fact grain intact: a bad line number falls back
// to 0 with a warning rather than dropping the row.
func (s *cleansingService) parseLineNumber(family models.EntityFamily, key, raw string) int {
	n := s.parseInt(family, key, "line_number", raw)
	if n == nil {
		return 0
	}
	return int(*n)
}

func (s *cleansingService) parseBool(family models.EntityFamily, key, field, raw string) *bool {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if isUnknownMarker(raw) {
		return nil
	}

	switch raw {
	case "1", "true", "t", "y", "yes":
		v := true
		return &v
	case "0", "false", "f", "n", "no":
		v := false
		return &v
	default:
		s.issues.Add(models.StageCleansing, family, key, models.RuleInvalidNumber,
			models.SeverityWarning, fmt.Sprintf("invalid %s %q, nulled", field, raw))
		return nil
	}
}
