package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/models"
)

// Shared test helpers for the services package.

func newTestCollector() *IssueCollector {
	return NewIssueCollector(uuid.New())
}

func mustCodeMaps(t *testing.T) CodeMaps {
	t.Helper()
	codes, err := LoadCodeMaps()
	require.NoError(t, err)
	return codes
}

func strPtr(s string) *string { return &s }

func i64Ptr(n int64) *int64 { return &n }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func datePtr(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func issuesByRule(c *IssueCollector, rule string) []models.QualityIssue {
	var out []models.QualityIssue
	for _, q := range c.Issues() {
		if q.Rule == rule {
			out = append(out, q)
		}
	}
	return out
}

func TestCleansingService_CleanseCustomers_MapsCodesAndTrims(t *testing.T) {
	issues := newTestCollector()
	svc := NewCleansingService(mustCodeMaps(t), issues, zap.NewNop())

	raws := []models.RawCustomer{
		{
			CustomerID:    "  C1  ",
			FirstName:     " Ada ",
			LastName:      "Lovelace",
			Gender:        "F",
			MaritalStatus: "M",
			Email:         "ada@example.com",
			City:          "London",
			CountryCode:   "GB",
			BirthDate:     "1985-12-10",
			CreatedAt:     "2024-03-01 10:00:00",
			RawOffset:     1,
		},
	}

	out := svc.CleanseCustomers(models.SourceCRM, raws)
	require.Len(t, out, 1)

	c := out[0]
	assert.Equal(t, "C1", c.BusinessKey)
	assert.Equal(t, "Ada", *c.FirstName)
	assert.Equal(t, "Female", *c.Gender)
	assert.Equal(t, "Married", *c.MaritalStatus)
	assert.Equal(t, "United Kingdom", *c.Country)
	require.NotNil(t, c.BirthDate)
	assert.Equal(t, 1985, c.BirthDate.Year())
	assert.Equal(t, models.SourceCRM, c.Source)
	assert.Equal(t, 0, issues.Count())
}

func TestCleansingService_CleanseCustomers_UnknownMarkersBecomeNullSilently(t *testing.T) {
	issues := newTestCollector()
	svc := NewCleansingService(mustCodeMaps(t), issues, zap.NewNop())

	raws := []models.RawCustomer{
		{
			CustomerID:  "C2",
			FirstName:   "N/A",
			LastName:    "null",
			Gender:      "-",
			Email:       "  ",
			CountryCode: "unknown",
			CreatedAt:   "2024-03-01 10:00:00",
		},
	}

	out := svc.CleanseCustomers(models.SourceCRM, raws)
	require.Len(t, out, 1)

	c := out[0]
	assert.Nil(t, c.FirstName)
	assert.Nil(t, c.LastName)
	assert.Nil(t, c.Gender)
	assert.Nil(t, c.Email)
	assert.Nil(t, c.Country)
	assert.Equal(t, 0, issues.Count(), "unknown markers are not quality issues")
}

func TestCleansingService_CleanseCustomers_UnrecognizedCodeWarns(t *testing.T) {
	issues := newTestCollector()
	svc := NewCleansingService(mustCodeMaps(t), issues, zap.NewNop())

	raws := []models.RawCustomer{
		{CustomerID: "C3", Gender: "X", CreatedAt: "2024-03-01 10:00:00"},
	}

	out := svc.CleanseCustomers(models.SourceCRM, raws)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Gender, "gender table has no default")

	reported := issuesByRule(issues, models.RuleUnknownCode)
	require.Len(t, reported, 1)
	assert.Equal(t, models.SeverityWarning, reported[0].Severity)
	assert.Equal(t, "C3", reported[0].BusinessKey)
}

func TestCleansingService_CleanseCustomers_InvalidDatesNulled(t *testing.T) {
	issues := newTestCollector()
	svc := NewCleansingService(mustCodeMaps(t), issues, zap.NewNop())

	tests := []struct {
		name string
		raw  string
	}{
		{"not a date", "yesterday"},
		{"wrong layout", "10/12/1985"},
		{"impossible day", "1985-02-30"},
		{"before range", "1899-12-31"},
		{"far future", "2999-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := svc.CleanseCustomers(models.SourceCRM, []models.RawCustomer{
				{CustomerID: "C4", BirthDate: tt.raw, CreatedAt: "2024-03-01 10:00:00"},
			})
			require.Len(t, out, 1)
			assert.Nil(t, out[0].BirthDate)
		})
	}

	assert.Len(t, issuesByRule(issues, models.RuleInvalidDate), len(tests))
}

func TestCleansingService_CleanseCustomers_EmptyKeyKeptWithWarning(t *testing.T) {
	issues := newTestCollector()
	svc := NewCleansingService(mustCodeMaps(t), issues, zap.NewNop())

	out := svc.CleanseCustomers(models.SourceCRM, []models.RawCustomer{
		{CustomerID: "   ", CreatedAt: "2024-03-01 10:00:00", RawOffset: 7},
	})

	require.Len(t, out, 1, "row with empty key is kept, not dropped")
	assert.Empty(t, out[0].BusinessKey)
	require.Len(t, issuesByRule(issues, models.RuleMissingRequired), 1)
}

func TestCleansingService_CleanseCustomers_UnparseableCreatedAtRanksLast(t *testing.T) {
	issues := newTestCollector()
	svc := NewCleansingService(mustCodeMaps(t), issues, zap.NewNop())

	out := svc.CleanseCustomers(models.SourceCRM, []models.RawCustomer{
		{CustomerID: "C5", CreatedAt: "garbage"},
	})

	require.Len(t, out, 1)
	assert.True(t, out[0].CreatedAt.IsZero())
	assert.Len(t, issuesByRule(issues, models.RuleInvalidDate), 1)
}

func TestCleansingService_CleanseProducts_LineCodeDefaultsToStandard(t *testing.T) {
	issues := newTestCollector()
	svc := NewCleansingService(mustCodeMaps(t), issues, zap.NewNop())

	out := svc.CleanseProducts([]models.RawProduct{
		{ProductKey: "BK-MB-068", ProductName: "Mountain-200", StandardCost: "1251.9813",
			ListPrice: "2294.99", LineCode: "M", StartDate: "2023-07-01", CreatedAt: "2024-01-05 08:30:00"},
		{ProductKey: "AC-HL-001", ProductName: "Sport Helmet", StandardCost: "13.08",
			ListPrice: "34.99", LineCode: "Z", StartDate: "2023-07-01", CreatedAt: "2024-01-05 08:30:00"},
	})
	require.Len(t, out, 2)

	assert.Equal(t, "Mountain", *out[0].LineName)
	assert.True(t, out[0].StandardCost.Equal(decimal.RequireFromString("1251.9813")))

	// Unrecognized line code falls back to the declared default.
	assert.Equal(t, "Standard", *out[1].LineName)
	require.Len(t, issuesByRule(issues, models.RuleUnknownCode), 1)
}

func TestCleansingService_CleanseProducts_BadNumbersNulled(t *testing.T) {
	issues := newTestCollector()
	svc := NewCleansingService(mustCodeMaps(t), issues, zap.NewNop())

	out := svc.CleanseProducts([]models.RawProduct{
		{ProductKey: "BK-RB-001", StandardCost: "abc", ListPrice: "12,50", CreatedAt: "2024-01-05 08:30:00"},
	})
	require.Len(t, out, 1)
	assert.Nil(t, out[0].StandardCost)
	assert.Nil(t, out[0].ListPrice)
	assert.Len(t, issuesByRule(issues, models.RuleInvalidNumber), 2)
}

func TestCleansingService_CleanseProductExt_ParsesMaintenanceFlag(t *testing.T) {
	issues := newTestCollector()
	svc := NewCleansingService(mustCodeMaps(t), issues, zap.NewNop())

	out := svc.CleanseProductExt([]models.RawProductExt{
		{ProductKey: "BK-MB-068", SubcategoryName: "Mountain Bikes", MaintenanceFlag: "Yes", CreatedAt: "2024-01-05"},
		{ProductKey: "AC-HL-001", MaintenanceFlag: "0", CreatedAt: "2024-01-05"},
		{ProductKey: "CL-JE-020", MaintenanceFlag: "maybe", CreatedAt: "2024-01-05"},
	})
	require.Len(t, out, 3)

	require.NotNil(t, out[0].Maintenance)
	assert.True(t, *out[0].Maintenance)
	require.NotNil(t, out[1].Maintenance)
	assert.False(t, *out[1].Maintenance)
	assert.Nil(t, out[2].Maintenance)
	assert.Len(t, issuesByRule(issues, models.RuleInvalidNumber), 1)
}

func TestCleansingService_CleanseSales_PreservesCardinality(t *testing.T) {
	issues := newTestCollector()
	svc := NewCleansingService(mustCodeMaps(t), issues, zap.NewNop())

	out := svc.CleanseSales([]models.RawSalesLine{
		{OrderNumber: "SO100", LineNumber: "1", CustomerID: "C1", ProductKey: "BK-MB-068",
			OrderDate: "2024-02-01", Quantity: "2", UnitPrice: "2294.99", Amount: "4589.98",
			CreatedAt: "2024-02-01 12:00:00", RawOffset: 1},
		{OrderNumber: "", LineNumber: "x", CustomerID: "", ProductKey: "",
			Quantity: "n/a", UnitPrice: "", Amount: "bad",
			CreatedAt: "not-a-time", RawOffset: 2},
	})

	require.Len(t, out, 2, "dirty rows are kept")

	clean := out[0]
	assert.Equal(t, 1, clean.LineNumber)
	require.NotNil(t, clean.Quantity)
	assert.Equal(t, int64(2), *clean.Quantity)
	assert.True(t, clean.Amount.Equal(decimal.RequireFromString("4589.98")))

	dirty := out[1]
	assert.Equal(t, 0, dirty.LineNumber, "bad line number falls back to zero")
	assert.Nil(t, dirty.Quantity)
	assert.Nil(t, dirty.Amount)
	assert.True(t, dirty.CreatedAt.IsZero())

	assert.NotEmpty(t, issuesByRule(issues, models.RuleMissingRequired))
	assert.NotEmpty(t, issuesByRule(issues, models.RuleInvalidNumber))
}
