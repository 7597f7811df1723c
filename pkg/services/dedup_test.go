package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/models"
)

func TestDedupService_DedupCustomers_LatestWins(t *testing.T) {
	issues := newTestCollector()
	svc := NewDedupService(issues, zap.NewNop())

	customers := []models.Customer{
		{BusinessKey: "C1", FirstName: strPtr("Old"), CreatedAt: ts("2024-01-01 09:00:00"), RawOffset: 1},
		{BusinessKey: "C1", FirstName: strPtr("New"), CreatedAt: ts("2024-02-01 09:00:00"), RawOffset: 2},
		{BusinessKey: "C2", FirstName: strPtr("Solo"), CreatedAt: ts("2024-01-15 09:00:00"), RawOffset: 3},
	}

	out := svc.DedupCustomers(customers)
	require.Len(t, out, 2)

	assert.Equal(t, "C1", out[0].BusinessKey)
	assert.Equal(t, "New", *out[0].FirstName)
	assert.Equal(t, "C2", out[1].BusinessKey)

	collapsed := issuesByRule(issues, models.RuleDuplicateKey)
	require.Len(t, collapsed, 1)
	assert.Equal(t, models.SeverityInfo, collapsed[0].Severity)
	assert.Equal(t, "C1", collapsed[0].BusinessKey)
}

func TestDedupService_DedupCustomers_TieBreaksOnRawOffset(t *testing.T) {
	svc := NewDedupService(newTestCollector(), zap.NewNop())

	same := ts("2024-01-01 09:00:00")
	customers := []models.Customer{
		{BusinessKey: "C1", FirstName: strPtr("early"), CreatedAt: same, RawOffset: 10},
		{BusinessKey: "C1", FirstName: strPtr("late"), CreatedAt: same, RawOffset: 42},
	}

	out := svc.DedupCustomers(customers)
	require.Len(t, out, 1)
	assert.Equal(t, "late", *out[0].FirstName, "equal timestamps resolve to the highest raw offset")
}

func TestDedupService_DedupCustomers_UnparseableTimestampRanksLast(t *testing.T) {
	svc := NewDedupService(newTestCollector(), zap.NewNop())

	customers := []models.Customer{
		{BusinessKey: "C1", FirstName: strPtr("zero-time"), RawOffset: 99},
		{BusinessKey: "C1", FirstName: strPtr("dated"), CreatedAt: ts("2020-01-01 00:00:00"), RawOffset: 1},
	}

	out := svc.DedupCustomers(customers)
	require.Len(t, out, 1)
	assert.Equal(t, "dated", *out[0].FirstName)
}

func TestDedupService_DedupCustomers_Idempotent(t *testing.T) {
	svc := NewDedupService(newTestCollector(), zap.NewNop())

	customers := []models.Customer{
		{BusinessKey: "B", CreatedAt: ts("2024-01-01 09:00:00"), RawOffset: 1},
		{BusinessKey: "A", CreatedAt: ts("2024-01-02 09:00:00"), RawOffset: 2},
		{BusinessKey: "A", CreatedAt: ts("2024-01-03 09:00:00"), RawOffset: 3},
	}

	once := svc.DedupCustomers(customers)
	twice := svc.DedupCustomers(once)
	assert.Equal(t, once, twice)
}

func TestDedupService_DedupProducts_VersionGrainSurvives(t *testing.T) {
	issues := newTestCollector()
	svc := NewDedupService(issues, zap.NewNop())

	products := []models.Product{
		// Two distinct versions of the same product.
		{BusinessKey: "BK-MB-068", StartDate: datePtr("2023-01-01"), CreatedAt: ts("2024-01-01 00:00:00"), RawOffset: 1},
		{BusinessKey: "BK-MB-068", StartDate: datePtr("2023-07-01"), CreatedAt: ts("2024-01-01 00:00:00"), RawOffset: 2},
		// Extract copy of the second version; newer copy wins.
		{BusinessKey: "BK-MB-068", StartDate: datePtr("2023-07-01"), Name: strPtr("refreshed"),
			CreatedAt: ts("2024-02-01 00:00:00"), RawOffset: 3},
	}

	out := svc.DedupProducts(products)
	require.Len(t, out, 2, "version history is kept, only extract copies collapse")

	var july *models.Product
	for i := range out {
		if out[i].StartDate.Equal(*datePtr("2023-07-01")) {
			july = &out[i]
		}
	}
	require.NotNil(t, july)
	assert.Equal(t, "refreshed", *july.Name)
}

func TestDedupService_DedupSales_GroupsByOrderAndLine(t *testing.T) {
	svc := NewDedupService(newTestCollector(), zap.NewNop())

	lines := []models.SalesLine{
		{OrderNumber: "SO100", LineNumber: 1, Quantity: i64Ptr(1), CreatedAt: ts("2024-01-01 00:00:00"), RawOffset: 1},
		{OrderNumber: "SO100", LineNumber: 2, Quantity: i64Ptr(5), CreatedAt: ts("2024-01-01 00:00:00"), RawOffset: 2},
		{OrderNumber: "SO100", LineNumber: 1, Quantity: i64Ptr(3), CreatedAt: ts("2024-01-02 00:00:00"), RawOffset: 3},
	}

	out := svc.DedupSales(lines)
	require.Len(t, out, 2, "same order with distinct line numbers is two grains")

	for _, l := range out {
		if l.LineNumber == 1 {
			assert.Equal(t, int64(3), *l.Quantity)
		}
	}
}

func TestDedupService_DeterministicOutputOrder(t *testing.T) {
	svc := NewDedupService(newTestCollector(), zap.NewNop())

	customers := []models.Customer{
		{BusinessKey: "C3", CreatedAt: ts("2024-01-01 00:00:00")},
		{BusinessKey: "C1", CreatedAt: ts("2024-01-01 00:00:00")},
		{BusinessKey: "C2", CreatedAt: ts("2024-01-01 00:00:00")},
	}

	out := svc.DedupCustomers(customers)
	require.Len(t, out, 3)
	assert.Equal(t, "C1", out[0].BusinessKey)
	assert.Equal(t, "C2", out[1].BusinessKey)
	assert.Equal(t, "C3", out[2].BusinessKey)
}
