package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/models"
)

func TestMergeService_MergeCustomers_FallbackFillsNulls(t *testing.T) {
	issues := newTestCollector()
	svc := NewMergeService(issues, zap.NewNop())

	primary := []models.Customer{
		{BusinessKey: "C1", FirstName: strPtr("Ada"), LastName: strPtr("Lovelace"),
			Gender: nil, MaritalStatus: strPtr("Married"), Source: models.SourceCRM},
	}
	secondary := []models.Customer{
		{BusinessKey: "C1", Gender: strPtr("Female"), MaritalStatus: strPtr("Single"),
			BirthDate: datePtr("1985-12-10"), Source: models.SourceERP},
	}

	out := svc.MergeCustomers(primary, secondary)
	require.Len(t, out, 1)

	c := out[0]
	assert.Equal(t, "Female", *c.Gender, "null on the preferred source falls back")
	assert.Equal(t, "Married", *c.MaritalStatus, "non-null preferred value is never overwritten")
	require.NotNil(t, c.BirthDate)
	assert.Equal(t, 1985, c.BirthDate.Year())
	assert.Equal(t, 0, issues.Count())
}

func TestMergeService_MergeCustomers_BothNullStaysNull(t *testing.T) {
	svc := NewMergeService(newTestCollector(), zap.NewNop())

	primary := []models.Customer{
		{BusinessKey: "C1", FirstName: strPtr("Ada"), LastName: strPtr("Lovelace")},
	}
	secondary := []models.Customer{
		{BusinessKey: "C1"},
	}

	out := svc.MergeCustomers(primary, secondary)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Gender)
	assert.Nil(t, out[0].MaritalStatus)
	assert.Nil(t, out[0].BirthDate)
}

func TestMergeService_MergeCustomers_PrimaryDefinesEntitySet(t *testing.T) {
	svc := NewMergeService(newTestCollector(), zap.NewNop())

	primary := []models.Customer{
		{BusinessKey: "C1", FirstName: strPtr("Ada"), LastName: strPtr("Lovelace")},
	}
	secondary := []models.Customer{
		{BusinessKey: "C1", Gender: strPtr("Female")},
		{BusinessKey: "C9", Gender: strPtr("Male")}, // no matching canonical customer
	}

	out := svc.MergeCustomers(primary, secondary)
	require.Len(t, out, 1, "fallback-only keys never create canonical customers")
	assert.Equal(t, "C1", out[0].BusinessKey)
}

func TestMergeService_MergeCustomers_MissingRequiredWarns(t *testing.T) {
	issues := newTestCollector()
	svc := NewMergeService(issues, zap.NewNop())

	primary := []models.Customer{
		{BusinessKey: "C1", FirstName: nil, LastName: strPtr("Lovelace")},
	}

	out := svc.MergeCustomers(primary, nil)
	require.Len(t, out, 1, "the record survives with the gap reported")

	reported := issuesByRule(issues, models.RuleMissingRequired)
	require.Len(t, reported, 1)
	assert.Equal(t, models.SeverityWarning, reported[0].Severity)
	assert.Equal(t, "C1", reported[0].BusinessKey)
	assert.Contains(t, reported[0].Detail, "first_name")
}
