package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatus_IsTerminal(t *testing.T) {
	assert.False(t, RunStatusPending.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusCompleted.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
	assert.True(t, RunStatusCancelled.IsTerminal())
}

func TestPipelineRun_Succeeded(t *testing.T) {
	run := &PipelineRun{}
	assert.False(t, run.Succeeded(), "a run with no family results did not succeed")

	run.Families = []FamilyResult{
		{Family: FamilyCustomer, Status: RunStatusCompleted},
		{Family: FamilyProduct, Status: RunStatusCompleted},
		{Family: FamilySales, Status: RunStatusCompleted},
	}
	assert.True(t, run.Succeeded())

	run.Families[2].Status = RunStatusFailed
	assert.False(t, run.Succeeded())
}

func TestPipelineRun_IssueTotals(t *testing.T) {
	run := &PipelineRun{
		Issues: []QualityIssue{
			{Severity: SeverityInfo},
			{Severity: SeverityWarning},
			{Severity: SeverityWarning},
			{Severity: SeverityFatal},
		},
	}

	totals := run.IssueTotals()
	assert.Equal(t, 1, totals[SeverityInfo])
	assert.Equal(t, 2, totals[SeverityWarning])
	assert.Equal(t, 1, totals[SeverityFatal])
}

func TestFactSalesLine_Resolved(t *testing.T) {
	f := &FactSalesLine{CustomerSK: 1, ProductSK: 2}
	assert.True(t, f.Resolved())

	f.ProductSK = UnresolvedKey
	assert.False(t, f.Resolved())
}
