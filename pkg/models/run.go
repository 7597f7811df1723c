package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Run Status
// ============================================================================

// RunStatus represents the overall status of a pipeline run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status is terminal.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// ============================================================================
// Entity Families
// ============================================================================

// EntityFamily is one independently-orchestrated pipeline chain.
type EntityFamily string

const (
	FamilyCustomer EntityFamily = "customer"
	FamilyProduct  EntityFamily = "product"
	FamilySales    EntityFamily = "sales"
)

// Families lists all entity families in dependency order: sales gates on
// customer and product dimensional assembly.
var Families = []EntityFamily{FamilyCustomer, FamilyProduct, FamilySales}

// ============================================================================
// Stages
// ============================================================================

// StageName identifies one pipeline stage within a family chain.
type StageName string

const (
	StageCleansing  StageName = "cleansing"
	StageDedup      StageName = "dedup"
	StageRules      StageName = "business_rules"
	StageAssembly   StageName = "assembly"
	StageValidation StageName = "validation"
	StageLoad       StageName = "load"
)

// StageStatus represents the execution status of one stage.
type StageStatus string

const (
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// StageResult is the explicit outcome value for one stage invocation. Fatal
// stage errors are carried here rather than panicking so the orchestrator can
// abort one chain while the others proceed.
type StageResult struct {
	Stage    StageName
	Family   EntityFamily
	Status   StageStatus
	Duration time.Duration
	RowsIn   int
	RowsOut  int
	Issues   int
	Err      error
}

// ============================================================================
// Run Report
// ============================================================================

// FamilyResult aggregates the stage results for one entity family chain.
type FamilyResult struct {
	Family     EntityFamily
	Status     RunStatus
	Stages     []StageResult
	IssueCount int
}

// Failed reports whether the chain ended in failure.
func (f *FamilyResult) Failed() bool { return f.Status == RunStatusFailed }

// PipelineRun is the per-run report: one record per run with per-family and
// per-stage outcomes plus the full quality issue list.
type PipelineRun struct {
	ID         uuid.UUID
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Families   []FamilyResult
	Issues     []QualityIssue
}

// Succeeded reports whether every family chain completed.
func (r *PipelineRun) Succeeded() bool {
	for i := range r.Families {
		if r.Families[i].Status != RunStatusCompleted {
			return false
		}
	}
	return len(r.Families) > 0
}

// IssueTotals returns issue counts grouped by severity.
func (r *PipelineRun) IssueTotals() map[Severity]int {
	totals := make(map[Severity]int)
	for i := range r.Issues {
		totals[r.Issues[i].Severity]++
	}
	return totals
}
