package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/martforge/martforge/pkg/models"
)

// IssueCollector is the shared, append-only quality issue sink for one run.
// Stages from concurrently-running family chains report into the same
// collector, so it is safe for concurrent use.
type IssueCollector struct {
	mu     sync.Mutex
	runID  uuid.UUID
	issues []models.QualityIssue
}

// NewIssueCollector creates a collector scoped to the given run.
func NewIssueCollector(runID uuid.UUID) *IssueCollector {
	return &IssueCollector{runID: runID}
}

// Add records one quality issue.
func (c *IssueCollector) Add(stage models.StageName, family models.EntityFamily, businessKey, rule string, severity models.Severity, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.issues = append(c.issues, models.QualityIssue{
		RunID:       c.runID,
		Stage:       stage,
		Family:      family,
		BusinessKey: businessKey,
		Rule:        rule,
		Severity:    severity,
		Detail:      detail,
		CreatedAt:   time.Now(),
	})
}

// Issues returns a copy of all issues recorded so far.
func (c *IssueCollector) Issues() []models.QualityIssue {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.QualityIssue, len(c.issues))
	copy(out, c.issues)
	return out
}

// Count returns the number of issues recorded so far.
func (c *IssueCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.issues)
}

// CountByFamily returns the number of issues recorded for one family. Stage
// boundaries use the family-scoped count so concurrent chains don't pollute
// each other's deltas.
func (c *IssueCollector) CountByFamily(family models.EntityFamily) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for i := range c.issues {
		if c.issues[i].Family == family {
			n++
		}
	}
	return n
}
