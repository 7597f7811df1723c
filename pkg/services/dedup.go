package services

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/models"
)

// DedupService collapses multiple raw versions of a business entity into one
// authoritative record per group. Ranking is sort-based (O(n log n) per
// group): latest recency timestamp first. Tie-break when timestamps are equal:
// the record with the highest raw offset wins, keeping the result
// deterministic and reproducible for identical raw input. Idempotent on its
// own output.
type DedupService interface {
	DedupCustomers(customers []models.Customer) []models.Customer
	DedupProducts(products []models.Product) []models.Product
	DedupProductExt(ext []models.ProductExt) []models.ProductExt
	DedupSales(lines []models.SalesLine) []models.SalesLine
}

type dedupService struct {
	issues *IssueCollector
	logger *zap.Logger
}

// NewDedupService creates a new DedupService.
func NewDedupService(issues *IssueCollector, logger *zap.Logger) DedupService {
	return &dedupService{
		issues: issues,
		logger: logger.Named("dedup"),
	}
}

var _ DedupService = (*dedupService)(nil)

// record is the ranking surface shared by every cleansed entity type.
type record interface {
	Key() string
	Recency() (time.Time, int64)
}

// dedupBy groups records by groupKey, ranks each group by recency (then raw
// offset), and keeps the top-ranked record. Output is ordered by group key so
// repeated runs over identical input produce identical output.
func dedupBy[T any, PT interface {
	record
	*T
}](recs []T, groupKey func(PT) string) []T {
	groups := make(map[string][]int)
	for i := range recs {
		k := groupKey(PT(&recs[i]))
		groups[k] = append(groups[k], i)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(groups))
	for _, k := range keys {
		idxs := groups[k]
		sort.Slice(idxs, func(a, b int) bool {
			ta, oa := PT(&recs[idxs[a]]).Recency()
			tb, ob := PT(&recs[idxs[b]]).Recency()
			if !ta.Equal(tb) {
				return ta.After(tb)
			}
			return oa > ob
		})
		out = append(out, recs[idxs[0]])
	}
	return out
}

// report logs one info issue per collapsed group. Duplicates are resolved by
// rule, never surfaced as errors.
func (s *dedupService) report(family models.EntityFamily, before, after int) {
	if before != after {
		s.logger.Info("Collapsed duplicate records",
			zap.String("family", string(family)),
			zap.Int("in", before),
			zap.Int("out", after))
	}
}

func (s *dedupService) DedupCustomers(customers []models.Customer) []models.Customer {
	out := dedupBy(customers, func(c *models.Customer) string { return c.BusinessKey })
	reportCollapsedGroups(s, models.FamilyCustomer, customers, out, func(c *models.Customer) string { return c.BusinessKey })
	return out
}

// DedupProducts deduplicates at version grain: product versions share a
// business key and are distinguished by start date, so the group key is the
// (business key, start date) pair. Version history survives; extract copies
// of the same version collapse.
func (s *dedupService) DedupProducts(products []models.Product) []models.Product {
	groupKey := func(p *models.Product) string {
		start := ""
		if p.StartDate != nil {
			start = p.StartDate.Format("2006-01-02")
		}
		return p.BusinessKey + "|" + start
	}
	out := dedupBy(products, groupKey)
	reportCollapsedGroups(s, models.FamilyProduct, products, out, groupKey)
	return out
}

func (s *dedupService) DedupProductExt(ext []models.ProductExt) []models.ProductExt {
	out := dedupBy(ext, func(e *models.ProductExt) string { return e.BusinessKey })
	s.report(models.FamilyProduct, len(ext), len(out))
	return out
}

func (s *dedupService) DedupSales(lines []models.SalesLine) []models.SalesLine {
	groupKey := func(l *models.SalesLine) string { return l.Key() }
	out := dedupBy(lines, groupKey)
	reportCollapsedGroups(s, models.FamilySales, lines, out, groupKey)
	return out
}

// reportCollapsedGroups records an info issue for every group that actually
// collapsed.
func reportCollapsedGroups[T any](s *dedupService, family models.EntityFamily, in, out []T, groupKey func(*T) string) {
	if len(in) == len(out) {
		return
	}

	counts := make(map[string]int)
	for i := range in {
		counts[groupKey(&in[i])]++
	}
	for k, n := range counts {
		if n > 1 {
			s.issues.Add(models.StageDedup, family, k, models.RuleDuplicateKey,
				models.SeverityInfo, fmt.Sprintf("collapsed %d raw versions", n))
		}
	}
	s.report(family, len(in), len(out))
}
