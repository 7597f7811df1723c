package services

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/models"
)

// AssemblyService builds the star schema: dense run-scoped surrogate keys
// per dimension, enrichment left-joins by business key, and fact rows whose
// dimension references either resolve or carry the explicit unresolved
// sentinel. Facts are never silently dropped; the output grain stays one row
// per original sales line item.
type AssemblyService interface {
	BuildCustomerDim(customers []models.Customer) ([]models.DimCustomer, map[string]int64)
	BuildProductDim(products []models.Product, ext []models.ProductExt) ([]models.DimProduct, map[string]int64)
	BuildFacts(lines []models.SalesLine, customerKeys, productKeys map[string]int64) []models.FactSalesLine
}

type assemblyService struct {
	issues *IssueCollector
	logger *zap.Logger
}

// NewAssemblyService creates a new AssemblyService.
func NewAssemblyService(issues *IssueCollector, logger *zap.Logger) AssemblyService {
	return &assemblyService{
		issues: issues,
		logger: logger.Named("assembly"),
	}
}

var _ AssemblyService = (*assemblyService)(nil)

// surrogateKeys assigns a dense 1..n ordering over business keys, ties broken
// by lexical order. Recomputed every run; not stable across runs when the key
// set changes.
func surrogateKeys(keys []string) map[string]int64 {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	m := make(map[string]int64, len(sorted))
	next := int64(1)
	for _, k := range sorted {
		if _, dup := m[k]; dup {
			continue
		}
		m[k] = next
		next++
	}
	return m
}

func (s *assemblyService) BuildCustomerDim(customers []models.Customer) ([]models.DimCustomer, map[string]int64) {
	keys := make([]string, len(customers))
	for i := range customers {
		keys[i] = customers[i].BusinessKey
	}
	skMap := surrogateKeys(keys)

	dim := make([]models.DimCustomer, len(customers))
	for i := range customers {
		dim[i] = models.DimCustomer{
			SurrogateKey: skMap[customers[i].BusinessKey],
			Customer:     customers[i],
		}
	}
	sort.Slice(dim, func(a, b int) bool { return dim[a].SurrogateKey < dim[b].SurrogateKey })

	s.logger.Info("Assembled customer dimension", zap.Int("rows", len(dim)))
	return dim, skMap
}

// BuildProductDim composes the current product versions with enrichment
// attributes. Left-join semantics: a product with no enrichment row keeps nil
// enrichment fields, never gets dropped.
func (s *assemblyService) BuildProductDim(products []models.Product, ext []models.ProductExt) ([]models.DimProduct, map[string]int64) {
	enrichment := make(map[string]*models.ProductExt, len(ext))
	for i := range ext {
		enrichment[ext[i].BusinessKey] = &ext[i]
	}

	keys := make([]string, len(products))
	for i := range products {
		keys[i] = products[i].BusinessKey
	}
	skMap := surrogateKeys(keys)

	dim := make([]models.DimProduct, len(products))
	joined := 0
	for i := range products {
		p := products[i]
		if e, ok := enrichment[p.BusinessKey]; ok {
			p.SubcategoryName = e.SubcategoryName
			p.Maintenance = e.Maintenance
			joined++
		}
		dim[i] = models.DimProduct{
			SurrogateKey: skMap[p.BusinessKey],
			Product:      p,
		}
	}
	sort.Slice(dim, func(a, b int) bool { return dim[a].SurrogateKey < dim[b].SurrogateKey })

	s.logger.Info("Assembled product dimension",
		zap.Int("rows", len(dim)),
		zap.Int("enriched", joined))
	return dim, skMap
}

// BuildFacts resolves each line's business keys against the dimension maps.
// Unresolved lookups keep the row with the sentinel key and a warning issue:
// explicit retention over silent drop.
func (s *assemblyService) BuildFacts(lines []models.SalesLine, customerKeys, productKeys map[string]int64) []models.FactSalesLine {
	facts := make([]models.FactSalesLine, len(lines))
	unresolved := 0

	for i := range lines {
		l := lines[i]
		f := models.FactSalesLine{
			CustomerSK: models.UnresolvedKey,
			ProductSK:  models.UnresolvedKey,
			SalesLine:  l,
		}

		if sk, ok := customerKeys[l.CustomerKey]; ok {
			f.CustomerSK = sk
		} else {
			unresolved++
			s.issues.Add(models.StageAssembly, models.FamilySales, l.Key(), models.RuleUnresolvedCustomer,
				models.SeverityWarning, fmt.Sprintf("customer key %q not in dimension, reference marked unresolved", l.CustomerKey))
		}
		if sk, ok := productKeys[l.ProductKey]; ok {
			f.ProductSK = sk
		} else {
			unresolved++
			s.issues.Add(models.StageAssembly, models.FamilySales, l.Key(), models.RuleUnresolvedProduct,
				models.SeverityWarning, fmt.Sprintf("product key %q not in dimension, reference marked unresolved", l.ProductKey))
		}

		facts[i] = f
	}

	s.logger.Info("Assembled sales facts",
		zap.Int("rows", len(facts)),
		zap.Int("unresolved_references", unresolved))
	return facts
}
