package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martforge/martforge/pkg/apperrors"
	"github.com/martforge/martforge/pkg/database"
	"github.com/martforge/martforge/pkg/models"
	"github.com/martforge/martforge/pkg/repositories"
)

// PipelineService orchestrates one full rebuild: it sequences the stages of
// each entity family chain, runs the customer and product chains
// concurrently, and gates the sales chain on both dimensions being
// assembled. Every stage invocation is wrapped in a scoped boundary that
// records family, stage, elapsed time, row counts, and error; a fatal error
// aborts only its own chain. The run holds an advisory lock for its whole
// duration, so two runs can never rebuild the same targets concurrently.
type PipelineService interface {
	Run(ctx context.Context) (*models.PipelineRun, error)
}

// lockFunc acquires the single-writer run lock and returns its release
// function. Swappable so the orchestration logic is testable without a
// database.
type lockFunc func(ctx context.Context) (release func(context.Context) error, err error)

type pipelineService struct {
	raw       repositories.RawStoreRepository
	warehouse repositories.WarehouseRepository
	runs      repositories.RunRepository
	codes     CodeMaps
	lock      lockFunc
	logger    *zap.Logger
}

// NewPipelineService creates a new PipelineService.
func NewPipelineService(
	db *database.DB,
	raw repositories.RawStoreRepository,
	warehouse repositories.WarehouseRepository,
	runs repositories.RunRepository,
	lockKey int64,
	logger *zap.Logger,
) (PipelineService, error) {
	codes, err := LoadCodeMaps()
	if err != nil {
		return nil, err
	}
	return &pipelineService{
		raw:       raw,
		warehouse: warehouse,
		runs:      runs,
		codes:     codes,
		lock: func(ctx context.Context) (func(context.Context) error, error) {
			lock, err := database.AcquireRunLock(ctx, db, lockKey)
			if err != nil {
				return nil, err
			}
			return lock.Release, nil
		},
		logger: logger.Named("pipeline"),
	}, nil
}

var _ PipelineService = (*pipelineService)(nil)

// runServices bundles the per-run stage services, all reporting into the
// run's issue collector.
type runServices struct {
	issues     *IssueCollector
	cleansing  CleansingService
	dedup      DedupService
	merge      MergeService
	rules      RulesService
	assembly   AssemblyService
	validation ValidationService
}

// runState carries cross-chain coordination: the barrier channels close once
// a dimension chain has finished (successfully or not), and the surrogate
// maps are published before the close.
type runState struct {
	customerReady chan struct{}
	productReady  chan struct{}

	mu          sync.Mutex
	customerSKs map[string]int64
	productSKs  map[string]int64
	customerOK  bool
	productOK   bool
}

func (s *pipelineService) Run(ctx context.Context) (*models.PipelineRun, error) {
	release, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}()

	run := &models.PipelineRun{
		ID:        uuid.New(),
		Status:    models.RunStatusRunning,
		StartedAt: time.Now(),
	}
	s.logger.Info("Starting pipeline run", zap.String("run_id", run.ID.String()))

	issues := NewIssueCollector(run.ID)
	svcs := &runServices{
		issues:     issues,
		cleansing:  NewCleansingService(s.codes, issues, s.logger),
		dedup:      NewDedupService(issues, s.logger),
		merge:      NewMergeService(issues, s.logger),
		rules:      NewRulesService(s.codes, issues, s.logger),
		assembly:   NewAssemblyService(issues, s.logger),
		validation: NewValidationService(issues, s.logger),
	}
	state := &runState{
		customerReady: make(chan struct{}),
		productReady:  make(chan struct{}),
	}

	var (
		wg       sync.WaitGroup
		customer models.FamilyResult
		product  models.FamilyResult
		sales    models.FamilyResult
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		customer = s.runCustomerChain(ctx, svcs, state)
	}()
	go func() {
		defer wg.Done()
		product = s.runProductChain(ctx, svcs, state)
	}()
	go func() {
		defer wg.Done()
		sales = s.runSalesChain(ctx, svcs, state)
	}()
	wg.Wait()

	now := time.Now()
	run.FinishedAt = &now
	run.Families = []models.FamilyResult{customer, product, sales}
	run.Issues = issues.Issues()
	if run.Succeeded() {
		run.Status = models.RunStatusCompleted
	} else if ctx.Err() != nil {
		run.Status = models.RunStatusCancelled
	} else {
		run.Status = models.RunStatusFailed
	}

	if err := s.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("Failed to persist run report", zap.Error(err))
	}
	s.logSummary(run)

	return run, nil
}

// ============================================================================
// Family chains
// ============================================================================

func (s *pipelineService) runCustomerChain(ctx context.Context, svcs *runServices, state *runState) models.FamilyResult {
	family := models.FamilyCustomer
	result := models.FamilyResult{Family: family, Status: models.RunStatusCompleted}

	// The barrier closes on every exit path; sales reads the OK flag.
	defer close(state.customerReady)
	defer func() {
		result.IssueCount = svcs.issues.CountByFamily(family)
	}()

	var (
		crm, erp  []models.Customer
		canonical []models.Customer
		dim       []models.DimCustomer
		skMap     map[string]int64
	)

	stages := []struct {
		name models.StageName
		fn   func() (int, int, error)
	}{
		{models.StageCleansing, func() (int, int, error) {
			rawCRM, err := s.raw.CRMCustomers(ctx)
			if err != nil {
				return 0, 0, err
			}
			rawERP, err := s.raw.ERPCustomers(ctx)
			if err != nil {
				return 0, 0, err
			}
			crm = svcs.cleansing.CleanseCustomers(models.SourceCRM, rawCRM)
			erp = svcs.cleansing.CleanseCustomers(models.SourceERP, rawERP)
			for _, batch := range [][]models.Customer{crm, erp} {
				if err := svcs.validation.ValidateCustomers(models.StageCleansing, batch, false); err != nil {
					return len(rawCRM) + len(rawERP), 0, err
				}
			}
			return len(rawCRM) + len(rawERP), len(crm) + len(erp), nil
		}},
		{models.StageDedup, func() (int, int, error) {
			in := len(crm) + len(erp)
			canonical = svcs.merge.MergeCustomers(svcs.dedup.DedupCustomers(crm), svcs.dedup.DedupCustomers(erp))
			if err := svcs.validation.ValidateCustomers(models.StageDedup, canonical, true); err != nil {
				return in, 0, err
			}
			return in, len(canonical), nil
		}},
		{models.StageAssembly, func() (int, int, error) {
			dim, skMap = svcs.assembly.BuildCustomerDim(canonical)
			return len(canonical), len(dim), nil
		}},
		{models.StageLoad, func() (int, int, error) {
			if err := s.warehouse.ResetStaging(ctx, family); err != nil {
				return len(dim), 0, err
			}
			if err := s.warehouse.InsertDimCustomers(ctx, dim); err != nil {
				return len(dim), 0, err
			}
			if err := s.warehouse.Publish(ctx, family); err != nil {
				return len(dim), 0, err
			}
			return len(dim), len(dim), nil
		}},
	}

	result.Stages = s.runChain(ctx, family, svcs, stages)
	if chainFailed(result.Stages) {
		result.Status = models.RunStatusFailed
		return result
	}

	state.mu.Lock()
	state.customerSKs = skMap
	state.customerOK = true
	state.mu.Unlock()
	return result
}

func (s *pipelineService) runProductChain(ctx context.Context, svcs *runServices, state *runState) models.FamilyResult {
	family := models.FamilyProduct
	result := models.FamilyResult{Family: family, Status: models.RunStatusCompleted}

	defer close(state.productReady)
	defer func() {
		result.IssueCount = svcs.issues.CountByFamily(family)
	}()

	var (
		versions []models.Product
		ext      []models.ProductExt
		current  []models.Product
		dim      []models.DimProduct
		skMap    map[string]int64
	)

	stages := []struct {
		name models.StageName
		fn   func() (int, int, error)
	}{
		{models.StageCleansing, func() (int, int, error) {
			rawProducts, err := s.raw.ERPProducts(ctx)
			if err != nil {
				return 0, 0, err
			}
			rawExt, err := s.raw.CRMProductExt(ctx)
			if err != nil {
				return 0, 0, err
			}
			versions = svcs.cleansing.CleanseProducts(rawProducts)
			ext = svcs.cleansing.CleanseProductExt(rawExt)
			if err := svcs.validation.ValidateProducts(models.StageCleansing, versions, false); err != nil {
				return len(rawProducts) + len(rawExt), 0, err
			}
			return len(rawProducts) + len(rawExt), len(versions) + len(ext), nil
		}},
		{models.StageDedup, func() (int, int, error) {
			in := len(versions) + len(ext)
			versions = svcs.dedup.DedupProducts(versions)
			ext = svcs.dedup.DedupProductExt(ext)
			if err := svcs.validation.ValidateProducts(models.StageDedup, versions, false); err != nil {
				return in, 0, err
			}
			return in, len(versions) + len(ext), nil
		}},
		{models.StageRules, func() (int, int, error) {
			in := len(versions)
			versions = svcs.rules.ApplyProductRules(versions)
			current = svcs.rules.CurrentProducts(versions)
			if err := svcs.validation.ValidateProducts(models.StageRules, versions, true); err != nil {
				return in, 0, err
			}
			return in, len(current), nil
		}},
		{models.StageAssembly, func() (int, int, error) {
			dim, skMap = svcs.assembly.BuildProductDim(current, ext)
			return len(current), len(dim), nil
		}},
		{models.StageLoad, func() (int, int, error) {
			if err := s.warehouse.ResetStaging(ctx, family); err != nil {
				return len(dim), 0, err
			}
			if err := s.warehouse.InsertDimProducts(ctx, dim); err != nil {
				return len(dim), 0, err
			}
			if err := s.warehouse.Publish(ctx, family); err != nil {
				return len(dim), 0, err
			}
			return len(dim), len(dim), nil
		}},
	}

	result.Stages = s.runChain(ctx, family, svcs, stages)
	if chainFailed(result.Stages) {
		result.Status = models.RunStatusFailed
		return result
	}

	state.mu.Lock()
	state.productSKs = skMap
	state.productOK = true
	state.mu.Unlock()
	return result
}

func (s *pipelineService) runSalesChain(ctx context.Context, svcs *runServices, state *runState) models.FamilyResult {
	family := models.FamilySales
	result := models.FamilyResult{Family: family, Status: models.RunStatusCompleted}

	defer func() {
		result.IssueCount = svcs.issues.CountByFamily(family)
	}()

	var (
		lines []models.SalesLine
		facts []models.FactSalesLine
	)

	stages := []struct {
		name models.StageName
		fn   func() (int, int, error)
	}{
		{models.StageCleansing, func() (int, int, error) {
			rawSales, err := s.raw.CRMSales(ctx)
			if err != nil {
				return 0, 0, err
			}
			lines = svcs.cleansing.CleanseSales(rawSales)
			if err := svcs.validation.ValidateSales(models.StageCleansing, lines); err != nil {
				return len(rawSales), 0, err
			}
			return len(rawSales), len(lines), nil
		}},
		{models.StageDedup, func() (int, int, error) {
			in := len(lines)
			lines = svcs.dedup.DedupSales(lines)
			if err := svcs.validation.ValidateSales(models.StageDedup, lines); err != nil {
				return in, 0, err
			}
			return in, len(lines), nil
		}},
		{models.StageRules, func() (int, int, error) {
			lines = svcs.rules.ReconcileSales(lines)
			if err := svcs.validation.ValidateSales(models.StageRules, lines); err != nil {
				return len(lines), 0, err
			}
			return len(lines), len(lines), nil
		}},
		{models.StageAssembly, func() (int, int, error) {
			// Barrier: facts need both dimensions fully assembled.
			customerSKs, productSKs, err := s.awaitDimensions(ctx, state)
			if err != nil {
				return len(lines), 0, err
			}
			facts = svcs.assembly.BuildFacts(lines, customerSKs, productSKs)
			if err := svcs.validation.ValidateFacts(facts, customerSKs, productSKs); err != nil {
				return len(lines), 0, err
			}
			return len(lines), len(facts), nil
		}},
		{models.StageLoad, func() (int, int, error) {
			if err := s.warehouse.ResetStaging(ctx, family); err != nil {
				return len(facts), 0, err
			}
			if err := s.warehouse.InsertFacts(ctx, facts); err != nil {
				return len(facts), 0, err
			}
			if err := s.warehouse.Publish(ctx, family); err != nil {
				return len(facts), 0, err
			}
			return len(facts), len(facts), nil
		}},
	}

	result.Stages = s.runChain(ctx, family, svcs, stages)
	if chainFailed(result.Stages) {
		result.Status = models.RunStatusFailed
	}
	return result
}

// awaitDimensions blocks until both dimension chains have finished, then
// hands back their surrogate maps. Fails with ErrDependencyFailed when an
// upstream chain did not complete.
func (s *pipelineService) awaitDimensions(ctx context.Context, state *runState) (map[string]int64, map[string]int64, error) {
	for _, ready := range []chan struct{}{state.customerReady, state.productReady} {
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if !state.customerOK {
		return nil, nil, fmt.Errorf("customer dimension unavailable: %w", apperrors.ErrDependencyFailed)
	}
	if !state.productOK {
		return nil, nil, fmt.Errorf("product dimension unavailable: %w", apperrors.ErrDependencyFailed)
	}
	return state.customerSKs, state.productSKs, nil
}

// ============================================================================
// Stage boundary
// ============================================================================

// runChain executes the chain's stages in order inside the scoped error
// boundary. On a fatal stage error the remaining stages are recorded as
// skipped; aborts between stages honor context cancellation.
func (s *pipelineService) runChain(
	ctx context.Context,
	family models.EntityFamily,
	svcs *runServices,
	stages []struct {
		name models.StageName
		fn   func() (int, int, error)
	},
) []models.StageResult {
	results := make([]models.StageResult, 0, len(stages))
	failed := false

	for _, stage := range stages {
		if failed || ctx.Err() != nil {
			res := models.StageResult{
				Stage:  stage.name,
				Family: family,
				Status: models.StageStatusSkipped,
			}
			if !failed {
				res.Err = ctx.Err()
			}
			results = append(results, res)
			continue
		}
		res := s.runStage(family, stage.name, svcs.issues, stage.fn)
		if res.Status == models.StageStatusFailed {
			failed = true
		}
		results = append(results, res)
	}
	return results
}

// runStage is the scoped error boundary around one stage invocation.
func (s *pipelineService) runStage(family models.EntityFamily, stage models.StageName, issues *IssueCollector, fn func() (int, int, error)) models.StageResult {
	start := time.Now()
	before := issues.CountByFamily(family)

	rowsIn, rowsOut, err := fn()

	res := models.StageResult{
		Stage:    stage,
		Family:   family,
		Duration: time.Since(start),
		RowsIn:   rowsIn,
		RowsOut:  rowsOut,
		Issues:   issues.CountByFamily(family) - before,
	}
	if err != nil {
		res.Status = models.StageStatusFailed
		res.Err = err
		s.logger.Error("Stage failed",
			zap.String("family", string(family)),
			zap.String("stage", string(stage)),
			zap.Duration("elapsed", res.Duration),
			zap.Error(err))
		return res
	}

	res.Status = models.StageStatusCompleted
	s.logger.Info("Stage completed",
		zap.String("family", string(family)),
		zap.String("stage", string(stage)),
		zap.Duration("elapsed", res.Duration),
		zap.Int("rows_in", rowsIn),
		zap.Int("rows_out", rowsOut),
		zap.Int("issues", res.Issues))
	return res
}

func chainFailed(stages []models.StageResult) bool {
	for i := range stages {
		if stages[i].Status != models.StageStatusCompleted {
			return true
		}
	}
	return false
}

func (s *pipelineService) logSummary(run *models.PipelineRun) {
	totals := run.IssueTotals()
	fields := []zap.Field{
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(run.Status)),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
		zap.Int("issues_info", totals[models.SeverityInfo]),
		zap.Int("issues_warning", totals[models.SeverityWarning]),
		zap.Int("issues_fatal", totals[models.SeverityFatal]),
	}
	for i := range run.Families {
		f := &run.Families[i]
		fields = append(fields, zap.String("family_"+string(f.Family), string(f.Status)))
	}
	s.logger.Info("Pipeline run finished", fields...)
}
