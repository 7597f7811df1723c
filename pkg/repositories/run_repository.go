package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/martforge/martforge/pkg/database"
	"github.com/martforge/martforge/pkg/models"
)

// RunRepository persists the per-run report: the run record, per-family and
// per-stage outcomes, and the full quality issue list. Intended for the
// monitoring sink; the pipeline itself never reads these back.
type RunRepository interface {
	SaveRun(ctx context.Context, run *models.PipelineRun) error
}

type runRepository struct {
	db *database.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *database.DB) RunRepository {
	return &runRepository{db: db}
}

var _ RunRepository = (*runRepository)(nil)

func (r *runRepository) SaveRun(ctx context.Context, run *models.PipelineRun) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback(ctx)

	finished := run.FinishedAt
	if finished == nil {
		now := time.Now()
		finished = &now
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO engine_runs (id, status, started_at, finished_at)
		VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.StartedAt, finished)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for fi := range run.Families {
		fam := &run.Families[fi]
		for si := range fam.Stages {
			st := &fam.Stages[si]
			var errMsg *string
			if st.Err != nil {
				msg := st.Err.Error()
				errMsg = &msg
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO engine_run_stages
					(run_id, family, stage, status, duration_ms, rows_in, rows_out, issues, error)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				run.ID, string(fam.Family), string(st.Stage), string(st.Status),
				st.Duration.Milliseconds(), st.RowsIn, st.RowsOut, st.Issues, errMsg)
			if err != nil {
				return fmt.Errorf("insert stage result: %w", err)
			}
		}
	}

	if len(run.Issues) > 0 {
		src := make([][]any, len(run.Issues))
		for i := range run.Issues {
			q := &run.Issues[i]
			src[i] = []any{q.RunID, string(q.Stage), string(q.Family), q.BusinessKey,
				q.Rule, string(q.Severity), q.Detail, q.CreatedAt}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"engine_quality_issues"},
			[]string{"run_id", "stage", "family", "business_key", "rule", "severity", "detail", "created_at"},
			pgx.CopyFromRows(src))
		if err != nil {
			return fmt.Errorf("insert quality issues: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}
	return nil
}
