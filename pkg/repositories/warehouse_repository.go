package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/martforge/martforge/pkg/database"
	"github.com/martforge/martforge/pkg/models"
	"github.com/martforge/martforge/pkg/retry"
)

// WarehouseRepository writes the star schema. Every run is a full rebuild:
// rows go into staging twins of the target tables, and Publish atomically
// swaps staging into place inside one transaction. A concurrent reader sees
// either the previous complete output or the next complete output, never a
// partial one.
type WarehouseRepository interface {
	ResetStaging(ctx context.Context, family models.EntityFamily) error
	InsertDimCustomers(ctx context.Context, rows []models.DimCustomer) error
	InsertDimProducts(ctx context.Context, rows []models.DimProduct) error
	InsertFacts(ctx context.Context, rows []models.FactSalesLine) error
	Publish(ctx context.Context, family models.EntityFamily) error
}

type warehouseRepository struct {
	db            *database.DB
	stagingSuffix string
	retryCfg      *retry.Config
}

// NewWarehouseRepository creates a new WarehouseRepository.
func NewWarehouseRepository(db *database.DB, stagingSuffix string) WarehouseRepository {
	return &warehouseRepository{
		db:            db,
		stagingSuffix: stagingSuffix,
		retryCfg:      retry.DefaultConfig(),
	}
}

var _ WarehouseRepository = (*warehouseRepository)(nil)

// familyTables maps each entity family to its target tables.
func familyTables(family models.EntityFamily) []string {
	switch family {
	case models.FamilyCustomer:
		return []string{"dim_customer"}
	case models.FamilyProduct:
		return []string{"dim_product"}
	case models.FamilySales:
		return []string{"fact_sales_line"}
	default:
		return nil
	}
}

func (r *warehouseRepository) staging(table string) string {
	return table + r.stagingSuffix
}

// ResetStaging clears the family's staging tables ahead of the rebuild.
func (r *warehouseRepository) ResetStaging(ctx context.Context, family models.EntityFamily) error {
	for _, table := range familyTables(family) {
		if _, err := r.db.Exec(ctx, fmt.Sprintf("TRUNCATE %s", r.staging(table))); err != nil {
			return fmt.Errorf("truncate %s: %w", r.staging(table), err)
		}
	}
	return nil
}

func (r *warehouseRepository) InsertDimCustomers(ctx context.Context, rows []models.DimCustomer) error {
	columns := []string{"surrogate_key", "business_key", "first_name", "last_name",
		"gender", "marital_status", "email", "city", "country", "birth_date"}

	src := make([][]any, len(rows))
	for i := range rows {
		c := &rows[i]
		src[i] = []any{c.SurrogateKey, c.BusinessKey, c.FirstName, c.LastName,
			c.Gender, c.MaritalStatus, c.Email, c.City, c.Country, c.BirthDate}
	}
	return r.copyInto(ctx, r.staging("dim_customer"), columns, src)
}

func (r *warehouseRepository) InsertDimProducts(ctx context.Context, rows []models.DimProduct) error {
	columns := []string{"surrogate_key", "business_key", "product_name", "standard_cost",
		"list_price", "line_name", "category", "subcategory", "subcategory_name",
		"maintenance", "start_date", "end_date"}

	src := make([][]any, len(rows))
	for i := range rows {
		p := &rows[i]
		src[i] = []any{p.SurrogateKey, p.BusinessKey, p.Name, decimalArg(p.StandardCost),
			decimalArg(p.ListPrice), p.LineName, p.Category, p.Subcategory, p.SubcategoryName,
			p.Maintenance, p.StartDate, p.EndDate}
	}
	return r.copyInto(ctx, r.staging("dim_product"), columns, src)
}

func (r *warehouseRepository) InsertFacts(ctx context.Context, rows []models.FactSalesLine) error {
	columns := []string{"order_number", "line_number", "customer_sk", "product_sk",
		"order_date", "ship_date", "due_date", "quantity", "unit_price", "amount",
		"unrecoverable"}

	src := make([][]any, len(rows))
	for i := range rows {
		f := &rows[i]
		src[i] = []any{f.OrderNumber, f.LineNumber, f.CustomerSK, f.ProductSK,
			f.OrderDate, f.ShipDate, f.DueDate, f.Quantity, decimalArg(f.UnitPrice),
			decimalArg(f.Amount), f.Unrecoverable}
	}
	return r.copyInto(ctx, r.staging("fact_sales_line"), columns, src)
}

// copyInto bulk-loads rows with COPY, retrying transient failures. The
// staging table is truncated first so a retried attempt never double-loads.
func (r *warehouseRepository) copyInto(ctx context.Context, table string, columns []string, src [][]any) error {
	return retry.Do(ctx, r.retryCfg, func() error {
		if _, err := r.db.Exec(ctx, fmt.Sprintf("TRUNCATE %s", table)); err != nil {
			return fmt.Errorf("truncate %s before copy: %w", table, err)
		}
		n, err := r.db.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(src))
		if err != nil {
			return fmt.Errorf("copy into %s: %w", table, err)
		}
		if int(n) != len(src) {
			return fmt.Errorf("copy into %s wrote %d of %d rows", table, n, len(src))
		}
		return nil
	})
}

// Publish swaps the family's staging tables into place. The rename dance runs
// inside one transaction: the previous live table becomes the next staging
// table, so nothing is dropped until the new output is fully in place.
func (r *warehouseRepository) Publish(ctx context.Context, family models.EntityFamily) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range familyTables(family) {
		staging := r.staging(table)
		retired := table + "_retired"

		stmts := []string{
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", table, retired),
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", staging, table),
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", retired, staging),
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("publish %s: %w", table, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	return nil
}

// decimalArg passes decimals to the driver as strings; Postgres casts them
// into numeric columns exactly.
func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
