package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jinzhu/inflection"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/martforge/martforge/pkg/apperrors"
	"github.com/martforge/martforge/pkg/database"
	"github.com/martforge/martforge/pkg/models"
)

// RawStoreRepository reads the already-materialized source extracts. No
// transformation happens here: values come back exactly as loaded, ordered by
// raw offset. A missing table or column is a structural error and fatal for
// the affected family chain.
type RawStoreRepository interface {
	CRMCustomers(ctx context.Context) ([]models.RawCustomer, error)
	ERPCustomers(ctx context.Context) ([]models.RawCustomer, error)
	ERPProducts(ctx context.Context) ([]models.RawProduct, error)
	CRMProductExt(ctx context.Context) ([]models.RawProductExt, error)
	CRMSales(ctx context.Context) ([]models.RawSalesLine, error)
}

type rawStoreRepository struct {
	db *database.DB

	// erp is non-nil when the ERP extracts are read directly from SQL Server
	// instead of the warehouse raw schema.
	erp *sql.DB
}

// NewRawStoreRepository creates a RawStoreRepository over the warehouse raw
// schema. Pass a non-nil erp handle to read the ERP tables from SQL Server.
func NewRawStoreRepository(db *database.DB, erp *sql.DB) RawStoreRepository {
	return &rawStoreRepository{db: db, erp: erp}
}

var _ RawStoreRepository = (*rawStoreRepository)(nil)

// rawTable derives a raw-store table name from source prefix and entity name.
func rawTable(prefix, entity string) string {
	return prefix + "_" + inflection.Plural(entity)
}

// wrapStructural classifies missing-table and missing-column driver errors as
// structural so the orchestrator can fail the right family chain.
func wrapStructural(err error, table string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 42P01 undefined_table, 42703 undefined_column
		if pgErr.Code == "42P01" || pgErr.Code == "42703" {
			return fmt.Errorf("raw table %s: %s: %w", table, pgErr.Message, apperrors.ErrStructural)
		}
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		// 208 invalid object name, 207 invalid column name
		if msErr.Number == 208 || msErr.Number == 207 {
			return fmt.Errorf("raw table %s: %s: %w", table, msErr.Message, apperrors.ErrStructural)
		}
	}
	return fmt.Errorf("read raw table %s: %w", table, err)
}

const rawCustomerColumns = "customer_id, first_name, last_name, gender, marital_status, email, city, country_code, birth_date, created_at, raw_offset"

func (r *rawStoreRepository) CRMCustomers(ctx context.Context) ([]models.RawCustomer, error) {
	return r.pgCustomers(ctx, rawTable("crm", "customer"))
}

func (r *rawStoreRepository) ERPCustomers(ctx context.Context) ([]models.RawCustomer, error) {
	table := rawTable("erp", "customer")
	if r.erp == nil {
		return r.pgCustomers(ctx, table)
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY raw_offset", rawCustomerColumns, table)
	rows, err := r.erp.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapStructural(err, table)
	}
	defer rows.Close()

	var out []models.RawCustomer
	for rows.Next() {
		var c models.RawCustomer
		var fields [10]sql.NullString
		if err := rows.Scan(&fields[0], &fields[1], &fields[2], &fields[3], &fields[4],
			&fields[5], &fields[6], &fields[7], &fields[8], &fields[9], &c.RawOffset); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		c.CustomerID = fields[0].String
		c.FirstName = fields[1].String
		c.LastName = fields[2].String
		c.Gender = fields[3].String
		c.MaritalStatus = fields[4].String
		c.Email = fields[5].String
		c.City = fields[6].String
		c.CountryCode = fields[7].String
		c.BirthDate = fields[8].String
		c.CreatedAt = fields[9].String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStructural(err, table)
	}
	return out, nil
}

func (r *rawStoreRepository) pgCustomers(ctx context.Context, table string) ([]models.RawCustomer, error) {
	query := fmt.Sprintf("SELECT %s FROM raw.%s ORDER BY raw_offset", rawCustomerColumns, table)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, wrapStructural(err, table)
	}
	defer rows.Close()

	var out []models.RawCustomer
	for rows.Next() {
		var c models.RawCustomer
		var fields [10]*string
		if err := rows.Scan(&fields[0], &fields[1], &fields[2], &fields[3], &fields[4],
			&fields[5], &fields[6], &fields[7], &fields[8], &fields[9], &c.RawOffset); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		c.CustomerID = deref(fields[0])
		c.FirstName = deref(fields[1])
		c.LastName = deref(fields[2])
		c.Gender = deref(fields[3])
		c.MaritalStatus = deref(fields[4])
		c.Email = deref(fields[5])
		c.City = deref(fields[6])
		c.CountryCode = deref(fields[7])
		c.BirthDate = deref(fields[8])
		c.CreatedAt = deref(fields[9])
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStructural(err, table)
	}
	return out, nil
}

const rawProductColumns = "product_key, product_name, standard_cost, list_price, line_code, start_date, created_at, raw_offset"

func (r *rawStoreRepository) ERPProducts(ctx context.Context) ([]models.RawProduct, error) {
	table := rawTable("erp", "product")

	if r.erp != nil {
		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY raw_offset", rawProductColumns, table)
		rows, err := r.erp.QueryContext(ctx, query)
		if err != nil {
			return nil, wrapStructural(err, table)
		}
		defer rows.Close()

		var out []models.RawProduct
		for rows.Next() {
			var p models.RawProduct
			var fields [7]sql.NullString
			if err := rows.Scan(&fields[0], &fields[1], &fields[2], &fields[3], &fields[4],
				&fields[5], &fields[6], &p.RawOffset); err != nil {
				return nil, fmt.Errorf("scan %s row: %w", table, err)
			}
			p.ProductKey = fields[0].String
			p.ProductName = fields[1].String
			p.StandardCost = fields[2].String
			p.ListPrice = fields[3].String
			p.LineCode = fields[4].String
			p.StartDate = fields[5].String
			p.CreatedAt = fields[6].String
			out = append(out, p)
		}
		if err := rows.Err(); err != nil {
			return nil, wrapStructural(err, table)
		}
		return out, nil
	}

	query := fmt.Sprintf("SELECT %s FROM raw.%s ORDER BY raw_offset", rawProductColumns, table)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, wrapStructural(err, table)
	}
	defer rows.Close()

	var out []models.RawProduct
	for rows.Next() {
		var p models.RawProduct
		var fields [7]*string
		if err := rows.Scan(&fields[0], &fields[1], &fields[2], &fields[3], &fields[4],
			&fields[5], &fields[6], &p.RawOffset); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		p.ProductKey = deref(fields[0])
		p.ProductName = deref(fields[1])
		p.StandardCost = deref(fields[2])
		p.ListPrice = deref(fields[3])
		p.LineCode = deref(fields[4])
		p.StartDate = deref(fields[5])
		p.CreatedAt = deref(fields[6])
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStructural(err, table)
	}
	return out, nil
}

func (r *rawStoreRepository) CRMProductExt(ctx context.Context) ([]models.RawProductExt, error) {
	const table = "crm_product_ext"
	query := fmt.Sprintf("SELECT product_key, subcategory_name, maintenance_flag, created_at, raw_offset FROM raw.%s ORDER BY raw_offset", table)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, wrapStructural(err, table)
	}
	defer rows.Close()

	var out []models.RawProductExt
	for rows.Next() {
		var e models.RawProductExt
		var fields [4]*string
		if err := rows.Scan(&fields[0], &fields[1], &fields[2], &fields[3], &e.RawOffset); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		e.ProductKey = deref(fields[0])
		e.SubcategoryName = deref(fields[1])
		e.MaintenanceFlag = deref(fields[2])
		e.CreatedAt = deref(fields[3])
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStructural(err, table)
	}
	return out, nil
}

func (r *rawStoreRepository) CRMSales(ctx context.Context) ([]models.RawSalesLine, error) {
	table := rawTable("crm", "sale")
	query := fmt.Sprintf(`SELECT order_number, line_number, customer_id, product_key,
		order_date, ship_date, due_date, quantity, unit_price, amount, created_at, raw_offset
		FROM raw.%s ORDER BY raw_offset`, table)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, wrapStructural(err, table)
	}
	defer rows.Close()

	var out []models.RawSalesLine
	for rows.Next() {
		var l models.RawSalesLine
		var fields [11]*string
		if err := rows.Scan(&fields[0], &fields[1], &fields[2], &fields[3], &fields[4], &fields[5],
			&fields[6], &fields[7], &fields[8], &fields[9], &fields[10], &l.RawOffset); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		l.OrderNumber = deref(fields[0])
		l.LineNumber = deref(fields[1])
		l.CustomerID = deref(fields[2])
		l.ProductKey = deref(fields[3])
		l.OrderDate = deref(fields[4])
		l.ShipDate = deref(fields[5])
		l.DueDate = deref(fields[6])
		l.Quantity = deref(fields[7])
		l.UnitPrice = deref(fields[8])
		l.Amount = deref(fields[9])
		l.CreatedAt = deref(fields[10])
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStructural(err, table)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
