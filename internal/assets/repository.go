package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the asset register.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assetColumns = `id, name, category, serial_number, status, purchase_price, purchase_date,
	warranty_expiry, depreciation_rate, location, description, created_by, assigned_to,
	created_at, updated_at`

// List returns assets matching the query narrowed by the access filter,
// plus the total match count.
func (r *Repository) List(ctx context.Context, q ListQuery, filter access.Filter) ([]Asset, int, error) {
	where, args := buildListWhere(q, filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM assets`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf(`SELECT %s FROM assets%s ORDER BY name LIMIT $%d OFFSET $%d`,
		assetColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, err
		}
		assets = append(assets, a)
	}
	return assets, total, rows.Err()
}

func buildListWhere(q ListQuery, filter access.Filter) (string, []any) {
	var clauses []string
	var args []any
	next := func() int { return len(args) + 1 }

	switch filter.Kind {
	case access.FilterAll:
	case access.FilterSelf:
		clauses = append(clauses, fmt.Sprintf("(created_by = $%d OR assigned_to = $%d)", next(), next()+1))
		args = append(args, filter.UserID, filter.UserID)
	case access.FilterAssignee:
		clauses = append(clauses, fmt.Sprintf("assigned_to = $%d", next()))
		args = append(args, filter.UserID)
	case access.FilterMembers:
		clauses = append(clauses, fmt.Sprintf(
			"(assigned_to = ANY($%d) OR (assigned_to IS NULL AND created_by = ANY($%d)))", next(), next()+1))
		args = append(args, filter.MemberIDs, filter.MemberIDs)
	default:
		clauses = append(clauses, "FALSE")
	}

	if q.Category != "" {
		clauses = append(clauses, fmt.Sprintf("category = $%d", next()))
		args = append(args, q.Category)
	}
	if q.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", next()))
		args = append(args, q.Status)
	}
	if q.Search != "" {
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR serial_number ILIKE $%d)", next(), next()+1))
		args = append(args, "%"+q.Search+"%", "%"+q.Search+"%")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Get fetches an asset by primary key.
func (r *Repository) Get(ctx context.Context, id int64) (*Asset, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create inserts a new asset owned by createdBy.
func (r *Repository) Create(ctx context.Context, in CreateInput, createdBy int64) (*Asset, error) {
	query := `INSERT INTO assets
	          (name, category, serial_number, status, purchase_price, purchase_date,
	           warranty_expiry, depreciation_rate, location, description, created_by, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	          RETURNING id, created_at, updated_at`
	now := time.Now()
	asset := &Asset{
		Name:             in.Name,
		Category:         in.Category,
		SerialNumber:     in.SerialNumber,
		Status:           StatusAvailable,
		PurchasePrice:    in.PurchasePrice,
		PurchaseDate:     in.PurchaseDate,
		WarrantyExpiry:   in.WarrantyExpiry,
		DepreciationRate: in.DepreciationRate,
		Location:         in.Location,
		Description:      in.Description,
		CreatedBy:        createdBy,
	}
	err := r.pool.QueryRow(ctx, query,
		asset.Name, asset.Category, asset.SerialNumber, asset.Status, asset.PurchasePrice,
		asset.PurchaseDate, asset.WarrantyExpiry, asset.DepreciationRate, asset.Location,
		asset.Description, createdBy, now,
	).Scan(&asset.ID, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// Update applies the non-nil fields of in and returns the updated record.
func (r *Repository) Update(ctx context.Context, id int64, in UpdateInput) (*Asset, error) {
	var sets []string
	var args []any
	next := func() int { return len(args) + 1 }

	set := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next()))
		args = append(args, value)
	}
	if in.Name != nil {
		set("name", *in.Name)
	}
	if in.Category != nil {
		set("category", *in.Category)
	}
	if in.SerialNumber != nil {
		set("serial_number", *in.SerialNumber)
	}
	if in.Status != nil {
		set("status", *in.Status)
	}
	if in.PurchasePrice != nil {
		set("purchase_price", *in.PurchasePrice)
	}
	if in.PurchaseDate != nil {
		set("purchase_date", *in.PurchaseDate)
	}
	if in.WarrantyExpiry != nil {
		set("warranty_expiry", *in.WarrantyExpiry)
	}
	if in.DepreciationRate != nil {
		set("depreciation_rate", *in.DepreciationRate)
	}
	if in.Location != nil {
		set("location", *in.Location)
	}
	if in.Description != nil {
		set("description", *in.Description)
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}
	set("updated_at", time.Now())

	query := fmt.Sprintf(`UPDATE assets SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), next(), assetColumns)
	args = append(args, id)

	a, err := scanAsset(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Retire soft-deletes an asset and clears its assignment.
func (r *Repository) Retire(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assets SET status = $1, assigned_to = NULL, updated_at = NOW() WHERE id = $2`,
		StatusRetired, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetAssignee assigns the asset to userID (nil clears) and moves the
// lifecycle status accordingly.
func (r *Repository) SetAssignee(ctx context.Context, id int64, userID *int64) (*Asset, error) {
	status := StatusAvailable
	if userID != nil {
		status = StatusAssigned
	}
	query := `UPDATE assets SET assigned_to = $1, status = $2, updated_at = NOW()
	          WHERE id = $3 RETURNING ` + assetColumns
	a, err := scanAsset(r.pool.QueryRow(ctx, query, userID, status, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// UserSnapshot returns the department and active flag of a user. It backs
// assignment validation without pulling in the users package.
func (r *Repository) UserSnapshot(ctx context.Context, userID int64) (string, bool, error) {
	var department string
	var active bool
	err := r.pool.QueryRow(ctx,
		`SELECT department, is_active FROM users WHERE id = $1`, userID,
	).Scan(&department, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, shared.ErrNotFound
		}
		return "", false, err
	}
	return department, active, nil
}

// AddMaintenance appends a maintenance record to the asset history.
func (r *Repository) AddMaintenance(ctx context.Context, rec *MaintenanceRecord) (*MaintenanceRecord, error) {
	query := `INSERT INTO asset_maintenance (asset_id, description, cost, performed_by, performed_at, created_at)
	          VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		rec.AssetID, rec.Description, rec.Cost, rec.PerformedBy, rec.PerformedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListMaintenance returns the maintenance history of an asset, newest first.
func (r *Repository) ListMaintenance(ctx context.Context, assetID int64) ([]MaintenanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, asset_id, description, cost, performed_by, performed_at, created_at
		 FROM asset_maintenance WHERE asset_id = $1 ORDER BY performed_at DESC`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MaintenanceRecord
	for rows.Next() {
		var rec MaintenanceRecord
		if err := rows.Scan(&rec.ID, &rec.AssetID, &rec.Description, &rec.Cost,
			&rec.PerformedBy, &rec.PerformedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByStatus groups the asset count by lifecycle status.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx, `SELECT status, COUNT(*) FROM assets GROUP BY status`)
}

// CountByCategory groups the non-retired asset count by category.
func (r *Repository) CountByCategory(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx,
		`SELECT category, COUNT(*) FROM assets WHERE status <> 'retired' GROUP BY category`)
}

// Totals returns the non-retired asset count, the summed purchase value and
// the number of warranties expiring within the window.
func (r *Repository) Totals(ctx context.Context, warrantyWindow time.Duration) (total int, value float64, expiring int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(purchase_price), 0),
		        COUNT(*) FILTER (WHERE warranty_expiry IS NOT NULL
		                           AND warranty_expiry BETWEEN NOW() AND NOW() + $1)
		 FROM assets WHERE status <> 'retired'`,
		warrantyWindow,
	).Scan(&total, &value, &expiring)
	return total, value, expiring, err
}

// ExpiringWarranties lists non-retired assets whose warranty ends within
// the window. The warranty scan job reports on it.
func (r *Repository) ExpiringWarranties(ctx context.Context, window time.Duration) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets
	          WHERE status <> 'retired' AND warranty_expiry IS NOT NULL
	            AND warranty_expiry BETWEEN NOW() AND NOW() + $1
	          ORDER BY warranty_expiry`
	rows, err := r.pool.Query(ctx, query, window)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (r *Repository) countGrouped(ctx context.Context, query string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		out[key] = count
	}
	return out, rows.Err()
}

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.Name, &a.Category, &a.SerialNumber, &a.Status, &a.PurchasePrice,
		&a.PurchaseDate, &a.WarrantyExpiry, &a.DepreciationRate, &a.Location, &a.Description,
		&a.CreatedBy, &a.AssignedTo, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
