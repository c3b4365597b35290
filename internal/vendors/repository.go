package vendors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-ops/atlas-ops/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the vendor registry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const vendorColumns = `id, name, category, email, phone, website, address, notes, is_active,
	created_by, created_at, updated_at`

// List returns vendors matching the query, plus the total match count.
func (r *Repository) List(ctx context.Context, q ListQuery) ([]Vendor, int, error) {
	var clauses []string
	var args []any
	next := func() int { return len(args) + 1 }

	if q.Category != "" {
		clauses = append(clauses, fmt.Sprintf("category = $%d", next()))
		args = append(args, q.Category)
	}
	if q.IsActive != nil {
		clauses = append(clauses, fmt.Sprintf("is_active = $%d", next()))
		args = append(args, *q.IsActive)
	}
	if q.Search != "" {
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", next(), next()+1))
		args = append(args, "%"+q.Search+"%", "%"+q.Search+"%")
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendors`+where, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT %s FROM vendors%s ORDER BY name LIMIT $%d OFFSET $%d`,
		vendorColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var vendors []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, 0, err
		}
		vendors = append(vendors, v)
	}
	return vendors, total, rows.Err()
}

// Get fetches a vendor by primary key.
func (r *Repository) Get(ctx context.Context, id int64) (*Vendor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id)
	v, err := scanVendor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// Create inserts a new vendor.
func (r *Repository) Create(ctx context.Context, in VendorInput, createdBy int64) (*Vendor, error) {
	query := `INSERT INTO vendors
	          (name, category, email, phone, website, address, notes, is_active, created_by, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9, $9)
	          RETURNING id, created_at, updated_at`
	now := time.Now()
	vendor := &Vendor{
		Name:      in.Name,
		Category:  in.Category,
		Email:     in.Email,
		Phone:     in.Phone,
		Website:   in.Website,
		Address:   in.Address,
		Notes:     in.Notes,
		IsActive:  true,
		CreatedBy: createdBy,
	}
	err := r.pool.QueryRow(ctx, query,
		vendor.Name, vendor.Category, vendor.Email, vendor.Phone, vendor.Website,
		vendor.Address, vendor.Notes, createdBy, now,
	).Scan(&vendor.ID, &vendor.CreatedAt, &vendor.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return vendor, nil
}

// Update replaces the vendor profile fields.
func (r *Repository) Update(ctx context.Context, id int64, in VendorInput) (*Vendor, error) {
	query := `UPDATE vendors
	          SET name = $1, category = $2, email = $3, phone = $4, website = $5,
	              address = $6, notes = $7, updated_at = NOW()
	          WHERE id = $8 RETURNING ` + vendorColumns
	v, err := scanVendor(r.pool.QueryRow(ctx, query,
		in.Name, in.Category, in.Email, in.Phone, in.Website, in.Address, in.Notes, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// Deactivate soft-deletes a vendor.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE vendors SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddContact attaches a contact to the vendor.
func (r *Repository) AddContact(ctx context.Context, c *Contact) (*Contact, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO vendor_contacts (vendor_id, name, role, email, phone)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.VendorID, c.Name, c.Role, c.Email, c.Phone,
	).Scan(&c.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListContacts returns the contacts of a vendor.
func (r *Repository) ListContacts(ctx context.Context, vendorID int64) ([]Contact, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, vendor_id, name, role, email, phone FROM vendor_contacts
		 WHERE vendor_id = $1 ORDER BY name`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.VendorID, &c.Name, &c.Role, &c.Email, &c.Phone); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// DeleteContact removes a vendor contact.
func (r *Repository) DeleteContact(ctx context.Context, vendorID, contactID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM vendor_contacts WHERE id = $1 AND vendor_id = $2`, contactID, vendorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddContract attaches a contract to the vendor.
func (r *Repository) AddContract(ctx context.Context, c *Contract) (*Contract, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO vendor_contracts (vendor_id, title, value, start_date, end_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, created_at`,
		c.VendorID, c.Title, c.Value, c.StartDate, c.EndDate,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListContracts returns the contracts of a vendor, newest first.
func (r *Repository) ListContracts(ctx context.Context, vendorID int64) ([]Contract, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, vendor_id, title, value, start_date, end_date, created_at
		 FROM vendor_contracts WHERE vendor_id = $1 ORDER BY created_at DESC`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []Contract
	for rows.Next() {
		var c Contract
		if err := rows.Scan(&c.ID, &c.VendorID, &c.Title, &c.Value, &c.StartDate, &c.EndDate, &c.CreatedAt); err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// CountVendors returns the total and active vendor counts.
func (r *Repository) CountVendors(ctx context.Context) (total, active int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM vendors`).Scan(&total, &active)
	return total, active, err
}

// CountByCategory groups the active vendor count by category.
func (r *Repository) CountByCategory(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT category, COUNT(*) FROM vendors WHERE is_active = TRUE AND category <> '' GROUP BY category`)
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

// ContractTotals returns the summed contract value and the number of
// contracts ending within the window.
func (r *Repository) ContractTotals(ctx context.Context, window time.Duration) (value float64, expiring int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(value), 0),
		        COUNT(*) FILTER (WHERE end_date IS NOT NULL AND end_date BETWEEN NOW() AND NOW() + $1)
		 FROM vendor_contracts`, window).Scan(&value, &expiring)
	return value, expiring, err
}

func scanVendor(row pgx.Row) (Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.Name, &v.Category, &v.Email, &v.Phone, &v.Website, &v.Address,
		&v.Notes, &v.IsActive, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}
