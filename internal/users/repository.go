package users

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

// Repository provides PostgreSQL backed persistence. It also implements the
// access.DirectoryPort and access.AdminCounter lookups the access core
// depends on.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, department, phone, avatar, is_active, created_at, updated_at`

// List returns users matching the caller-supplied query narrowed by the
// access filter, plus the total match count.
func (r *Repository) List(ctx context.Context, q ListQuery, filter access.Filter) ([]User, int, error) {
	where, args := buildListWhere(q, filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM users` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY name LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)+1, len(args)+2)
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func buildListWhere(q ListQuery, filter access.Filter) (string, []any) {
	var clauses []string
	var args []any
	next := func() int { return len(args) + 1 }

	switch filter.Kind {
	case access.FilterAll:
	case access.FilterSubject, access.FilterSelf:
		clauses = append(clauses, fmt.Sprintf("id = $%d", next()))
		args = append(args, filter.UserID)
	case access.FilterMembers:
		clauses = append(clauses, fmt.Sprintf("id = ANY($%d)", next()))
		args = append(args, filter.MemberIDs)
	default:
		clauses = append(clauses, "FALSE")
	}

	if q.Role != "" {
		clauses = append(clauses, fmt.Sprintf("role = $%d", next()))
		args = append(args, q.Role)
	}
	if q.Department != "" {
		clauses = append(clauses, fmt.Sprintf("department = $%d", next()))
		args = append(args, q.Department)
	}
	if q.IsActive != nil {
		clauses = append(clauses, fmt.Sprintf("is_active = $%d", next()))
		args = append(args, *q.IsActive)
	}
	if q.Search != "" {
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", next(), next()+1))
		args = append(args, "%"+q.Search+"%", "%"+q.Search+"%")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Get fetches a user by primary key.
func (r *Repository) Get(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Update applies the non-nil fields of in and returns the updated record.
func (r *Repository) Update(ctx context.Context, id int64, in UpdateInput) (*User, error) {
	var sets []string
	var args []any
	next := func() int { return len(args) + 1 }

	if in.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", next()))
		args = append(args, *in.Name)
	}
	if in.Department != nil {
		sets = append(sets, fmt.Sprintf("department = $%d", next()))
		args = append(args, *in.Department)
	}
	if in.Phone != nil {
		sets = append(sets, fmt.Sprintf("phone = $%d", next()))
		args = append(args, *in.Phone)
	}
	if in.Avatar != nil {
		sets = append(sets, fmt.Sprintf("avatar = $%d", next()))
		args = append(args, *in.Avatar)
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", next()))
	args = append(args, time.Now())

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), next(), userColumns)
	args = append(args, id)

	u, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Deactivate soft-deletes a user. Records are never physically removed.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateRoleGuarded persists a role change. The admin count is re-checked
// inside the UPDATE so two concurrent demotions cannot both observe a spare
// admin and together empty the admin set.
func (r *Repository) UpdateRoleGuarded(ctx context.Context, id int64, newRole access.Role) (*User, error) {
	query := `UPDATE users SET role = $1, updated_at = NOW()
	          WHERE id = $2
	            AND (role <> 'admin' OR $1 = 'admin'
	                 OR (SELECT COUNT(*) FROM users WHERE role = 'admin' AND is_active) > 1)
	          RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, query, string(newRole), id))
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	// Guard clause or missing row; disambiguate.
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, access.ErrLastAdmin
}

// ActiveMemberIDs returns the ids of active users in the department. It
// implements access.DirectoryPort for team scoping.
func (r *Repository) ActiveMemberIDs(ctx context.Context, department string) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM users WHERE department = $1 AND is_active = TRUE`, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountActiveAdmins implements access.AdminCounter.
func (r *Repository) CountActiveAdmins(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE role = 'admin' AND is_active = TRUE`).Scan(&count)
	return count, err
}

// CountUsers returns the total and active user counts.
func (r *Repository) CountUsers(ctx context.Context) (total, active int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM users`).Scan(&total, &active)
	return total, active, err
}

// CountByRole groups the user count by role.
func (r *Repository) CountByRole(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
}

// CountByDepartment groups the active user count by department.
func (r *Repository) CountByDepartment(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx,
		`SELECT department, COUNT(*) FROM users WHERE is_active = TRUE AND department <> '' GROUP BY department`)
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

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Department, &u.Phone, &u.Avatar,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

var _ access.DirectoryPort = (*Repository)(nil)
var _ access.AdminCounter = (*Repository)(nil)
