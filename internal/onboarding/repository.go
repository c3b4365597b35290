package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/platform/db"
	"github.com/atlas-ops/atlas-ops/internal/shared"
)

// Repository provides PostgreSQL backed persistence for templates and
// instances.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const templateColumns = `id, name, department, description, is_active, created_by, created_at, updated_at`
const instanceColumns = `id, template_id, employee_id, status, start_date, progress, created_by,
	completed_at, created_at, updated_at`

// ListTemplates returns templates narrowed by the access filter.
func (r *Repository) ListTemplates(ctx context.Context, filter access.Filter) ([]Template, error) {
	var where string
	var args []any
	switch filter.Kind {
	case access.FilterAll:
	case access.FilterDepartment:
		if filter.Department == "" {
			where = ` WHERE department = ''`
		} else {
			where = ` WHERE (department = '' OR department = $1)`
			args = append(args, filter.Department)
		}
	default:
		where = ` WHERE FALSE`
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+templateColumns+` FROM onboarding_templates`+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range templates {
		tasks, err := r.templateTasks(ctx, templates[i].ID)
		if err != nil {
			return nil, err
		}
		templates[i].Tasks = tasks
	}
	return templates, nil
}

// GetTemplate fetches a template with its checklist.
func (r *Repository) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM onboarding_templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	t.Tasks, err = r.templateTasks(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) templateTasks(ctx context.Context, templateID int64) ([]TemplateTask, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, template_id, title, description, due_offset_days, sort_order
		 FROM onboarding_template_tasks WHERE template_id = $1 ORDER BY sort_order`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []TemplateTask
	for rows.Next() {
		var t TemplateTask
		if err := rows.Scan(&t.ID, &t.TemplateID, &t.Title, &t.Description, &t.DueOffsetDays, &t.SortOrder); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateTemplate inserts a template with its checklist in one transaction.
func (r *Repository) CreateTemplate(ctx context.Context, in TemplateInput, createdBy int64) (*Template, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	template := &Template{
		Name:        in.Name,
		Department:  in.Department,
		Description: in.Description,
		IsActive:    true,
		CreatedBy:   createdBy,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO onboarding_templates (name, department, description, is_active, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, TRUE, $4, $5, $5) RETURNING id, created_at, updated_at`,
		in.Name, in.Department, in.Description, createdBy, now,
	).Scan(&template.ID, &template.CreatedAt, &template.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for i, task := range in.Tasks {
		var t TemplateTask
		err = tx.QueryRow(ctx,
			`INSERT INTO onboarding_template_tasks (template_id, title, description, due_offset_days, sort_order)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			template.ID, task.Title, task.Description, task.DueOffsetDays, i,
		).Scan(&t.ID)
		if err != nil {
			return nil, err
		}
		t.TemplateID = template.ID
		t.Title, t.Description, t.DueOffsetDays, t.SortOrder = task.Title, task.Description, task.DueOffsetDays, i
		template.Tasks = append(template.Tasks, t)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return template, nil
}

// UpdateTemplate replaces a template's fields and checklist.
func (r *Repository) UpdateTemplate(ctx context.Context, id int64, in TemplateInput) (*Template, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE onboarding_templates SET name = $1, department = $2, description = $3, updated_at = NOW()
		 WHERE id = $4`, in.Name, in.Department, in.Description, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM onboarding_template_tasks WHERE template_id = $1`, id); err != nil {
		return nil, err
	}
	for i, task := range in.Tasks {
		_, err := tx.Exec(ctx,
			`INSERT INTO onboarding_template_tasks (template_id, title, description, due_offset_days, sort_order)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, task.Title, task.Description, task.DueOffsetDays, i)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetTemplate(ctx, id)
}

// DeactivateTemplate marks a template inactive.
func (r *Repository) DeactivateTemplate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE onboarding_templates SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteTemplate removes a template and its checklist.
func (r *Repository) DeleteTemplate(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM onboarding_template_tasks WHERE template_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM onboarding_templates WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// CountActiveInstances counts non-terminal instances referencing a template.
func (r *Repository) CountActiveInstances(ctx context.Context, templateID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM onboarding_instances WHERE template_id = $1 AND status = 'active'`,
		templateID).Scan(&count)
	return count, err
}

// ListInstances returns instances narrowed by the access filter.
func (r *Repository) ListInstances(ctx context.Context, q InstanceListQuery, filter access.Filter) ([]Instance, int, error) {
	var clauses []string
	var args []any
	next := func() int { return len(args) + 1 }

	switch filter.Kind {
	case access.FilterAll:
	case access.FilterSubject:
		clauses = append(clauses, fmt.Sprintf("employee_id = $%d", next()))
		args = append(args, filter.UserID)
	case access.FilterMembers:
		clauses = append(clauses, fmt.Sprintf("employee_id = ANY($%d)", next()))
		args = append(args, filter.MemberIDs)
	default:
		clauses = append(clauses, "FALSE")
	}
	if q.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", next()))
		args = append(args, q.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM onboarding_instances`+where, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT %s FROM onboarding_instances%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		instanceColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var instances []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, 0, err
		}
		instances = append(instances, inst)
	}
	return instances, total, rows.Err()
}

// GetInstance fetches an instance with its tasks.
func (r *Repository) GetInstance(ctx context.Context, id int64) (*Instance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM onboarding_instances WHERE id = $1`, id)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	inst.Tasks, err = r.instanceTasks(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *Repository) instanceTasks(ctx context.Context, instanceID int64) ([]Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, instance_id, title, description, due_date, status, completed_at, sort_order
		 FROM onboarding_tasks WHERE instance_id = $1 ORDER BY sort_order`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.InstanceID, &t.Title, &t.Description, &t.DueDate,
			&t.Status, &t.CompletedAt, &t.SortOrder); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// HasActiveInstance reports whether the employee already has a running
// onboarding.
func (r *Repository) HasActiveInstance(ctx context.Context, employeeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM onboarding_instances WHERE employee_id = $1 AND status = 'active')`,
		employeeID).Scan(&exists)
	return exists, err
}

// CreateInstance expands a template into a run for the employee. Tasks get
// due dates offset from the start date.
func (r *Repository) CreateInstance(ctx context.Context, template *Template, employeeID, createdBy int64, startDate time.Time) (*Instance, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	inst := &Instance{
		TemplateID: template.ID,
		EmployeeID: employeeID,
		Status:     InstanceActive,
		StartDate:  startDate,
		CreatedBy:  createdBy,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO onboarding_instances (template_id, employee_id, status, start_date, progress, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $6) RETURNING id, created_at, updated_at`,
		template.ID, employeeID, InstanceActive, startDate, createdBy, now,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, tpl := range template.Tasks {
		task := Task{
			InstanceID:  inst.ID,
			Title:       tpl.Title,
			Description: tpl.Description,
			DueDate:     startDate.AddDate(0, 0, tpl.DueOffsetDays),
			Status:      TaskPending,
			SortOrder:   tpl.SortOrder,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO onboarding_tasks (instance_id, title, description, due_date, status, sort_order)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			task.InstanceID, task.Title, task.Description, task.DueDate, task.Status, task.SortOrder,
		).Scan(&task.ID)
		if err != nil {
			return nil, err
		}
		inst.Tasks = append(inst.Tasks, task)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return inst, nil
}

// UpdateTaskStatus moves a task and recomputes the instance progress in the
// same transaction. A fully completed checklist completes the instance.
func (r *Repository) UpdateTaskStatus(ctx context.Context, instanceID, taskID int64, status TaskStatus) (*Instance, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var completedAt any
	if status == TaskCompleted {
		completedAt = time.Now()
	}
	tag, err := tx.Exec(ctx,
		`UPDATE onboarding_tasks SET status = $1, completed_at = $2 WHERE id = $3 AND instance_id = $4`,
		status, completedAt, taskID, instanceID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}

	var total, done int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
		 FROM onboarding_tasks WHERE instance_id = $1`, instanceID).Scan(&total, &done)
	if err != nil {
		return nil, err
	}
	progress := 0
	if total > 0 {
		progress = done * 100 / total
	}
	if progress == 100 {
		_, err = tx.Exec(ctx,
			`UPDATE onboarding_instances SET progress = $1, status = 'completed', completed_at = NOW(), updated_at = NOW()
			 WHERE id = $2`, progress, instanceID)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE onboarding_instances SET progress = $1, updated_at = NOW() WHERE id = $2`,
			progress, instanceID)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetInstance(ctx, instanceID)
}

// CancelInstance marks a run cancelled.
func (r *Repository) CancelInstance(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE onboarding_instances SET status = 'cancelled', updated_at = NOW()
		 WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}

// InstanceCounts returns the active and completed run counts plus the
// average progress of active runs.
func (r *Repository) InstanceCounts(ctx context.Context) (active, completed int, avgProgress float64, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE status = 'active'),
		        COUNT(*) FILTER (WHERE status = 'completed'),
		        COALESCE(AVG(progress) FILTER (WHERE status = 'active'), 0)
		 FROM onboarding_instances`).Scan(&active, &completed, &avgProgress)
	return active, completed, avgProgress, err
}

// TaskDueCounts returns the number of open tasks past due and due within
// the window, over active instances only.
func (r *Repository) TaskDueCounts(ctx context.Context, window time.Duration) (overdue, dueSoon int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE t.due_date < NOW()),
		        COUNT(*) FILTER (WHERE t.due_date BETWEEN NOW() AND NOW() + $1)
		 FROM onboarding_tasks t
		 JOIN onboarding_instances i ON i.id = t.instance_id
		 WHERE i.status = 'active' AND t.status <> 'completed'`, window).Scan(&overdue, &dueSoon)
	return overdue, dueSoon, err
}

// OverdueInstances lists active runs with at least one open task past due,
// together with the employee's contact details and the open overdue task
// count. The overdue scan job reports and notifies on it.
func (r *Repository) OverdueInstances(ctx context.Context) ([]OverdueInstance, error) {
	query := `SELECT ` + prefixColumns("i", instanceColumns) + `, u.name, u.email,
	                 COUNT(*) FILTER (WHERE t.status <> 'completed' AND t.due_date < NOW())
	          FROM onboarding_instances i
	          JOIN onboarding_tasks t ON t.instance_id = i.id
	          JOIN users u ON u.id = i.employee_id
	          WHERE i.status = 'active'
	          GROUP BY i.id, u.name, u.email
	          HAVING COUNT(*) FILTER (WHERE t.status <> 'completed' AND t.due_date < NOW()) > 0`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []OverdueInstance
	for rows.Next() {
		var inst OverdueInstance
		err := rows.Scan(&inst.ID, &inst.TemplateID, &inst.EmployeeID, &inst.Status,
			&inst.StartDate, &inst.Progress, &inst.CreatedBy, &inst.CompletedAt,
			&inst.CreatedAt, &inst.UpdatedAt, &inst.EmployeeName, &inst.EmployeeEmail,
			&inst.OverdueTasks)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// UserSnapshot returns the department and active flag of a user. It backs
// instance creation without pulling in the users package.
func (r *Repository) UserSnapshot(ctx context.Context, userID int64) (string, bool, error) {
	var department string
	var active bool
	err := r.pool.QueryRow(ctx,
		`SELECT department, is_active FROM users WHERE id = $1`, userID).Scan(&department, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, shared.ErrNotFound
		}
		return "", false, err
	}
	return department, active, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.Name, &t.Department, &t.Description, &t.IsActive,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanInstance(row pgx.Row) (Instance, error) {
	var i Instance
	err := row.Scan(&i.ID, &i.TemplateID, &i.EmployeeID, &i.Status, &i.StartDate, &i.Progress,
		&i.CreatedBy, &i.CompletedAt, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}
