package onboarding

import (
	"time"

	"github.com/atlas-ops/atlas-ops/internal/access"
)

// Template is a reusable onboarding checklist. Department-tagged templates
// are meant for one department; untagged ones apply organisation-wide.
type Template struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Department  string         `json:"department,omitempty"`
	Description string         `json:"description,omitempty"`
	IsActive    bool           `json:"isActive"`
	Tasks       []TemplateTask `json:"tasks"`
	CreatedBy   int64          `json:"createdBy"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Object is the relation snapshot used for authorization decisions.
func (t *Template) Object() access.Object {
	return access.Object{
		Type:       access.ResourceOnboardingTemplates,
		OwnerID:    t.CreatedBy,
		Department: t.Department,
	}
}

// TemplateTask is one checklist item of a template. DueOffsetDays counts
// from the instance start date.
type TemplateTask struct {
	ID            int64  `json:"id"`
	TemplateID    int64  `json:"templateId"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	DueOffsetDays int    `json:"dueOffsetDays"`
	SortOrder     int    `json:"sortOrder"`
}

// InstanceStatus enumerates the onboarding run states.
type InstanceStatus string

const (
	InstanceActive    InstanceStatus = "active"
	InstanceCompleted InstanceStatus = "completed"
	InstanceCancelled InstanceStatus = "cancelled"
)

// Instance is one employee's onboarding run, expanded from a template.
type Instance struct {
	ID          int64          `json:"id"`
	TemplateID  int64          `json:"templateId"`
	EmployeeID  int64          `json:"employeeId"`
	Status      InstanceStatus `json:"status"`
	StartDate   time.Time      `json:"startDate"`
	Progress    int            `json:"progress"`
	Tasks       []Task         `json:"tasks"`
	CreatedBy   int64          `json:"createdBy"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Object is the relation snapshot used for authorization decisions. The
// employee the run belongs to is the subject.
func (i *Instance) Object() access.Object {
	return access.Object{
		Type:      access.ResourceOnboardingInstances,
		SubjectID: i.EmployeeID,
		OwnerID:   i.CreatedBy,
	}
}

// OverdueInstance pairs an overdue run with the employee's contact details
// so the nightly scan can raise a chase notification.
type OverdueInstance struct {
	Instance
	EmployeeName  string `json:"employeeName"`
	EmployeeEmail string `json:"employeeEmail"`
	OverdueTasks  int    `json:"overdueTasks"`
}

// TaskStatus enumerates checklist item states.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Valid reports whether the status is a known task state.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

// Task is one checklist item of an instance.
type Task struct {
	ID          int64      `json:"id"`
	InstanceID  int64      `json:"instanceId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     time.Time  `json:"dueDate"`
	Status      TaskStatus `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	SortOrder   int        `json:"sortOrder"`
}

// ComputeProgress derives the completion percentage from the task states.
func ComputeProgress(tasks []Task) int {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Status == TaskCompleted {
			done++
		}
	}
	return done * 100 / len(tasks)
}

// TemplateInput carries a template create or update request.
type TemplateInput struct {
	Name        string
	Department  string
	Description string
	Tasks       []TemplateTaskInput
}

// TemplateTaskInput carries one checklist item of a template request.
type TemplateTaskInput struct {
	Title         string
	Description   string
	DueOffsetDays int
}

// InstanceListQuery carries the caller-supplied instance list filters.
type InstanceListQuery struct {
	Status  string
	Page    int
	PerPage int
}

// Stats aggregates the onboarding pipeline for the dashboard.
type Stats struct {
	Active          int     `json:"active"`
	Completed       int     `json:"completed"`
	AverageProgress float64 `json:"averageProgress"`
	OverdueTasks    int     `json:"overdueTasks"`
	DueSoonTasks    int     `json:"dueSoonTasks"`
}
