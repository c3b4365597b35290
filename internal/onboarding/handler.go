package onboarding

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/platform/httpx"
	"github.com/atlas-ops/atlas-ops/internal/shared"
)

// Handler manages onboarding endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guards    access.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guards access.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guards: guards, validator: validator.New()}
}

// MountRoutes registers onboarding routes. The caller mounts this subtree
// behind the authentication middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guards.RequireMinRole(access.RoleManager)).Get("/stats", h.handleStats)

	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.handleListTemplates)
		r.With(h.guards.RequireRole(access.RoleAdmin)).Post("/", h.handleCreateTemplate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetTemplate)
			r.With(h.guards.RequireRole(access.RoleAdmin)).Put("/", h.handleUpdateTemplate)
			r.With(h.guards.RequireRole(access.RoleAdmin)).Delete("/", h.handleDeleteTemplate)
		})
	})

	r.Route("/instances", func(r chi.Router) {
		r.Get("/", h.handleListInstances)
		r.With(h.guards.RequireMinRole(access.RoleManager)).Post("/", h.handleStartInstance)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetInstance)
			r.Put("/tasks/{taskID}", h.handleUpdateTask)
			r.With(h.guards.RequireMinRole(access.RoleManager)).Post("/cancel", h.handleCancelInstance)
		})
	})
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context(), access.PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if templates == nil {
		templates = []Template{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid template id")
		return
	}
	template, err := h.service.GetTemplate(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, template)
}

type templateTaskRequest struct {
	Title         string `json:"title" validate:"required,min=2"`
	Description   string `json:"description"`
	DueOffsetDays int    `json:"dueOffsetDays" validate:"gte=0,lte=365"`
}

type templateRequest struct {
	Name        string                `json:"name" validate:"required,min=2"`
	Department  string                `json:"department"`
	Description string                `json:"description"`
	Tasks       []templateTaskRequest `json:"tasks" validate:"required,min=1,dive"`
}

func (req templateRequest) toInput() TemplateInput {
	in := TemplateInput{
		Name:        req.Name,
		Department:  req.Department,
		Description: req.Description,
	}
	for _, t := range req.Tasks {
		in.Tasks = append(in.Tasks, TemplateTaskInput{
			Title:         t.Title,
			Description:   t.Description,
			DueOffsetDays: t.DueOffsetDays,
		})
	}
	return in
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	template, err := h.service.CreateTemplate(r.Context(), access.PrincipalFromContext(r.Context()), req.toInput())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("onboarding template created", slog.Int64("template_id", template.ID))
	httpx.JSON(w, http.StatusCreated, template)
}

func (h *Handler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid template id")
		return
	}
	var req templateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	template, err := h.service.UpdateTemplate(r.Context(), access.PrincipalFromContext(r.Context()), id, req.toInput())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, template)
}

func (h *Handler) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid template id")
		return
	}
	deleted, err := h.service.DeleteTemplate(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	message := "template deactivated, active instances still reference it"
	if deleted {
		message = "template deleted"
	}
	h.logger.Info("onboarding template removed",
		slog.Int64("template_id", id), slog.Bool("deleted", deleted))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": message})
}

type instanceListResponse struct {
	Instances  []Instance        `json:"instances"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleListInstances(w http.ResponseWriter, r *http.Request) {
	page := shared.PageRequestFromQuery(r)
	q := InstanceListQuery{
		Status:  r.URL.Query().Get("status"),
		Page:    page.Page,
		PerPage: page.PerPage,
	}
	instances, total, err := h.service.ListInstances(r.Context(), access.PrincipalFromContext(r.Context()), q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if instances == nil {
		instances = []Instance{}
	}
	httpx.JSON(w, http.StatusOK, instanceListResponse{
		Instances:  instances,
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid instance id")
		return
	}
	inst, err := h.service.GetInstance(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inst)
}

type startInstanceRequest struct {
	TemplateID int64  `json:"templateId" validate:"required,gt=0"`
	EmployeeID int64  `json:"employeeId" validate:"required,gt=0"`
	StartDate  string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) handleStartInstance(w http.ResponseWriter, r *http.Request) {
	var req startInstanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var startDate time.Time
	if req.StartDate != "" {
		startDate, _ = time.Parse("2006-01-02", req.StartDate)
	}
	inst, err := h.service.StartInstance(r.Context(), access.PrincipalFromContext(r.Context()), req.TemplateID, req.EmployeeID, startDate)
	if err != nil {
		switch {
		case errors.Is(err, ErrActiveInstanceExists):
			httpx.Problem(w, http.StatusConflict, "Conflict", "employee already has an active onboarding")
		case errors.Is(err, ErrEmployeeInactive):
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "employee is not active")
		case errors.Is(err, ErrTemplateInactive):
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "template is not active")
		default:
			httpx.RespondError(w, err)
		}
		return
	}
	h.logger.Info("onboarding started",
		slog.Int64("instance_id", inst.ID), slog.Int64("employee_id", inst.EmployeeID))
	httpx.JSON(w, http.StatusCreated, inst)
}

type updateTaskRequest struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress completed"`
}

func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid instance id")
		return
	}
	taskID, err := pathID(r, "taskID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid task id")
		return
	}
	var req updateTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inst, err := h.service.UpdateTask(r.Context(), access.PrincipalFromContext(r.Context()), id, taskID, TaskStatus(req.Status))
	if err != nil {
		if errors.Is(err, ErrInstanceClosed) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "instance is no longer active")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inst)
}

func (h *Handler) handleCancelInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid instance id")
		return
	}
	if err := h.service.CancelInstance(r.Context(), access.PrincipalFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("onboarding cancelled", slog.Int64("instance_id", id))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "onboarding cancelled"})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func pathID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}
