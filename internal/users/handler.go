package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/platform/httpx"
	"github.com/atlas-ops/atlas-ops/internal/shared"
)

// Handler manages user directory endpoints.
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

// MountRoutes registers user routes. The caller mounts this subtree behind
// the authentication middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guards.RequireRole(access.RoleAdmin)).Get("/stats", h.handleStats)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDeactivate)
		r.With(h.guards.RequireRole(access.RoleAdmin)).Put("/role", h.handleUpdateRole)
	})
}

type listResponse struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal := access.PrincipalFromContext(r.Context())
	page := shared.PageRequestFromQuery(r)
	q := ListQuery{
		Role:       r.URL.Query().Get("role"),
		Department: r.URL.Query().Get("department"),
		Search:     r.URL.Query().Get("search"),
		Page:       page.Page,
		PerPage:    page.PerPage,
	}
	if raw := r.URL.Query().Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "isActive must be a boolean")
			return
		}
		q.IsActive = &active
	}

	users, total, err := h.service.List(r.Context(), principal, q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Users:      users,
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid user id")
		return
	}
	user, err := h.service.Get(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type updateRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=2"`
	Department *string `json:"department"`
	Phone      *string `json:"phone"`
	Avatar     *string `json:"avatar" validate:"omitempty,url"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid user id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Update(r.Context(), access.PrincipalFromContext(r.Context()), id, UpdateInput{
		Name:       req.Name,
		Department: req.Department,
		Phone:      req.Phone,
		Avatar:     req.Avatar,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid user id")
		return
	}
	err = h.service.Deactivate(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		if errors.Is(err, ErrSelfDeactivation) {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "cannot deactivate your own account")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("user deactivated", slog.Int64("user_id", id))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "user deactivated"})
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=employee manager admin"`
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid user id")
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.UpdateRole(r.Context(), access.PrincipalFromContext(r.Context()), id, access.Role(req.Role))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("user role changed",
		slog.Int64("user_id", id), slog.String("role", req.Role))
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
