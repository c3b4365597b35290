package assets

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

// Handler manages asset register endpoints.
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

// MountRoutes registers asset routes behind the authentication middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guards.RequireMinRole(access.RoleManager)).Get("/stats", h.handleStats)
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleRetire)
		r.Post("/assign", h.handleAssign)
		r.Post("/unassign", h.handleUnassign)
		r.Get("/tag", h.handleTag)
		r.Get("/maintenance", h.handleMaintenanceHistory)
		r.Post("/maintenance", h.handleAddMaintenance)
	})
}

type listResponse struct {
	Assets     []Asset           `json:"assets"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal := access.PrincipalFromContext(r.Context())
	page := shared.PageRequestFromQuery(r)
	q := ListQuery{
		Category: r.URL.Query().Get("category"),
		Status:   r.URL.Query().Get("status"),
		Search:   r.URL.Query().Get("search"),
		Page:     page.Page,
		PerPage:  page.PerPage,
	}
	assets, total, err := h.service.List(r.Context(), principal, q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if assets == nil {
		assets = []Asset{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Assets:     assets,
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid asset id")
		return
	}
	asset, err := h.service.Get(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

type createRequest struct {
	Name             string     `json:"name" validate:"required,min=2"`
	Category         string     `json:"category" validate:"required"`
	SerialNumber     string     `json:"serialNumber"`
	PurchasePrice    float64    `json:"purchasePrice" validate:"gte=0"`
	PurchaseDate     *time.Time `json:"purchaseDate"`
	WarrantyExpiry   *time.Time `json:"warrantyExpiry"`
	DepreciationRate float64    `json:"depreciationRate" validate:"gte=0,lte=100"`
	Location         string     `json:"location"`
	Description      string     `json:"description"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	asset, err := h.service.Create(r.Context(), access.PrincipalFromContext(r.Context()), CreateInput{
		Name:             req.Name,
		Category:         req.Category,
		SerialNumber:     req.SerialNumber,
		PurchasePrice:    req.PurchasePrice,
		PurchaseDate:     req.PurchaseDate,
		WarrantyExpiry:   req.WarrantyExpiry,
		DepreciationRate: req.DepreciationRate,
		Location:         req.Location,
		Description:      req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, asset)
}

type updateAssetRequest struct {
	Name             *string    `json:"name" validate:"omitempty,min=2"`
	Category         *string    `json:"category"`
	SerialNumber     *string    `json:"serialNumber"`
	Status           *string    `json:"status" validate:"omitempty,oneof=available assigned maintenance retired"`
	PurchasePrice    *float64   `json:"purchasePrice" validate:"omitempty,gte=0"`
	PurchaseDate     *time.Time `json:"purchaseDate"`
	WarrantyExpiry   *time.Time `json:"warrantyExpiry"`
	DepreciationRate *float64   `json:"depreciationRate" validate:"omitempty,gte=0,lte=100"`
	Location         *string    `json:"location"`
	Description      *string    `json:"description"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid asset id")
		return
	}
	var req updateAssetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := UpdateInput{
		Name:             req.Name,
		Category:         req.Category,
		SerialNumber:     req.SerialNumber,
		PurchasePrice:    req.PurchasePrice,
		PurchaseDate:     req.PurchaseDate,
		WarrantyExpiry:   req.WarrantyExpiry,
		DepreciationRate: req.DepreciationRate,
		Location:         req.Location,
		Description:      req.Description,
	}
	if req.Status != nil {
		status := Status(*req.Status)
		in.Status = &status
	}
	asset, err := h.service.Update(r.Context(), access.PrincipalFromContext(r.Context()), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

func (h *Handler) handleRetire(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid asset id")
		return
	}
	if err := h.service.Retire(r.Context(), access.PrincipalFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "asset retired"})
}

type assignRequest struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid asset id")
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	asset, err := h.service.Assign(r.Context(), access.PrincipalFromContext(r.Context()), id, req.UserID)
	if err != nil {
		if errors.Is(err, ErrAssigneeInactive) || errors.Is(err, ErrAssetRetired) {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

func (h *Handler) handleUnassign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid asset id")
		return
	}
	asset, err := h.service.Unassign(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

func (h *Handler) handleTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid asset id")
		return
	}
	tag, err := h.service.Tag(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tag)
}

type maintenanceRequest struct {
	Description string    `json:"description" validate:"required,min=3"`
	Cost        float64   `json:"cost" validate:"gte=0"`
	PerformedAt time.Time `json:"performedAt"`
}

func (h *Handler) handleAddMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid asset id")
		return
	}
	var req maintenanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.AddMaintenance(r.Context(), access.PrincipalFromContext(r.Context()),
		id, req.Description, req.Cost, req.PerformedAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleMaintenanceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid asset id")
		return
	}
	records, err := h.service.MaintenanceHistory(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if records == nil {
		records = []MaintenanceRecord{}
	}
	httpx.JSON(w, http.StatusOK, records)
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
