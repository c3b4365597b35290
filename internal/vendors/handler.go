package vendors

import (
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

// Handler manages vendor registry endpoints.
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

// MountRoutes registers vendor routes. The whole subtree is manager and up;
// employees hold no vendor grant at all.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guards.RequireMinRole(access.RoleManager))
	r.Get("/stats", h.handleStats)
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDeactivate)
		r.Get("/contacts", h.handleContacts)
		r.Post("/contacts", h.handleAddContact)
		r.Delete("/contacts/{contactID}", h.handleRemoveContact)
		r.Get("/contracts", h.handleContracts)
		r.Post("/contracts", h.handleAddContract)
	})
}

type listResponse struct {
	Vendors    []Vendor          `json:"vendors"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page := shared.PageRequestFromQuery(r)
	q := ListQuery{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
		Page:     page.Page,
		PerPage:  page.PerPage,
	}
	if raw := r.URL.Query().Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "isActive must be a boolean")
			return
		}
		q.IsActive = &active
	}
	vendors, total, err := h.service.List(r.Context(), access.PrincipalFromContext(r.Context()), q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if vendors == nil {
		vendors = []Vendor{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Vendors:    vendors,
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid vendor id")
		return
	}
	vendor, err := h.service.Get(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

type vendorRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Category string `json:"category"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
	Website  string `json:"website" validate:"omitempty,url"`
	Address  string `json:"address"`
	Notes    string `json:"notes"`
}

func (h *Handler) decodeVendor(w http.ResponseWriter, r *http.Request) (*vendorRequest, bool) {
	var req vendorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return nil, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return nil, false
	}
	return &req, true
}

func (req *vendorRequest) input() VendorInput {
	return VendorInput{
		Name:     req.Name,
		Category: req.Category,
		Email:    req.Email,
		Phone:    req.Phone,
		Website:  req.Website,
		Address:  req.Address,
		Notes:    req.Notes,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeVendor(w, r)
	if !ok {
		return
	}
	vendor, err := h.service.Create(r.Context(), access.PrincipalFromContext(r.Context()), req.input())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("vendor created", slog.Int64("vendor_id", vendor.ID))
	httpx.JSON(w, http.StatusCreated, vendor)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid vendor id")
		return
	}
	req, ok := h.decodeVendor(w, r)
	if !ok {
		return
	}
	vendor, err := h.service.Update(r.Context(), access.PrincipalFromContext(r.Context()), id, req.input())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid vendor id")
		return
	}
	if err := h.service.Deactivate(r.Context(), access.PrincipalFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "vendor deactivated"})
}

type contactRequest struct {
	Name  string `json:"name" validate:"required,min=2"`
	Role  string `json:"role"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

func (h *Handler) handleAddContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid vendor id")
		return
	}
	var req contactRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	contact, err := h.service.AddContact(r.Context(), access.PrincipalFromContext(r.Context()), id, Contact{
		Name:  req.Name,
		Role:  req.Role,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, contact)
}

func (h *Handler) handleContacts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid vendor id")
		return
	}
	contacts, err := h.service.Contacts(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if contacts == nil {
		contacts = []Contact{}
	}
	httpx.JSON(w, http.StatusOK, contacts)
}

func (h *Handler) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid vendor id")
		return
	}
	contactID, err := pathID(r, "contactID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid contact id")
		return
	}
	if err := h.service.RemoveContact(r.Context(), access.PrincipalFromContext(r.Context()), id, contactID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "contact removed"})
}

type contractRequest struct {
	Title     string     `json:"title" validate:"required,min=2"`
	Value     float64    `json:"value" validate:"gte=0"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

func (h *Handler) handleAddContract(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid vendor id")
		return
	}
	var req contractRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	contract, err := h.service.AddContract(r.Context(), access.PrincipalFromContext(r.Context()), id, Contract{
		Title:     req.Title,
		Value:     req.Value,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, contract)
}

func (h *Handler) handleContracts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid vendor id")
		return
	}
	contracts, err := h.service.Contracts(r.Context(), access.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if contracts == nil {
		contracts = []Contract{}
	}
	httpx.JSON(w, http.StatusOK, contracts)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
