package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/service"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/httputil"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/pagination"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/validator"
)

// DoctorService is the doctor business logic the handler depends on.
type DoctorService interface {
	CreateDoctor(ctx context.Context, input *service.CreateDoctorInput) (*domain.Doctor, error)
	GetDoctor(ctx context.Context, idOrSlug string) (*domain.Doctor, error)
	ListDoctors(ctx context.Context, filter repository.DoctorFilter) ([]domain.Doctor, int, error)
	UpdateDoctor(ctx context.Context, id string, input *service.UpdateDoctorInput) (*domain.Doctor, error)
	DeleteDoctor(ctx context.Context, id string) error
}

// DoctorHandler handles HTTP requests for doctor endpoints.
type DoctorHandler struct {
	service DoctorService
	logger  *slog.Logger
}

// NewDoctorHandler creates a new doctor HTTP handler.
func NewDoctorHandler(svc DoctorService, logger *slog.Logger) *DoctorHandler {
	return &DoctorHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request / response DTOs ---

// CreateDoctorRequest is the JSON body for creating a doctor. Rating fields
// are not accepted.
type CreateDoctorRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	Slug      string `json:"slug" validate:"max=255"`
	Specialty string `json:"specialty" validate:"max=100"`
	Title     string `json:"title" validate:"max=100"`
	Bio       string `json:"bio" validate:"max=5000"`
	IsActive  *bool  `json:"is_active"`
}

// UpdateDoctorRequest is the JSON body for updating a doctor profile.
type UpdateDoctorRequest struct {
	Name      *string `json:"name" validate:"omitempty,max=255"`
	Slug      *string `json:"slug" validate:"omitempty,max=255"`
	Specialty *string `json:"specialty" validate:"omitempty,max=100"`
	Title     *string `json:"title" validate:"omitempty,max=100"`
	Bio       *string `json:"bio" validate:"omitempty,max=5000"`
	IsActive  *bool   `json:"is_active"`
}

// DoctorResponse adds the display rating to a doctor.
type DoctorResponse struct {
	domain.Doctor
	DisplayRating float64 `json:"display_rating"`
}

func toDoctorResponse(d *domain.Doctor) DoctorResponse {
	return DoctorResponse{Doctor: *d, DisplayRating: d.RatingSummary().Rounded()}
}

// --- Handlers ---

// ListDoctors handles GET /api/v1/doctors
func (h *DoctorHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	q := r.URL.Query()

	filter := repository.DoctorFilter{
		Sort:       q.Get("sort"),
		ActiveOnly: q.Get("include_inactive") != "true",
		Page:       params.Page,
		PerPage:    params.PerPage,
	}
	if v := strings.TrimSpace(q.Get("specialty")); v != "" {
		filter.Specialty = &v
	}
	if v := q.Get("min_rating"); v != "" {
		minRating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "min_rating must be a number"},
			})
			return
		}
		filter.MinRating = &minRating
	}

	doctors, total, err := h.service.ListDoctors(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	items := make([]DoctorResponse, 0, len(doctors))
	for i := range doctors {
		items = append(items, toDoctorResponse(&doctors[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(items, total, params.Page, params.PerPage))
}

// GetDoctor handles GET /api/v1/doctors/{idOrSlug}
func (h *DoctorHandler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDoctor(r.Context(), chi.URLParam(r, "idOrSlug"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, toDoctorResponse(d))
}

// CreateDoctor handles POST /api/v1/doctors
func (h *DoctorHandler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var req CreateDoctorRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	d, err := h.service.CreateDoctor(r.Context(), &service.CreateDoctorInput{
		Name:      req.Name,
		Slug:      req.Slug,
		Specialty: req.Specialty,
		Title:     req.Title,
		Bio:       req.Bio,
		IsActive:  req.IsActive,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, toDoctorResponse(d))
}

// UpdateDoctor handles PUT /api/v1/doctors/{id}
func (h *DoctorHandler) UpdateDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateDoctorRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	d, err := h.service.UpdateDoctor(r.Context(), id.String(), &service.UpdateDoctorInput{
		Name:      req.Name,
		Slug:      req.Slug,
		Specialty: req.Specialty,
		Title:     req.Title,
		Bio:       req.Bio,
		IsActive:  req.IsActive,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, toDoctorResponse(d))
}

// DeleteDoctor handles DELETE /api/v1/doctors/{id}
func (h *DoctorHandler) DeleteDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteDoctor(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
