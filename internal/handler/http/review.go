package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/service"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/httputil"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/middleware"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/pagination"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/validator"
)

// ReviewService is the review business logic the handler depends on.
type ReviewService interface {
	CreateReview(ctx context.Context, input *service.CreateReviewInput) (*domain.Review, error)
	GetReview(ctx context.Context, id string) (*domain.Review, error)
	UpdateReview(ctx context.Context, id, userID string, input *service.UpdateReviewInput) (*domain.Review, error)
	DeleteReview(ctx context.Context, id, userID string, moderator bool) error
	ListReviews(ctx context.Context, doctorID string, page, perPage int) (*service.ReviewListResult, error)
}

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateReviewRequest is the JSON body for creating a review.
type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// UpdateReviewRequest is the JSON body for editing a review. DoctorID moves
// the review to another doctor.
type UpdateReviewRequest struct {
	DoctorID *string `json:"doctor_id" validate:"omitempty,uuid"`
	Rating   *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment  *string `json:"comment" validate:"omitempty,max=2000"`
}

// --- Handlers ---

// ListReviews handles GET /api/v1/doctors/{doctorId}/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := httputil.ParseUUID(w, chi.URLParam(r, "doctorId"))
	if !ok {
		return
	}
	params := pagination.FromRequest(r)

	result, err := h.service.ListReviews(r.Context(), doctorID.String(), params.Page, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"data":           result.Reviews,
		"summary":        result.Summary,
		"display_rating": result.DisplayRating,
		"total_count":    result.TotalCount,
		"page":           result.Page,
		"per_page":       result.PerPage,
		"total_pages":    result.TotalPages,
	})
}

// CreateReview handles POST /api/v1/doctors/{doctorId}/reviews
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := httputil.ParseUUID(w, chi.URLParam(r, "doctorId"))
	if !ok {
		return
	}

	var req CreateReviewRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	review, err := h.service.CreateReview(r.Context(), &service.CreateReviewInput{
		DoctorID:  doctorID.String(),
		PatientID: middleware.UserIDFromContext(r.Context()),
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, review)
}

// GetReview handles GET /api/v1/reviews/{id}
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	review, err := h.service.GetReview(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
}

// UpdateReview handles PUT /api/v1/reviews/{id}
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateReviewRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if req.DoctorID == nil && req.Rating == nil && req.Comment == nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "no fields to update"},
		})
		return
	}

	review, err := h.service.UpdateReview(r.Context(), id.String(), middleware.UserIDFromContext(r.Context()), &service.UpdateReviewInput{
		DoctorID: req.DoctorID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
}

// DeleteReview handles DELETE /api/v1/reviews/{id}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	ctx := r.Context()
	moderator := middleware.RoleFromContext(ctx) == middleware.RoleModerator
	if err := h.service.DeleteReview(ctx, id.String(), middleware.UserIDFromContext(ctx), moderator); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
