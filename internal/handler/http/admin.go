package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/rating"
	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/httputil"
)

// RatingAdmin exposes on-demand rating maintenance.
type RatingAdmin interface {
	Recompute(ctx context.Context, doctorID string) (*domain.RatingSummary, error)
	Sweep(ctx context.Context) (rating.SweepResult, error)
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	ratings RatingAdmin
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(ratings RatingAdmin, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{ratings: ratings, logger: logger}
}

// RecomputeResponse reports a doctor's freshly stored rating.
type RecomputeResponse struct {
	DoctorID      string  `json:"doctor_id"`
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`
	DisplayRating float64 `json:"display_rating"`
}

// Reconcile handles POST /api/v1/admin/ratings/reconcile
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.ratings.Sweep(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "manual rating reconciliation",
		slog.Int("scanned", res.Scanned),
		slog.Int("updated", res.Updated),
		slog.Int("failed", res.Failed),
	)
	httputil.WriteData(w, http.StatusOK, res)
}

// RecomputeDoctor handles POST /api/v1/admin/doctors/{id}/rating/recompute
func (h *AdminHandler) RecomputeDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	summary, err := h.ratings.Recompute(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if summary == nil {
		httputil.WriteError(w, r, apperrors.NotFound("doctor", id.String()), h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, RecomputeResponse{
		DoctorID:      id.String(),
		AverageRating: summary.AverageRating,
		ReviewCount:   summary.ReviewCount,
		DisplayRating: summary.Rounded(),
	})
}
