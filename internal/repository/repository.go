package repository

import (
	"context"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
)

// DoctorFilter holds the criteria for listing doctors.
type DoctorFilter struct {
	Specialty  *string
	MinRating  *float64
	ActiveOnly bool
	Sort       string
	Page       int
	PerPage    int
}

// ReviewFilter holds pagination for a doctor's reviews.
type ReviewFilter struct {
	Page    int
	PerPage int
}

// DoctorRepository persists doctor profiles. It never writes the derived
// rating and review_count columns.
type DoctorRepository interface {
	// Create inserts a new doctor. Derived fields start at zero.
	Create(ctx context.Context, d *domain.Doctor) error
	// GetByID returns a doctor by id.
	GetByID(ctx context.Context, id string) (*domain.Doctor, error)
	// GetBySlug returns a doctor by slug.
	GetBySlug(ctx context.Context, slug string) (*domain.Doctor, error)
	// List returns a page of doctors and the total match count.
	List(ctx context.Context, filter DoctorFilter) ([]domain.Doctor, int, error)
	// Update writes the profile fields of d.
	Update(ctx context.Context, d *domain.Doctor) error
	// Delete removes a doctor and, by cascade, its reviews.
	Delete(ctx context.Context, id string) error
}

// ReviewRepository persists reviews.
type ReviewRepository interface {
	Create(ctx context.Context, r *domain.Review) error
	GetByID(ctx context.Context, id string) (*domain.Review, error)
	Update(ctx context.Context, r *domain.Review) error
	Delete(ctx context.Context, id string) error
	ListByDoctorID(ctx context.Context, doctorID string, filter ReviewFilter) ([]domain.Review, int, error)
}

// RatingRepository is the only writer of a doctor's derived rating fields.
type RatingRepository interface {
	// RecomputeDoctorRating recalculates and stores the doctor's rating and
	// review count from its current reviews in one transaction. It returns
	// apperrors.ErrNotFound when the doctor does not exist.
	RecomputeDoctorRating(ctx context.Context, doctorID string) (domain.RatingSummary, error)
	// ListDoctorIDs returns up to limit doctor ids greater than afterID in
	// ascending order.
	ListDoctorIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

// DoctorCache caches doctor profiles by id.
type DoctorCache interface {
	Get(ctx context.Context, id string) (*domain.Doctor, error)
	Set(ctx context.Context, d *domain.Doctor) error
	Invalidate(ctx context.Context, id string) error
}
