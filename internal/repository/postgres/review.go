package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/database"
	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
)

const reviewColumns = `id, doctor_id, patient_id, rating, comment, created_at, updated_at`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	db database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(db database.DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a new review.
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) (err error) {
	query := `
		INSERT INTO reviews (id, doctor_id, patient_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "review.create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		rv.ID, rv.DoctorID, rv.PatientID, rv.Rating, rv.Comment, rv.CreatedAt, rv.UpdatedAt,
	)
	if err != nil {
		return writeError(err, rv)
	}
	return nil
}

// GetByID retrieves a review by id.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "review.get_by_id", query)
	defer func() { end(err) }()

	var rv domain.Review
	err = r.db.QueryRow(ctx, query, id).Scan(
		&rv.ID, &rv.DoctorID, &rv.PatientID, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return &rv, nil
}

// Update writes the review's doctor, rating and comment.
func (r *ReviewRepository) Update(ctx context.Context, rv *domain.Review) (err error) {
	query := `
		UPDATE reviews
		SET doctor_id = $2, rating = $3, comment = $4, updated_at = $5
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "review.update", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, rv.ID, rv.DoctorID, rv.Rating, rv.Comment, rv.UpdatedAt)
	if err != nil {
		return writeError(err, rv)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", rv.ID)
	}
	return nil
}

// Delete removes a review.
func (r *ReviewRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "review.delete", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

const countReviewsByDoctorQuery = `SELECT COUNT(*) FROM reviews WHERE doctor_id = $1`

// ListByDoctorID returns a page of the doctor's reviews, newest first, and
// the total count.
func (r *ReviewRepository) ListByDoctorID(ctx context.Context, doctorID string, filter repository.ReviewFilter) (_ []domain.Review, _ int, err error) {
	query := `
		SELECT ` + reviewColumns + `, count(*) OVER() AS total_count
		FROM reviews
		WHERE doctor_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	ctx, end := database.TraceQuery(ctx, "review.list_by_doctor", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, doctorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	total := 0
	for rows.Next() {
		var rv domain.Review
		if err = rows.Scan(
			&rv.ID, &rv.DoctorID, &rv.PatientID, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate reviews: %w", err)
	}

	// A page past the end carries no window count.
	if len(reviews) == 0 && offset > 0 {
		if err = r.db.QueryRow(ctx, countReviewsByDoctorQuery, doctorID).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count reviews: %w", err)
		}
	}

	return reviews, total, nil
}

func writeError(err error, rv *domain.Review) error {
	switch {
	case database.IsUniqueViolation(err):
		return apperrors.AlreadyExists("review", "patient_id", rv.PatientID)
	case database.IsForeignKeyViolation(err):
		return apperrors.NotFound("doctor", rv.DoctorID)
	default:
		return fmt.Errorf("write review: %w", err)
	}
}
