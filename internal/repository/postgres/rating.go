package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/database"
	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
)

const (
	lockDoctorQuery = `SELECT id FROM doctors WHERE id = $1 FOR UPDATE`

	aggregateReviewsQuery = `
		SELECT COUNT(*), COALESCE(SUM(rating), 0)
		FROM reviews
		WHERE doctor_id = $1`

	storeRatingQuery = `
		UPDATE doctors
		SET rating = $2, review_count = $3, updated_at = NOW()
		WHERE id = $1`

	listDoctorIDsQuery = `
		SELECT id FROM doctors
		WHERE id > $1
		ORDER BY id
		LIMIT $2`
)

// RatingRepository owns the derived rating and review_count columns of the
// doctors table. Nothing else writes them.
type RatingRepository struct {
	db database.DBTX
}

// NewRatingRepository creates a new PostgreSQL-backed rating repository.
func NewRatingRepository(db database.DBTX) *RatingRepository {
	return &RatingRepository{db: db}
}

// RecomputeDoctorRating locks the doctor row, aggregates every current
// review for it and stores the result, all in one transaction. The row lock
// orders concurrent recomputations of the same doctor, so the one that
// commits last has read the latest committed reviews.
func (r *RatingRepository) RecomputeDoctorRating(ctx context.Context, doctorID string) (_ domain.RatingSummary, err error) {
	ctx, end := database.TraceQuery(ctx, "rating.recompute", aggregateReviewsQuery)
	defer func() {
		// A missing doctor is a caller outcome, not a database failure.
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.RatingSummary{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	if err = tx.QueryRow(ctx, lockDoctorQuery, doctorID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingSummary{}, apperrors.NotFound("doctor", doctorID)
		}
		return domain.RatingSummary{}, fmt.Errorf("lock doctor: %w", err)
	}

	var (
		count int
		sum   int64
	)
	if err = tx.QueryRow(ctx, aggregateReviewsQuery, doctorID).Scan(&count, &sum); err != nil {
		return domain.RatingSummary{}, fmt.Errorf("aggregate reviews: %w", err)
	}

	summary := domain.NewRatingSummary(count, sum)

	if _, err = tx.Exec(ctx, storeRatingQuery, doctorID, summary.AverageRating, summary.ReviewCount); err != nil {
		return domain.RatingSummary{}, fmt.Errorf("store rating: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.RatingSummary{}, fmt.Errorf("commit transaction: %w", err)
	}

	return summary, nil
}

// ListDoctorIDs returns up to limit doctor ids greater than afterID. An
// empty afterID starts from the beginning.
func (r *RatingRepository) ListDoctorIDs(ctx context.Context, afterID string, limit int) (_ []string, err error) {
	if afterID == "" {
		afterID = uuid.Nil.String()
	}

	ctx, end := database.TraceQuery(ctx, "rating.list_doctor_ids", listDoctorIDsQuery)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, listDoctorIDsQuery, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list doctor ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan doctor id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doctor ids: %w", err)
	}
	return ids, nil
}
