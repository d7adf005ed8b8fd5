package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/database"
	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
)

const doctorColumns = `id, name, slug, specialty, title, bio, is_active, rating, review_count, created_at, updated_at`

// DoctorRepository implements repository.DoctorRepository using PostgreSQL.
type DoctorRepository struct {
	db database.DBTX
}

// NewDoctorRepository creates a new PostgreSQL-backed doctor repository.
func NewDoctorRepository(db database.DBTX) *DoctorRepository {
	return &DoctorRepository{db: db}
}

// Create inserts a new doctor. rating and review_count take their column
// defaults.
func (r *DoctorRepository) Create(ctx context.Context, d *domain.Doctor) (err error) {
	query := `
		INSERT INTO doctors (id, name, slug, specialty, title, bio, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	ctx, end := database.TraceQuery(ctx, "doctor.create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		d.ID, d.Name, d.Slug, d.Specialty, d.Title, d.Bio, d.IsActive, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("doctor", "slug", d.Slug)
		}
		return fmt.Errorf("insert doctor: %w", err)
	}
	d.Rating = 0
	d.ReviewCount = 0
	return nil
}

// GetByID retrieves a doctor by id.
func (r *DoctorRepository) GetByID(ctx context.Context, id string) (*domain.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1`
	return r.getOne(ctx, "doctor.get_by_id", query, id)
}

// GetBySlug retrieves a doctor by slug.
func (r *DoctorRepository) GetBySlug(ctx context.Context, slug string) (*domain.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE slug = $1`
	return r.getOne(ctx, "doctor.get_by_slug", query, slug)
}

func (r *DoctorRepository) getOne(ctx context.Context, op, query, key string) (d *domain.Doctor, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	d, err = scanDoctor(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("doctor", key)
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}

// List returns doctors matching the filter together with the total count.
func (r *DoctorRepository) List(ctx context.Context, filter repository.DoctorFilter) (_ []domain.Doctor, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Specialty != nil {
		conditions = append(conditions, fmt.Sprintf("specialty = $%d", argIndex))
		args = append(args, *filter.Specialty)
		argIndex++
	}
	if filter.MinRating != nil {
		conditions = append(conditions, fmt.Sprintf("rating >= $%d", argIndex))
		args = append(args, *filter.MinRating)
		argIndex++
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = TRUE")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM doctors
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		doctorColumns, whereClause, orderBy(filter.Sort), argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	ctx, end := database.TraceQuery(ctx, "doctor.list", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	doctors := make([]domain.Doctor, 0)
	total := 0
	for rows.Next() {
		var d domain.Doctor
		if err = rows.Scan(
			&d.ID, &d.Name, &d.Slug, &d.Specialty, &d.Title, &d.Bio, &d.IsActive,
			&d.Rating, &d.ReviewCount, &d.CreatedAt, &d.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan doctor: %w", err)
		}
		doctors = append(doctors, d)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate doctors: %w", err)
	}

	// A page past the end carries no window count.
	if len(doctors) == 0 && offset > 0 {
		countQuery := "SELECT COUNT(*) FROM doctors " + whereClause
		if err = r.db.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count doctors: %w", err)
		}
	}

	return doctors, total, nil
}

func orderBy(sort string) string {
	switch sort {
	case domain.SortByRating:
		return "rating DESC, review_count DESC, name ASC"
	case domain.SortByReviews:
		return "review_count DESC, rating DESC, name ASC"
	case domain.SortByName:
		return "name ASC"
	default:
		return "created_at DESC"
	}
}

// Update writes the profile fields. rating and review_count are left alone.
func (r *DoctorRepository) Update(ctx context.Context, d *domain.Doctor) (err error) {
	query := `
		UPDATE doctors
		SET name = $2, slug = $3, specialty = $4, title = $5, bio = $6, is_active = $7, updated_at = $8
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "doctor.update", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query,
		d.ID, d.Name, d.Slug, d.Specialty, d.Title, d.Bio, d.IsActive, d.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("doctor", "slug", d.Slug)
		}
		return fmt.Errorf("update doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("doctor", d.ID)
	}
	return nil
}

// Delete removes a doctor. Its reviews are removed by ON DELETE CASCADE.
func (r *DoctorRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM doctors WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "doctor.delete", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("doctor", id)
	}
	return nil
}

func scanDoctor(row pgx.Row) (*domain.Doctor, error) {
	var d domain.Doctor
	err := row.Scan(
		&d.ID, &d.Name, &d.Slug, &d.Specialty, &d.Title, &d.Bio, &d.IsActive,
		&d.Rating, &d.ReviewCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
