package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/database"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var (
	fixedTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	uniqueViolation = &pgconn.PgError{Code: "23505"}
	fkViolation     = &pgconn.PgError{Code: "23503"}
)

var doctorRowColumns = []string{
	"id", "name", "slug", "specialty", "title", "bio", "is_active",
	"rating", "review_count", "created_at", "updated_at",
}

var reviewRowColumns = []string{
	"id", "doctor_id", "patient_id", "rating", "comment", "created_at", "updated_at",
}

func sampleDoctor() domain.Doctor {
	return domain.Doctor{
		ID:          "11111111-1111-1111-1111-111111111111",
		Name:        "Dr. Ana Lima",
		Slug:        "dr-ana-lima",
		Specialty:   "cardiology",
		Title:       "MD",
		Bio:         "Cardiologist",
		IsActive:    true,
		Rating:      4.5,
		ReviewCount: 2,
		CreatedAt:   fixedTime,
		UpdatedAt:   fixedTime,
	}
}

func sampleReview() domain.Review {
	return domain.Review{
		ID:        "22222222-2222-2222-2222-222222222222",
		DoctorID:  "11111111-1111-1111-1111-111111111111",
		PatientID: "patient-1",
		Rating:    5,
		Comment:   "Very attentive",
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime,
	}
}

func doctorRow(d domain.Doctor) []any {
	return []any{d.ID, d.Name, d.Slug, d.Specialty, d.Title, d.Bio, d.IsActive, d.Rating, d.ReviewCount, d.CreatedAt, d.UpdatedAt}
}

func reviewRow(r domain.Review) []any {
	return []any{r.ID, r.DoctorID, r.PatientID, r.Rating, r.Comment, r.CreatedAt, r.UpdatedAt}
}
