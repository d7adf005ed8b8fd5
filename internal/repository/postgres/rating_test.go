package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
)

const doctorID = "11111111-1111-1111-1111-111111111111"

func expectLock(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery("SELECT id FROM doctors WHERE id = \\$1 FOR UPDATE").
		WithArgs(doctorID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(doctorID))
}

func expectAggregate(mock pgxmock.PgxPoolIface, count int, sum int64) {
	mock.ExpectQuery("SELECT COUNT\\(\\*\\), COALESCE\\(SUM\\(rating\\), 0\\) FROM reviews WHERE doctor_id = \\$1").
		WithArgs(doctorID).
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum"}).AddRow(count, sum))
}

func TestRatingRepository_Recompute_WritesMeanAndCount(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		sum       int64
		wantAvg   float64
		wantCount int
	}{
		{"two reviews", 2, 8, 4.0, 2},
		{"three reviews", 3, 12, 4.0, 3},
		{"no reviews", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			repo := NewRatingRepository(mock)

			mock.ExpectBegin()
			expectLock(mock)
			expectAggregate(mock, tt.count, tt.sum)
			mock.ExpectExec("UPDATE doctors SET rating = \\$2, review_count = \\$3").
				WithArgs(doctorID, tt.wantAvg, tt.wantCount).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			mock.ExpectCommit()

			summary, err := repo.RecomputeDoctorRating(context.Background(), doctorID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAvg, summary.AverageRating)
			assert.Equal(t, tt.wantCount, summary.ReviewCount)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRatingRepository_Recompute_MissingDoctor(t *testing.T) {
	mock := newMock(t)
	repo := NewRatingRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM doctors WHERE id = \\$1 FOR UPDATE").
		WithArgs(doctorID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.RecomputeDoctorRating(context.Background(), doctorID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestRatingRepository_Recompute_SpanStatus(t *testing.T) {
	t.Run("missing doctor leaves span unset", func(t *testing.T) {
		exporter := recordSpans(t)
		mock := newMock(t)
		repo := NewRatingRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM doctors WHERE id = \\$1 FOR UPDATE").
			WithArgs(doctorID).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.RecomputeDoctorRating(context.Background(), doctorID)
		require.ErrorIs(t, err, apperrors.ErrNotFound)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "db.rating.recompute", spans[0].Name)
		assert.Equal(t, codes.Unset, spans[0].Status.Code)
		assert.Empty(t, spans[0].Events)
	})

	t.Run("lock failure marks span as error", func(t *testing.T) {
		exporter := recordSpans(t)
		mock := newMock(t)
		repo := NewRatingRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM doctors WHERE id = \\$1 FOR UPDATE").
			WithArgs(doctorID).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := repo.RecomputeDoctorRating(context.Background(), doctorID)
		require.Error(t, err)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
	})
}

func TestRatingRepository_Recompute_ReadFailureRollsBack(t *testing.T) {
	mock := newMock(t)
	repo := NewRatingRepository(mock)

	mock.ExpectBegin()
	expectLock(mock)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(doctorID).
		WillReturnError(errors.New("read timeout"))
	mock.ExpectRollback()

	_, err := repo.RecomputeDoctorRating(context.Background(), doctorID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggregate reviews")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingRepository_Recompute_WriteFailureRollsBack(t *testing.T) {
	mock := newMock(t)
	repo := NewRatingRepository(mock)

	mock.ExpectBegin()
	expectLock(mock)
	expectAggregate(mock, 1, 5)
	mock.ExpectExec("UPDATE doctors").
		WithArgs(doctorID, 5.0, 1).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.RecomputeDoctorRating(context.Background(), doctorID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store rating")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingRepository_Recompute_BeginFailure(t *testing.T) {
	mock := newMock(t)
	repo := NewRatingRepository(mock)

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	_, err := repo.RecomputeDoctorRating(context.Background(), doctorID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin transaction")
}

func TestRatingRepository_ListDoctorIDs(t *testing.T) {
	mock := newMock(t)
	repo := NewRatingRepository(mock)

	mock.ExpectQuery("SELECT id FROM doctors WHERE id > \\$1 ORDER BY id LIMIT \\$2").
		WithArgs(uuid.Nil.String(), 2).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))
	mock.ExpectQuery("SELECT id FROM doctors WHERE id > \\$1").
		WithArgs("b", 2).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	ids, err := repo.ListDoctorIDs(context.Background(), "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	ids, err = repo.ListDoctorIDs(context.Background(), "b", 2)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
