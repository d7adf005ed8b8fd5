package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/rating"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/service"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/health"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/httputil"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/middleware"
)

const (
	testDoctorID  = "550e8400-e29b-41d4-a716-446655440001"
	testDoctorID2 = "550e8400-e29b-41d4-a716-446655440002"
	testReviewID  = "660e8400-e29b-41d4-a716-446655440001"
	testPatientID = "patient-1"
)

// =============================================================================
// Mock services
// =============================================================================

type mockDoctorService struct {
	mock.Mock
}

func (m *mockDoctorService) CreateDoctor(ctx context.Context, input *service.CreateDoctorInput) (*domain.Doctor, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Doctor), args.Error(1)
}

func (m *mockDoctorService) GetDoctor(ctx context.Context, idOrSlug string) (*domain.Doctor, error) {
	args := m.Called(ctx, idOrSlug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Doctor), args.Error(1)
}

func (m *mockDoctorService) ListDoctors(ctx context.Context, filter repository.DoctorFilter) ([]domain.Doctor, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Doctor), args.Int(1), args.Error(2)
}

func (m *mockDoctorService) UpdateDoctor(ctx context.Context, id string, input *service.UpdateDoctorInput) (*domain.Doctor, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Doctor), args.Error(1)
}

func (m *mockDoctorService) DeleteDoctor(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockReviewService struct {
	mock.Mock
}

func (m *mockReviewService) CreateReview(ctx context.Context, input *service.CreateReviewInput) (*domain.Review, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewService) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewService) UpdateReview(ctx context.Context, id, userID string, input *service.UpdateReviewInput) (*domain.Review, error) {
	args := m.Called(ctx, id, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewService) DeleteReview(ctx context.Context, id, userID string, moderator bool) error {
	return m.Called(ctx, id, userID, moderator).Error(0)
}

func (m *mockReviewService) ListReviews(ctx context.Context, doctorID string, page, perPage int) (*service.ReviewListResult, error) {
	args := m.Called(ctx, doctorID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReviewListResult), args.Error(1)
}

type mockRatingAdmin struct {
	mock.Mock
}

func (m *mockRatingAdmin) Recompute(ctx context.Context, doctorID string) (*domain.RatingSummary, error) {
	args := m.Called(ctx, doctorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RatingSummary), args.Error(1)
}

func (m *mockRatingAdmin) Sweep(ctx context.Context) (rating.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(rating.SweepResult), args.Error(1)
}

// =============================================================================
// Test helpers
// =============================================================================

type testEnv struct {
	doctors *mockDoctorService
	reviews *mockReviewService
	ratings *mockRatingAdmin
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		doctors: new(mockDoctorService),
		reviews: new(mockReviewService),
		ratings: new(mockRatingAdmin),
	}
	env.router = NewRouter(RouterConfig{
		ServiceName: "portal-test",
		Doctors:     env.doctors,
		Reviews:     env.reviews,
		Ratings:     env.ratings,
		Health:      health.NewHandler(),
		// httptest.NewRequest uses 192.0.2.1 as the remote address.
		AdminAllowedCIDRs: []string{"192.0.2.0/24"},
		PprofAllowedCIDRs: []string{"127.0.0.1/32"},
		DoctorCacheMaxAge: 30,
	}, testLogger())
	t.Cleanup(func() {
		env.doctors.AssertExpectations(t)
		env.reviews.AssertExpectations(t)
		env.ratings.AssertExpectations(t)
	})
	return env
}

func (e *testEnv) do(method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func asPatient(id string) map[string]string {
	return map[string]string{middleware.UserIDHeader: id}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func sampleDoctor() *domain.Doctor {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Doctor{
		ID:          testDoctorID,
		Name:        "Dr. Ada Moreno",
		Slug:        "dr-ada-moreno",
		Specialty:   "cardiology",
		Title:       "MD",
		IsActive:    true,
		Rating:      4.333333333333333,
		ReviewCount: 3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func sampleReview() *domain.Review {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return &domain.Review{
		ID:        testReviewID,
		DoctorID:  testDoctorID,
		PatientID: testPatientID,
		Rating:    5,
		Comment:   "Very thorough",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}
