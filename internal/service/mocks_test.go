package service

import (
	"context"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// --- Doctor repository ---

type mockDoctorRepository struct {
	mock.Mock
}

func (m *mockDoctorRepository) Create(ctx context.Context, d *domain.Doctor) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockDoctorRepository) GetByID(ctx context.Context, id string) (*domain.Doctor, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Doctor), args.Error(1)
}

func (m *mockDoctorRepository) GetBySlug(ctx context.Context, slug string) (*domain.Doctor, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Doctor), args.Error(1)
}

func (m *mockDoctorRepository) List(ctx context.Context, filter repository.DoctorFilter) ([]domain.Doctor, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Doctor), args.Int(1), args.Error(2)
}

func (m *mockDoctorRepository) Update(ctx context.Context, d *domain.Doctor) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockDoctorRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- Review repository ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) Create(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Return a copy so the service cannot alias the fixture.
	r := *args.Get(0).(*domain.Review)
	return &r, args.Error(1)
}

func (m *mockReviewRepository) Update(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReviewRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockReviewRepository) ListByDoctorID(ctx context.Context, doctorID string, filter repository.ReviewFilter) ([]domain.Review, int, error) {
	args := m.Called(ctx, doctorID, filter)
	return args.Get(0).([]domain.Review), args.Int(1), args.Error(2)
}

// --- Doctor cache ---

type mockDoctorCache struct {
	mock.Mock
}

func (m *mockDoctorCache) Get(ctx context.Context, id string) (*domain.Doctor, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Doctor), args.Error(1)
}

func (m *mockDoctorCache) Set(ctx context.Context, d *domain.Doctor) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockDoctorCache) Invalidate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- Rating trigger ---

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) Trigger(ctx context.Context, reason string, doctorIDs ...string) {
	m.Called(ctx, reason, doctorIDs)
}

// --- Review events ---

type mockReviewEvents struct {
	mock.Mock
}

func (m *mockReviewEvents) PublishReviewCreated(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReviewEvents) PublishReviewUpdated(ctx context.Context, before, after *domain.Review) error {
	return m.Called(ctx, before, after).Error(0)
}

func (m *mockReviewEvents) PublishReviewDeleted(ctx context.Context, r *domain.Review, deletedBy string) error {
	return m.Called(ctx, r, deletedBy).Error(0)
}
