package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository"
	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/slug"
)

const maxNameLength = 255

// CreateDoctorInput holds the parameters for creating a doctor.
type CreateDoctorInput struct {
	Name      string
	Slug      string
	Specialty string
	Title     string
	Bio       string
	IsActive  *bool
}

// UpdateDoctorInput holds the profile fields to change. Nil fields are kept.
type UpdateDoctorInput struct {
	Name      *string
	Slug      *string
	Specialty *string
	Title     *string
	Bio       *string
	IsActive  *bool
}

// DoctorService implements the business logic for doctor profiles. It has
// no way to change a doctor's rating or review count.
type DoctorService struct {
	repo   repository.DoctorRepository
	cache  repository.DoctorCache
	logger *slog.Logger
}

// NewDoctorService creates a new doctor service. cache may be nil.
func NewDoctorService(repo repository.DoctorRepository, cache repository.DoctorCache, logger *slog.Logger) *DoctorService {
	return &DoctorService{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// CreateDoctor creates a doctor. The slug is derived from the name when not
// given.
func (s *DoctorService) CreateDoctor(ctx context.Context, input *CreateDoctorInput) (*domain.Doctor, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if len(name) > maxNameLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}

	docSlug := slug.Generate(input.Slug)
	if docSlug == "" {
		docSlug = slug.Generate(name)
	}
	if docSlug == "" {
		return nil, apperrors.InvalidInput("could not derive a slug from name")
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	now := time.Now().UTC()
	d := &domain.Doctor{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      docSlug,
		Specialty: strings.TrimSpace(input.Specialty),
		Title:     strings.TrimSpace(input.Title),
		Bio:       input.Bio,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}

	s.logger.InfoContext(ctx, "doctor created",
		slog.String("doctor_id", d.ID),
		slog.String("slug", d.Slug),
	)

	return d, nil
}

// GetDoctor returns a doctor by id or slug. Lookups by id read through the
// cache.
func (s *DoctorService) GetDoctor(ctx context.Context, idOrSlug string) (*domain.Doctor, error) {
	if _, err := uuid.Parse(idOrSlug); err != nil {
		d, err := s.repo.GetBySlug(ctx, idOrSlug)
		if err != nil {
			return nil, fmt.Errorf("get doctor by slug: %w", err)
		}
		return d, nil
	}
	return s.getByID(ctx, idOrSlug)
}

func (s *DoctorService) getByID(ctx context.Context, id string) (*domain.Doctor, error) {
	if s.cache != nil {
		d, err := s.cache.Get(ctx, id)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "doctor cache read failed",
				slog.String("doctor_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, d); err != nil {
			s.logger.WarnContext(ctx, "doctor cache write failed",
				slog.String("doctor_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return d, nil
}

// ListDoctors returns a page of doctors and the total count.
func (s *DoctorService) ListDoctors(ctx context.Context, filter repository.DoctorFilter) ([]domain.Doctor, int, error) {
	if filter.Sort != "" && !validSort(filter.Sort) {
		return nil, 0, apperrors.InvalidInput("sort must be one of " + strings.Join(domain.ValidSorts(), ", "))
	}
	if filter.MinRating != nil && (*filter.MinRating < 0 || *filter.MinRating > domain.MaxRating) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("min_rating must be between 0 and %d", domain.MaxRating))
	}

	doctors, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, total, nil
}

// UpdateDoctor applies profile changes.
func (s *DoctorService) UpdateDoctor(ctx context.Context, id string, input *UpdateDoctorInput) (*domain.Doctor, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get doctor for update: %w", err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.InvalidInput("name cannot be empty")
		}
		if len(name) > maxNameLength {
			return nil, apperrors.InvalidInput(fmt.Sprintf("name must be at most %d characters", maxNameLength))
		}
		d.Name = name
	}
	if input.Slug != nil {
		docSlug := slug.Generate(*input.Slug)
		if docSlug == "" {
			return nil, apperrors.InvalidInput("slug cannot be empty")
		}
		d.Slug = docSlug
	}
	if input.Specialty != nil {
		d.Specialty = strings.TrimSpace(*input.Specialty)
	}
	if input.Title != nil {
		d.Title = strings.TrimSpace(*input.Title)
	}
	if input.Bio != nil {
		d.Bio = *input.Bio
	}
	if input.IsActive != nil {
		d.IsActive = *input.IsActive
	}
	d.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	s.invalidate(ctx, id)

	s.logger.InfoContext(ctx, "doctor updated", slog.String("doctor_id", id))
	return d, nil
}

// DeleteDoctor removes a doctor together with its reviews.
func (s *DoctorService) DeleteDoctor(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	s.invalidate(ctx, id)

	s.logger.InfoContext(ctx, "doctor deleted", slog.String("doctor_id", id))
	return nil
}

func (s *DoctorService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "doctor cache invalidation failed",
			slog.String("doctor_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func validSort(sort string) bool {
	for _, v := range domain.ValidSorts() {
		if v == sort {
			return true
		}
	}
	return false
}
