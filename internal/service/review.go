package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/rating"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/repository"
	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
)

// RatingTrigger recomputes doctor ratings after a review mutation.
type RatingTrigger interface {
	Trigger(ctx context.Context, reason string, doctorIDs ...string)
}

// ReviewEventPublisher announces review mutations.
type ReviewEventPublisher interface {
	PublishReviewCreated(ctx context.Context, r *domain.Review) error
	PublishReviewUpdated(ctx context.Context, before, after *domain.Review) error
	PublishReviewDeleted(ctx context.Context, r *domain.Review, deletedBy string) error
}

// CreateReviewInput holds the parameters for creating a review.
type CreateReviewInput struct {
	DoctorID  string
	PatientID string
	Rating    int
	Comment   string
}

// UpdateReviewInput holds the review fields to change. Nil fields are kept.
// Setting DoctorID moves the review to another doctor.
type UpdateReviewInput struct {
	DoctorID *string
	Rating   *int
	Comment  *string
}

// ReviewListResult contains a page of reviews and the doctor's summary.
type ReviewListResult struct {
	Reviews       []domain.Review      `json:"reviews"`
	Summary       domain.RatingSummary `json:"summary"`
	DisplayRating float64              `json:"display_rating"`
	TotalCount    int                  `json:"total_count"`
	Page          int                  `json:"page"`
	PerPage       int                  `json:"per_page"`
	TotalPages    int                  `json:"total_pages"`
}

// ReviewService implements the business logic for review operations. Every
// successful mutation hands the affected doctors to the rating trigger after
// the write has committed.
type ReviewService struct {
	reviews repository.ReviewRepository
	doctors repository.DoctorRepository
	trigger RatingTrigger
	events  ReviewEventPublisher
	logger  *slog.Logger
}

// NewReviewService creates a new review service. events may be nil.
func NewReviewService(
	reviews repository.ReviewRepository,
	doctors repository.DoctorRepository,
	trigger RatingTrigger,
	events ReviewEventPublisher,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		reviews: reviews,
		doctors: doctors,
		trigger: trigger,
		events:  events,
		logger:  logger,
	}
}

// CreateReview stores a patient's review of a doctor and recomputes the
// doctor's rating.
func (s *ReviewService) CreateReview(ctx context.Context, input *CreateReviewInput) (*domain.Review, error) {
	if input.DoctorID == "" {
		return nil, apperrors.InvalidInput("doctor_id is required")
	}
	if input.PatientID == "" {
		return nil, apperrors.InvalidInput("patient_id is required")
	}
	if err := domain.ValidateRating(input.Rating); err != nil {
		return nil, err
	}
	if err := validateComment(input.Comment); err != nil {
		return nil, err
	}

	doctor, err := s.doctors.GetByID(ctx, input.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("get doctor for review: %w", err)
	}
	if !doctor.IsActive {
		return nil, apperrors.InvalidInput("doctor is not accepting reviews")
	}

	now := time.Now().UTC()
	review := &domain.Review{
		ID:        uuid.New().String(),
		DoctorID:  input.DoctorID,
		PatientID: input.PatientID,
		Rating:    input.Rating,
		Comment:   input.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	s.trigger.Trigger(ctx, rating.ReasonReviewCreated, review.DoctorID)
	s.publish(ctx, "review.created", func() error { return s.events.PublishReviewCreated(ctx, review) })

	s.logger.InfoContext(ctx, "review created",
		slog.String("review_id", review.ID),
		slog.String("doctor_id", review.DoctorID),
		slog.String("patient_id", review.PatientID),
		slog.Int("rating", review.Rating),
	)

	return review, nil
}

// GetReview returns a review by id.
func (s *ReviewService) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

// UpdateReview edits a review on behalf of its author. Ratings are
// recomputed only when the rating or the doctor changed; a move recomputes
// both doctors.
func (s *ReviewService) UpdateReview(ctx context.Context, id, userID string, input *UpdateReviewInput) (*domain.Review, error) {
	before, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review for update: %w", err)
	}
	if !before.CanEdit(userID) {
		return nil, apperrors.Forbidden("only the author can edit a review")
	}

	after := *before
	if input.Rating != nil {
		if err := domain.ValidateRating(*input.Rating); err != nil {
			return nil, err
		}
		after.Rating = *input.Rating
	}
	if input.Comment != nil {
		if err := validateComment(*input.Comment); err != nil {
			return nil, err
		}
		after.Comment = *input.Comment
	}
	if input.DoctorID != nil && *input.DoctorID != before.DoctorID {
		if *input.DoctorID == "" {
			return nil, apperrors.InvalidInput("doctor_id cannot be empty")
		}
		target, err := s.doctors.GetByID(ctx, *input.DoctorID)
		if err != nil {
			return nil, fmt.Errorf("get target doctor: %w", err)
		}
		if !target.IsActive {
			return nil, apperrors.InvalidInput("doctor is not accepting reviews")
		}
		after.DoctorID = target.ID
	}
	after.UpdatedAt = time.Now().UTC()

	if err := s.reviews.Update(ctx, &after); err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}

	if affected := domain.RatingAffected(before, &after); len(affected) > 0 {
		s.trigger.Trigger(ctx, rating.ReasonReviewUpdated, affected...)
	}
	s.publish(ctx, "review.updated", func() error { return s.events.PublishReviewUpdated(ctx, before, &after) })

	s.logger.InfoContext(ctx, "review updated",
		slog.String("review_id", after.ID),
		slog.String("doctor_id", after.DoctorID),
		slog.Int("rating", after.Rating),
	)

	return &after, nil
}

// DeleteReview removes a review. The author or a moderator may delete it.
func (s *ReviewService) DeleteReview(ctx context.Context, id, userID string, moderator bool) error {
	review, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get review for delete: %w", err)
	}
	if !review.CanDelete(userID, moderator) {
		return apperrors.Forbidden("only the author or a moderator can delete a review")
	}

	if err := s.reviews.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}

	s.trigger.Trigger(ctx, rating.ReasonReviewDeleted, review.DoctorID)
	s.publish(ctx, "review.deleted", func() error { return s.events.PublishReviewDeleted(ctx, review, userID) })

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("review_id", id),
		slog.String("doctor_id", review.DoctorID),
		slog.Bool("by_moderator", moderator && userID != review.PatientID),
	)
	return nil
}

// ListReviews returns a page of a doctor's reviews with the doctor's stored
// rating summary.
func (s *ReviewService) ListReviews(ctx context.Context, doctorID string, page, perPage int) (*ReviewListResult, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	doctor, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}

	reviews, total, err := s.reviews.ListByDoctorID(ctx, doctorID, repository.ReviewFilter{Page: page, PerPage: perPage})
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}

	summary := doctor.RatingSummary()
	return &ReviewListResult{
		Reviews:       reviews,
		Summary:       summary,
		DisplayRating: summary.Rounded(),
		TotalCount:    total,
		Page:          page,
		PerPage:       perPage,
		TotalPages:    totalPages,
	}, nil
}

func (s *ReviewService) publish(ctx context.Context, name string, fn func() error) {
	if s.events == nil {
		return
	}
	if err := fn(); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
	}
}

func validateComment(comment string) error {
	if utf8.RuneCountInString(comment) > domain.MaxCommentLength {
		return apperrors.InvalidInput(fmt.Sprintf("comment must be at most %d characters", domain.MaxCommentLength))
	}
	return nil
}
