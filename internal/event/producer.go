package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/breaker"
	pkgkafka "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/kafka"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/logger"
)

// Kafka topics published by the portal.
const (
	TopicReviewCreated      = pkgkafka.TopicPrefix + ".review.created"
	TopicReviewUpdated      = pkgkafka.TopicPrefix + ".review.updated"
	TopicReviewDeleted      = pkgkafka.TopicPrefix + ".review.deleted"
	TopicRatingUpdated      = pkgkafka.TopicPrefix + ".doctor.rating_updated"
	TopicRecomputeRequested = pkgkafka.TopicPrefix + ".rating.recompute_requested"
)

// Aggregate types.
const (
	AggregateTypeReview = "review"
	AggregateTypeDoctor = "doctor"
)

// SourcePortal identifies events originating from this service.
const SourcePortal = "portal-service"

// ReviewData is the payload of review.created and review.deleted events.
type ReviewData struct {
	ReviewID  string `json:"review_id"`
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Rating    int    `json:"rating"`
	DeletedBy string `json:"deleted_by,omitempty"`
}

// ReviewUpdatedData is the payload of a review.updated event.
type ReviewUpdatedData struct {
	ReviewID         string `json:"review_id"`
	DoctorID         string `json:"doctor_id"`
	PreviousDoctorID string `json:"previous_doctor_id,omitempty"`
	PatientID        string `json:"patient_id"`
	Rating           int    `json:"rating"`
	PreviousRating   int    `json:"previous_rating"`
}

// RatingUpdatedData is the payload of a doctor.rating_updated event.
type RatingUpdatedData struct {
	DoctorID      string  `json:"doctor_id"`
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`
}

// RecomputeRequestedData is the payload of a rating.recompute_requested event.
type RecomputeRequestedData struct {
	DoctorID    string    `json:"doctor_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// Publisher is the part of pkgkafka.Producer the event producer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes portal domain events. Writes go through a circuit
// breaker so a broker outage fails fast instead of stalling requests.
type Producer struct {
	kafka   Publisher
	breaker *breaker.Breaker
	logger  *slog.Logger
}

// NewProducer creates an event producer. br may be nil.
func NewProducer(kafka Publisher, br *breaker.Breaker, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:   kafka,
		breaker: br,
		logger:  logger,
	}
}

// PublishReviewCreated publishes a review.created event.
func (p *Producer) PublishReviewCreated(ctx context.Context, r *domain.Review) error {
	data := ReviewData{
		ReviewID:  r.ID,
		DoctorID:  r.DoctorID,
		PatientID: r.PatientID,
		Rating:    r.Rating,
	}
	return p.publish(ctx, TopicReviewCreated, r.DoctorID, AggregateTypeReview, data)
}

// PublishReviewUpdated publishes a review.updated event.
func (p *Producer) PublishReviewUpdated(ctx context.Context, before, after *domain.Review) error {
	data := ReviewUpdatedData{
		ReviewID:       after.ID,
		DoctorID:       after.DoctorID,
		PatientID:      after.PatientID,
		Rating:         after.Rating,
		PreviousRating: before.Rating,
	}
	if before.DoctorID != after.DoctorID {
		data.PreviousDoctorID = before.DoctorID
	}
	return p.publish(ctx, TopicReviewUpdated, after.DoctorID, AggregateTypeReview, data)
}

// PublishReviewDeleted publishes a review.deleted event.
func (p *Producer) PublishReviewDeleted(ctx context.Context, r *domain.Review, deletedBy string) error {
	data := ReviewData{
		ReviewID:  r.ID,
		DoctorID:  r.DoctorID,
		PatientID: r.PatientID,
		Rating:    r.Rating,
		DeletedBy: deletedBy,
	}
	return p.publish(ctx, TopicReviewDeleted, r.DoctorID, AggregateTypeReview, data)
}

// PublishRatingUpdated publishes a doctor.rating_updated event.
func (p *Producer) PublishRatingUpdated(ctx context.Context, doctorID string, summary domain.RatingSummary) error {
	data := RatingUpdatedData{
		DoctorID:      doctorID,
		AverageRating: summary.AverageRating,
		ReviewCount:   summary.ReviewCount,
	}
	return p.publish(ctx, TopicRatingUpdated, doctorID, AggregateTypeDoctor, data)
}

// PublishRecomputeRequested queues an asynchronous rating recomputation.
func (p *Producer) PublishRecomputeRequested(ctx context.Context, doctorID, reason string) error {
	data := RecomputeRequestedData{
		DoctorID:    doctorID,
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	}
	return p.publish(ctx, TopicRecomputeRequested, doctorID, AggregateTypeDoctor, data)
}

// Review events are keyed by doctor id so a doctor's events stay ordered
// on one partition.
func (p *Producer) publish(ctx context.Context, topic, key, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, key, aggregateType, SourcePortal, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	send := func(ctx context.Context) error {
		return p.kafka.Publish(ctx, topic, event)
	}
	if p.breaker != nil {
		err = p.breaker.Do(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("event_id", event.EventID),
		slog.String("aggregate_id", key),
	)
	return nil
}
