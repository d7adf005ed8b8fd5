package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	pkgkafka "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/kafka"
)

// ErrMissingDoctorID is returned for a recompute request naming no doctor.
var ErrMissingDoctorID = errors.New("recompute request has no doctor id")

// Recomputer recalculates a doctor's derived rating fields.
type Recomputer interface {
	Recompute(ctx context.Context, doctorID string) (*domain.RatingSummary, error)
}

// Consumer processes incoming Kafka events for the portal.
type Consumer struct {
	recomputer Recomputer
	logger     *slog.Logger
}

// NewConsumer creates a new event consumer.
func NewConsumer(recomputer Recomputer, logger *slog.Logger) *Consumer {
	return &Consumer{
		recomputer: recomputer,
		logger:     logger,
	}
}

// HandleRecomputeRequested recomputes the doctor named by a
// rating.recompute_requested event. Errors are returned so the consumer
// retries the message and eventually dead-letters it.
func (c *Consumer) HandleRecomputeRequested(ctx context.Context, event *pkgkafka.Event) error {
	var data RecomputeRequestedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal rating.recompute_requested data: %w", err)
	}
	if data.DoctorID == "" {
		data.DoctorID = event.AggregateID
	}
	if data.DoctorID == "" {
		return ErrMissingDoctorID
	}

	c.logger.InfoContext(ctx, "processing rating.recompute_requested event",
		slog.String("doctor_id", data.DoctorID),
		slog.String("reason", data.Reason),
	)

	summary, err := c.recomputer.Recompute(ctx, data.DoctorID)
	if err != nil {
		return fmt.Errorf("recompute rating for doctor %s: %w", data.DoctorID, err)
	}
	if summary == nil {
		c.logger.InfoContext(ctx, "doctor gone before retry, nothing to recompute",
			slog.String("doctor_id", data.DoctorID),
		)
		return nil
	}

	c.logger.InfoContext(ctx, "doctor rating recomputed from retry queue",
		slog.String("doctor_id", data.DoctorID),
		slog.Float64("rating", summary.AverageRating),
		slog.Int("review_count", summary.ReviewCount),
	)
	return nil
}
