// Package rating keeps each doctor's derived rating and review count
// consistent with the doctor's reviews.
package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/logger"
)

const tracerName = "github.com/thecolossalsparkle/dbms-marrow-sub000/internal/rating"

// Trigger reasons.
const (
	ReasonReviewCreated = "review_created"
	ReasonReviewUpdated = "review_updated"
	ReasonReviewDeleted = "review_deleted"
	ReasonRetry         = "retry"
	ReasonManual        = "manual"
)

// Store reads reviews and writes the derived doctor fields.
type Store interface {
	// RecomputeDoctorRating returns apperrors.ErrNotFound for an unknown doctor.
	RecomputeDoctorRating(ctx context.Context, doctorID string) (domain.RatingSummary, error)
	ListDoctorIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

// Publisher announces rating changes and queues retries.
type Publisher interface {
	PublishRatingUpdated(ctx context.Context, doctorID string, summary domain.RatingSummary) error
	PublishRecomputeRequested(ctx context.Context, doctorID, reason string) error
}

// CacheInvalidator drops stale cached doctor profiles.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, doctorID string) error
}

// Config tunes the reconciliation sweep.
type Config struct {
	BatchSize   int
	Concurrency int
}

func (c *Config) withDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// SweepResult counts the outcome of a reconciliation sweep.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Missing int `json:"missing"`
	Failed  int `json:"failed"`
}

// Aggregator recomputes doctor ratings. All writes of the derived fields go
// through it.
type Aggregator struct {
	store     Store
	publisher Publisher
	cache     CacheInvalidator
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewAggregator creates an Aggregator. publisher and cache may be nil.
func NewAggregator(store Store, publisher Publisher, cache CacheInvalidator, cfg Config, logger *slog.Logger) *Aggregator {
	cfg.withDefaults()
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if cache == nil {
		cache = noopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:     store,
		publisher: publisher,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Recompute recalculates the doctor's rating and review count from all of
// its current reviews and stores both. It returns nil, nil when the doctor
// does not exist. On error nothing was written.
func (a *Aggregator) Recompute(ctx context.Context, doctorID string) (*domain.RatingSummary, error) {
	return a.recompute(ctx, doctorID, true)
}

func (a *Aggregator) recompute(ctx context.Context, doctorID string, announce bool) (*domain.RatingSummary, error) {
	ctx, span := a.tracer.Start(ctx, "rating.Recompute",
		trace.WithAttributes(attribute.String("doctor.id", doctorID)),
	)
	defer span.End()

	start := time.Now()
	summary, err := a.store.RecomputeDoctorRating(ctx, doctorID)
	recomputeDuration.Observe(time.Since(start).Seconds())

	log := logger.WithContext(ctx, a.logger)

	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			recomputeTotal.WithLabelValues(resultMissing).Inc()
			span.SetAttributes(attribute.Bool("doctor.missing", true))
			log.DebugContext(ctx, "rating recompute skipped, doctor not found",
				slog.String("doctor_id", doctorID),
			)
			return nil, nil
		}
		recomputeTotal.WithLabelValues(resultFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("recompute rating for doctor %s: %w", doctorID, err)
	}

	recomputeTotal.WithLabelValues(resultUpdated).Inc()
	span.SetAttributes(
		attribute.Float64("rating.average", summary.AverageRating),
		attribute.Int("rating.review_count", summary.ReviewCount),
	)

	if err := a.cache.Invalidate(ctx, doctorID); err != nil {
		log.WarnContext(ctx, "failed to invalidate doctor cache",
			slog.String("doctor_id", doctorID),
			slog.String("error", err.Error()),
		)
	}

	if announce {
		if err := a.publisher.PublishRatingUpdated(ctx, doctorID, summary); err != nil {
			log.WarnContext(ctx, "failed to publish rating updated event",
				slog.String("doctor_id", doctorID),
				slog.String("error", err.Error()),
			)
		}
	}

	log.DebugContext(ctx, "doctor rating recomputed",
		slog.String("doctor_id", doctorID),
		slog.Float64("rating", summary.AverageRating),
		slog.Int("review_count", summary.ReviewCount),
	)

	return &summary, nil
}

// Trigger recomputes the given doctors after a review mutation has
// committed. It never fails the caller: a failed recomputation is logged
// and queued for asynchronous retry, and the periodic sweep repairs anything
// the retry queue misses. Duplicate and empty ids are skipped.
func (a *Aggregator) Trigger(ctx context.Context, reason string, doctorIDs ...string) {
	// The mutation already committed; a client disconnect must not skip the
	// recomputation.
	ctx = context.WithoutCancel(ctx)
	log := logger.WithContext(ctx, a.logger)

	for _, id := range dedupe(doctorIDs) {
		if _, err := a.Recompute(ctx, id); err != nil {
			triggerFailuresTotal.WithLabelValues(reason).Inc()
			log.WarnContext(ctx, "rating recompute failed, queueing retry",
				slog.String("doctor_id", id),
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
			if perr := a.publisher.PublishRecomputeRequested(ctx, id, reason); perr != nil {
				retryRequestFailuresTotal.Inc()
				log.ErrorContext(ctx, "failed to queue rating recompute, left to reconciliation sweep",
					slog.String("doctor_id", id),
					slog.String("error", perr.Error()),
				)
			}
		}
	}
}

// Sweep recomputes every doctor, paging through ids in batches and running
// up to Config.Concurrency recomputations at once. Per-doctor failures are
// counted; a failure to list ids aborts the sweep.
func (a *Aggregator) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := a.tracer.Start(ctx, "rating.Sweep")
	defer span.End()

	start := time.Now()
	var (
		result                   SweepResult
		updated, missing, failed atomic.Int64
		after                    string
	)

	finish := func(err error) (SweepResult, error) {
		result.Updated = int(updated.Load())
		result.Missing = int(missing.Load())
		result.Failed = int(failed.Load())
		sweepDuration.Observe(time.Since(start).Seconds())

		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		sweepRunsTotal.WithLabelValues(status).Inc()
		span.SetAttributes(
			attribute.Int("sweep.scanned", result.Scanned),
			attribute.Int("sweep.updated", result.Updated),
			attribute.Int("sweep.failed", result.Failed),
		)
		return result, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		ids, err := a.store.ListDoctorIDs(ctx, after, a.cfg.BatchSize)
		if err != nil {
			return finish(fmt.Errorf("list doctor ids: %w", err))
		}
		if len(ids) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(a.cfg.Concurrency)
		for _, id := range ids {
			g.Go(func() error {
				summary, err := a.recompute(ctx, id, false)
				switch {
				case err != nil:
					failed.Add(1)
					a.logger.WarnContext(ctx, "sweep recompute failed",
						slog.String("doctor_id", id),
						slog.String("error", err.Error()),
					)
				case summary == nil:
					missing.Add(1)
				default:
					updated.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		result.Scanned += len(ids)
		if len(ids) < a.cfg.BatchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	return finish(nil)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type noopPublisher struct{}

func (noopPublisher) PublishRatingUpdated(context.Context, string, domain.RatingSummary) error {
	return nil
}

func (noopPublisher) PublishRecomputeRequested(context.Context, string, string) error {
	return nil
}

type noopCache struct{}

func (noopCache) Invalidate(context.Context, string) error { return nil }
