package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/breaker"
	pkgkafka "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/kafka"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/logger"
)

var errBroker = errors.New("broker down")

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type published struct {
	topic string
	event *pkgkafka.Event
}

type fakeKafka struct {
	mu    sync.Mutex
	sent  []published
	err   error
	calls int
}

func (f *fakeKafka) Publish(_ context.Context, topic string, event *pkgkafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic: topic, event: event})
	return nil
}

func (f *fakeKafka) last(t *testing.T) published {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func sampleReview() *domain.Review {
	return &domain.Review{ID: "rev-1", DoctorID: "doc-1", PatientID: "pat-1", Rating: 4}
}

func TestProducer_PublishReviewCreated(t *testing.T) {
	k := &fakeKafka{}
	p := NewProducer(k, nil, testLogger())

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	require.NoError(t, p.PublishReviewCreated(ctx, sampleReview()))

	msg := k.last(t)
	assert.Equal(t, TopicReviewCreated, msg.topic)
	assert.Equal(t, "portal.review.created", msg.topic)
	assert.Equal(t, "doc-1", msg.event.AggregateID)
	assert.Equal(t, AggregateTypeReview, msg.event.AggregateType)
	assert.Equal(t, SourcePortal, msg.event.Source)
	assert.Equal(t, "corr-1", msg.event.CorrelationID)

	var data ReviewData
	require.NoError(t, msg.event.UnmarshalData(&data))
	assert.Equal(t, ReviewData{ReviewID: "rev-1", DoctorID: "doc-1", PatientID: "pat-1", Rating: 4}, data)
}

func TestProducer_PublishReviewUpdated_Moved(t *testing.T) {
	k := &fakeKafka{}
	p := NewProducer(k, nil, testLogger())

	before := sampleReview()
	after := *before
	after.DoctorID = "doc-2"
	after.Rating = 2

	require.NoError(t, p.PublishReviewUpdated(context.Background(), before, &after))

	msg := k.last(t)
	assert.Equal(t, TopicReviewUpdated, msg.topic)
	assert.Equal(t, "doc-2", msg.event.AggregateID)

	var data ReviewUpdatedData
	require.NoError(t, msg.event.UnmarshalData(&data))
	assert.Equal(t, "doc-1", data.PreviousDoctorID)
	assert.Equal(t, 4, data.PreviousRating)
	assert.Equal(t, 2, data.Rating)
}

func TestProducer_PublishReviewDeleted(t *testing.T) {
	k := &fakeKafka{}
	p := NewProducer(k, nil, testLogger())

	require.NoError(t, p.PublishReviewDeleted(context.Background(), sampleReview(), "mod-1"))

	var data ReviewData
	require.NoError(t, k.last(t).event.UnmarshalData(&data))
	assert.Equal(t, "mod-1", data.DeletedBy)
	assert.Equal(t, TopicReviewDeleted, k.last(t).topic)
}

func TestProducer_PublishRatingUpdated(t *testing.T) {
	k := &fakeKafka{}
	p := NewProducer(k, nil, testLogger())

	require.NoError(t, p.PublishRatingUpdated(context.Background(), "doc-1", domain.NewRatingSummary(2, 9)))

	msg := k.last(t)
	assert.Equal(t, "portal.doctor.rating_updated", msg.topic)
	assert.Equal(t, AggregateTypeDoctor, msg.event.AggregateType)

	var data RatingUpdatedData
	require.NoError(t, msg.event.UnmarshalData(&data))
	assert.Equal(t, RatingUpdatedData{DoctorID: "doc-1", AverageRating: 4.5, ReviewCount: 2}, data)
}

func TestProducer_PublishRecomputeRequested(t *testing.T) {
	k := &fakeKafka{}
	p := NewProducer(k, nil, testLogger())

	require.NoError(t, p.PublishRecomputeRequested(context.Background(), "doc-1", "review_created"))

	msg := k.last(t)
	assert.Equal(t, "portal.rating.recompute_requested", msg.topic)

	var data RecomputeRequestedData
	require.NoError(t, msg.event.UnmarshalData(&data))
	assert.Equal(t, "doc-1", data.DoctorID)
	assert.Equal(t, "review_created", data.Reason)
	assert.WithinDuration(t, time.Now(), data.RequestedAt, time.Minute)
}

func TestProducer_PublishError(t *testing.T) {
	k := &fakeKafka{err: errBroker}
	p := NewProducer(k, nil, testLogger())

	err := p.PublishReviewCreated(context.Background(), sampleReview())
	require.ErrorIs(t, err, errBroker)
	assert.Contains(t, err.Error(), "publish portal.review.created event")
}

func TestProducer_BreakerOpensOnBrokerOutage(t *testing.T) {
	k := &fakeKafka{err: errBroker}
	br := breaker.New(breaker.Config{
		Name:         "kafka-test",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}, testLogger())
	p := NewProducer(k, br, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, p.PublishRatingUpdated(ctx, "doc-1", domain.RatingSummary{}), errBroker)
	}

	err := p.PublishRatingUpdated(ctx, "doc-1", domain.RatingSummary{})
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, 2, k.calls, "open breaker must not reach the broker")
}
