package rating

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
)

var errStorage = errors.New("storage unavailable")

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type storedDoctor struct {
	rating float64
	count  int
}

type storedReview struct {
	doctorID string
	rating   int
}

// memStore is an in-memory Store. The aggregate read and the write of both
// derived fields happen under one lock, mirroring the row-locked transaction.
type memStore struct {
	mu       sync.Mutex
	doctors  map[string]*storedDoctor
	reviews  map[string]storedReview
	readErr  map[string]error
	writeErr map[string]error
	listErr  error
	listed   int
}

func newMemStore() *memStore {
	return &memStore{
		doctors:  make(map[string]*storedDoctor),
		reviews:  make(map[string]storedReview),
		readErr:  make(map[string]error),
		writeErr: make(map[string]error),
	}
}

func (s *memStore) addDoctor(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[id] = &storedDoctor{}
}

func (s *memStore) putReview(id, doctorID string, rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[id] = storedReview{doctorID: doctorID, rating: rating}
}

func (s *memStore) deleteReview(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reviews, id)
}

func (s *memStore) doctor(id string) (storedDoctor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[id]
	if !ok {
		return storedDoctor{}, false
	}
	return *d, true
}

func (s *memStore) setDerived(id string, rating float64, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[id] = &storedDoctor{rating: rating, count: count}
}

func (s *memStore) RecomputeDoctorRating(_ context.Context, doctorID string) (domain.RatingSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.doctors[doctorID]
	if !ok {
		return domain.RatingSummary{}, apperrors.NotFound("doctor", doctorID)
	}
	if err := s.readErr[doctorID]; err != nil {
		return domain.RatingSummary{}, err
	}

	var (
		count int
		sum   int64
	)
	for _, r := range s.reviews {
		if r.doctorID == doctorID {
			count++
			sum += int64(r.rating)
		}
	}
	summary := domain.NewRatingSummary(count, sum)

	if err := s.writeErr[doctorID]; err != nil {
		return domain.RatingSummary{}, err
	}
	d.rating = summary.AverageRating
	d.count = summary.ReviewCount
	return summary, nil
}

func (s *memStore) ListDoctorIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listed++
	if s.listErr != nil {
		return nil, s.listErr
	}

	ids := make([]string, 0, len(s.doctors))
	for id := range s.doctors {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *memStore) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listed
}

type retryRequest struct {
	doctorID string
	reason   string
}

type fakePublisher struct {
	mu        sync.Mutex
	updated   []string
	retries   []retryRequest
	updateErr error
	retryErr  error
}

func (p *fakePublisher) PublishRatingUpdated(_ context.Context, doctorID string, _ domain.RatingSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, doctorID)
	return p.updateErr
}

func (p *fakePublisher) PublishRecomputeRequested(_ context.Context, doctorID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries = append(p.retries, retryRequest{doctorID: doctorID, reason: reason})
	return p.retryErr
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
	err         error
}

func (c *fakeCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return c.err
}
