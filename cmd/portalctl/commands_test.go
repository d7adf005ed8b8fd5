package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/domain"
	"github.com/thecolossalsparkle/dbms-marrow-sub000/internal/rating"
)

const knownDoctor = "550e8400-e29b-41d4-a716-446655440001"

type fakeRatings struct {
	sweep     rating.SweepResult
	sweepErr  error
	summaries map[string]*domain.RatingSummary
	called    []string
}

func (f *fakeRatings) Recompute(_ context.Context, doctorID string) (*domain.RatingSummary, error) {
	f.called = append(f.called, doctorID)
	return f.summaries[doctorID], nil
}

func (f *fakeRatings) Sweep(context.Context) (rating.SweepResult, error) {
	return f.sweep, f.sweepErr
}

func run(t *testing.T, ratings *fakeRatings, migrate func(context.Context) ([]string, error), args ...string) (string, bool, error) {
	t.Helper()
	closed := false
	open := func(context.Context, *slog.Logger) (*env, error) {
		return &env{ratings: ratings, migrate: migrate, close: func() { closed = true }}, nil
	}

	var out, errOut bytes.Buffer
	cmd := newRootCmd(open)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), closed, err
}

func TestReconcile_PrintsCounts(t *testing.T) {
	ratings := &fakeRatings{sweep: rating.SweepResult{Scanned: 3, Updated: 3}}

	out, closed, err := run(t, ratings, nil, "reconcile")

	require.NoError(t, err)
	assert.True(t, closed)
	assert.JSONEq(t, `{"scanned":3,"updated":3,"missing":0,"failed":0}`, out)
}

func TestReconcile_FailuresExitNonZero(t *testing.T) {
	ratings := &fakeRatings{sweep: rating.SweepResult{Scanned: 3, Updated: 2, Failed: 1}}

	out, _, err := run(t, ratings, nil, "reconcile")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 doctors failed")
	assert.Contains(t, out, `"failed":1`)
}

func TestReconcile_ListingError(t *testing.T) {
	ratings := &fakeRatings{sweepErr: errors.New("list doctor ids: timeout")}

	_, closed, err := run(t, ratings, nil, "reconcile")

	require.Error(t, err)
	assert.True(t, closed)
}

func TestRecompute_ReportsEachDoctor(t *testing.T) {
	missing := "550e8400-e29b-41d4-a716-446655440099"
	ratings := &fakeRatings{summaries: map[string]*domain.RatingSummary{
		knownDoctor: {AverageRating: 4.5, ReviewCount: 2},
	}}

	out, _, err := run(t, ratings, nil, "recompute", knownDoctor, missing)

	require.NoError(t, err)
	assert.Equal(t, []string{knownDoctor, missing}, ratings.called)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"doctor_id":"`+knownDoctor+`","found":true,"average_rating":4.5,"review_count":2}`, lines[0])
	assert.JSONEq(t, `{"doctor_id":"`+missing+`","found":false,"average_rating":0,"review_count":0}`, lines[1])
}

func TestRecompute_RejectsBadID(t *testing.T) {
	ratings := &fakeRatings{}

	_, closed, err := run(t, ratings, nil, "recompute", "dr-who")

	require.Error(t, err)
	assert.False(t, closed)
	assert.Empty(t, ratings.called)
}

func TestRecompute_RequiresArgs(t *testing.T) {
	_, _, err := run(t, &fakeRatings{}, nil, "recompute")
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	migrate := func(context.Context) ([]string, error) {
		return []string{"000001_create_doctors.up.sql", "000002_create_reviews.up.sql"}, nil
	}

	out, _, err := run(t, &fakeRatings{}, migrate, "migrate")

	require.NoError(t, err)
	assert.Equal(t, "applied 000001_create_doctors.up.sql\napplied 000002_create_reviews.up.sql\n", out)
}

func TestMigrate_UpToDate(t *testing.T) {
	migrate := func(context.Context) ([]string, error) { return nil, nil }

	out, _, err := run(t, &fakeRatings{}, migrate, "migrate")

	require.NoError(t, err)
	assert.Equal(t, "schema is up to date\n", out)
}
