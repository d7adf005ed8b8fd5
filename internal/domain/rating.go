package domain

import (
	"fmt"
	"math"

	apperrors "github.com/thecolossalsparkle/dbms-marrow-sub000/pkg/errors"
)

// Review ratings are whole stars in [MinRating, MaxRating].
const (
	MinRating = 1
	MaxRating = 5
)

// ValidateRating rejects ratings outside [MinRating, MaxRating].
func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return apperrors.InvalidInput(fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating))
	}
	return nil
}

// RatingSummary is the aggregate of a doctor's reviews.
type RatingSummary struct {
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`
}

// NewRatingSummary builds the summary from a review count and rating sum.
// With no reviews the average is 0.
func NewRatingSummary(count int, sum int64) RatingSummary {
	if count <= 0 {
		return RatingSummary{}
	}
	return RatingSummary{
		AverageRating: float64(sum) / float64(count),
		ReviewCount:   count,
	}
}

// Rounded returns the average rounded to one decimal place for display.
func (s RatingSummary) Rounded() float64 {
	return math.Round(s.AverageRating*10) / 10
}
