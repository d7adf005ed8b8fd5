package domain

import (
	"time"
)

// Doctor is a practitioner listed on the portal. Rating and ReviewCount are
// derived from the doctor's reviews and are written only by the rating
// aggregator.
type Doctor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Specialty   string    `json:"specialty"`
	Title       string    `json:"title"`
	Bio         string    `json:"bio"`
	IsActive    bool      `json:"is_active"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RatingSummary returns the stored derived fields as a summary.
func (d *Doctor) RatingSummary() RatingSummary {
	return RatingSummary{AverageRating: d.Rating, ReviewCount: d.ReviewCount}
}

// Doctor list sort orders.
const (
	SortByRating  = "rating"
	SortByReviews = "reviews"
	SortByName    = "name"
)

// ValidSorts lists the accepted sort values.
func ValidSorts() []string {
	return []string{SortByRating, SortByReviews, SortByName}
}
