package domain

import (
	"time"
)

// MaxCommentLength bounds Review.Comment in characters.
const MaxCommentLength = 2000

// Review is a patient's rating of a doctor. It belongs to exactly one doctor.
type Review struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctor_id"`
	PatientID string    `json:"patient_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatingAffected returns the doctors whose rating summary changes when
// before is replaced by after: none for a comment-only edit, the doctor for
// a rating change, and both doctors when the review moved.
func RatingAffected(before, after *Review) []string {
	switch {
	case before.DoctorID != after.DoctorID:
		return []string{before.DoctorID, after.DoctorID}
	case before.Rating != after.Rating:
		return []string{after.DoctorID}
	default:
		return nil
	}
}

// CanDelete reports whether the caller may delete r: its author or a moderator.
func (r *Review) CanDelete(userID string, moderator bool) bool {
	return moderator || (userID != "" && userID == r.PatientID)
}

// CanEdit reports whether the caller may edit r. Only the author may.
func (r *Review) CanEdit(userID string) bool {
	return userID != "" && userID == r.PatientID
}
