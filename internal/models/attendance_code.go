package models

import "time"

// AttendanceCode is the persisted form of a minted token that students redeem against.
type AttendanceCode struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Code      string    `db:"code" json:"code"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the code is past its expiry at the given instant.
func (c AttendanceCode) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
