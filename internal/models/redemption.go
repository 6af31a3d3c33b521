package models

import "time"

// Location is a coordinate pair reported by the student's device.
type Location struct {
	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
}

// AttendanceRedemption is one successful student submission. Written once, never updated.
type AttendanceRedemption struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Code      string    `db:"code" json:"code"`
	SessionID string    `db:"session_id" json:"session_id"`
	Latitude  *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude *float64  `db:"longitude" json:"longitude,omitempty"`
	TxHash    *string   `db:"tx_hash" json:"tx_hash,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AttendanceRecord joins a redemption with course and student metadata for listings.
type AttendanceRecord struct {
	AttendanceRedemption
	CourseName  string  `db:"course_name" json:"course_name"`
	CourseCode  string  `db:"course_code" json:"course_code"`
	StudentName *string `db:"student_name" json:"student_name,omitempty"`
	RollNumber  *string `db:"roll_number" json:"roll_number,omitempty"`
}

// AttendanceFilter scopes attendance listings.
type AttendanceFilter struct {
	StudentID string
	CourseID  string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}
