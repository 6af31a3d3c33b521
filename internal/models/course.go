package models

// Course is a teacher-owned class that attendance codes are generated for.
type Course struct {
	ID        string  `db:"id" json:"id"`
	TeacherID string  `db:"teacher_id" json:"teacher_id"`
	Name      string  `db:"name" json:"name"`
	Code      string  `db:"code" json:"code"`
	Schedule  *string `db:"schedule" json:"schedule,omitempty"`
}
