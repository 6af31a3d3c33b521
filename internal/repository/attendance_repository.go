package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/attendo-api/internal/models"
)

// ErrDuplicateRedemption is returned when a student redeems the same code session twice.
var ErrDuplicateRedemption = errors.New("attendance already recorded for session")

const uniqueViolation = "23505"

// AttendanceRepository stores student redemptions.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Create inserts a redemption record.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRedemption) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance (id, student_id, course_id, code, session_id, latitude, longitude, tx_hash, created_at)
        VALUES (:id, :student_id, :course_id, :code, :session_id, :latitude, :longitude, :tx_hash, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateRedemption
		}
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// SetTxHash attaches the ledger receipt once the best-effort mark succeeded.
func (r *AttendanceRepository) SetTxHash(ctx context.Context, id, txHash string) error {
	const query = `UPDATE attendance SET tx_hash = $2 WHERE id = $1 AND tx_hash IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, txHash); err != nil {
		return fmt.Errorf("set attendance tx hash: %w", err)
	}
	return nil
}

// List returns attendance records with course and student metadata, newest first.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("a.course_id = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("a.created_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, filter.DateTo.Add(24*time.Hour))
		conditions = append(conditions, fmt.Sprintf("a.created_at < $%d", len(args)))
	}

	base := fmt.Sprintf(`FROM attendance a
        JOIN courses c ON c.id = a.course_id
        LEFT JOIN profiles p ON p.id = a.student_id
        WHERE %s`, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.course_id, a.code, a.session_id, a.latitude, a.longitude, a.tx_hash, a.created_at,
        c.name AS course_name, c.code AS course_code,
        NULLIF(TRIM(CONCAT(p.first_name, ' ', p.last_name)), '') AS student_name, p.roll_number
        %s ORDER BY a.created_at DESC LIMIT %d OFFSET %d`, base, size, offset)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}
