package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendo-api/internal/models"
)

// AttendanceCodeRepository persists minted codes for redemption lookups.
type AttendanceCodeRepository struct {
	db *sqlx.DB
}

// NewAttendanceCodeRepository constructs the repository.
func NewAttendanceCodeRepository(db *sqlx.DB) *AttendanceCodeRepository {
	return &AttendanceCodeRepository{db: db}
}

// Create stores a code. A code minted twice keeps the later expiry.
func (r *AttendanceCodeRepository) Create(ctx context.Context, code *models.AttendanceCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_codes (id, teacher_id, course_id, session_id, code, expires_at, created_at)
        VALUES (:id, :teacher_id, :course_id, :session_id, :code, :expires_at, :created_at)
        ON CONFLICT (code) DO UPDATE SET expires_at = GREATEST(attendance_codes.expires_at, EXCLUDED.expires_at)`
	if _, err := r.db.NamedExecContext(ctx, query, code); err != nil {
		return fmt.Errorf("create attendance code: %w", err)
	}
	return nil
}

// FindActiveByCode returns the code when it has not expired at now. A miss yields sql.ErrNoRows.
func (r *AttendanceCodeRepository) FindActiveByCode(ctx context.Context, code string, now time.Time) (*models.AttendanceCode, error) {
	const query = `SELECT id, teacher_id, course_id, session_id, code, expires_at, created_at
        FROM attendance_codes
        WHERE code = $1 AND expires_at > $2`
	var record models.AttendanceCode
	if err := r.db.GetContext(ctx, &record, query, code, now); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteExpired removes codes that expired before the cutoff.
func (r *AttendanceCodeRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_codes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired attendance codes: %w", err)
	}
	return res.RowsAffected()
}
