package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendo-api/internal/models"
)

func TestAttendanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance").
		WithArgs(sqlmock.AnyArg(), "student-1", "course-1", "K3F9QZ-ABC", "session-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	lat, lng := 30.769, 76.5785
	record := &models.AttendanceRedemption{StudentID: "student-1", CourseID: "course-1", Code: "K3F9QZ-ABC", SessionID: "session-1", Latitude: &lat, Longitude: &lng}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &models.AttendanceRedemption{StudentID: "student-1", CourseID: "course-1", Code: "A", SessionID: "s"})
	assert.ErrorIs(t, err, ErrDuplicateRedemption)
}

func TestAttendanceRepositorySetTxHash(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance SET tx_hash = $2 WHERE id = $1 AND tx_hash IS NULL")).
		WithArgs("id-1", "0xabc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetTxHash(context.Background(), "id-1", "0xabc"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryList(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "code", "session_id", "latitude", "longitude", "tx_hash", "created_at", "course_name", "course_code", "student_name", "roll_number"}).
		AddRow("id-1", "student-1", "course-1", "K3F9QZ-ABC", "session-1", nil, nil, nil, now, "Distributed Systems", "CS-401", "Ada Lovelace", "R-17")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND a.course_id = $1 ORDER BY a.created_at DESC LIMIT 50 OFFSET 50")).
		WithArgs("course-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance a")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(51))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{CourseID: "course-1", Page: 2})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 51, total)
	assert.Equal(t, "Distributed Systems", records[0].CourseName)
	require.NotNil(t, records[0].StudentName)
	assert.Equal(t, "Ada Lovelace", *records[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
