package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendo-api/internal/dto"
	"github.com/noah-isme/attendo-api/internal/models"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
	"github.com/noah-isme/attendo-api/pkg/export"
)

type attendanceLister interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// maxExportRows caps a single export.
const maxExportRows = 5000

// AttendanceService serves attendance history to students and teachers.
type AttendanceService struct {
	records attendanceLister
	courses courseReader
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
}

// AttendanceExport is a rendered attendance sheet.
type AttendanceExport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// NewAttendanceService constructs the attendance service. Nil renderers fall back to defaults.
func NewAttendanceService(records attendanceLister, courses courseReader, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &AttendanceService{records: records, courses: courses, csv: csv, pdf: pdf, logger: logger}
}

// History lists a student's own redemptions, newest first.
func (s *AttendanceService) History(ctx context.Context, studentID string, req dto.AttendanceListRequest) ([]models.AttendanceRecord, *models.Pagination, error) {
	filter := s.filter(req)
	filter.StudentID = studentID
	return s.list(ctx, filter)
}

// CourseAttendance lists redemptions for a course the teacher owns.
func (s *AttendanceService) CourseAttendance(ctx context.Context, teacherID, courseID string, req dto.AttendanceListRequest) ([]models.AttendanceRecord, *models.Pagination, error) {
	if _, err := s.ownedCourse(ctx, teacherID, courseID); err != nil {
		return nil, nil, err
	}
	filter := s.filter(req)
	filter.CourseID = courseID
	return s.list(ctx, filter)
}

// Export renders a course's attendance sheet as csv or pdf.
func (s *AttendanceService) Export(ctx context.Context, teacherID, courseID, format string, req dto.AttendanceListRequest) (*AttendanceExport, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	course, err := s.ownedCourse(ctx, teacherID, courseID)
	if err != nil {
		return nil, err
	}

	filter := s.filter(req)
	filter.CourseID = courseID
	filter.Page = 1
	filter.PageSize = maxExportRows
	rows, _, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	dataset := attendanceDataset(course, rows)
	var body []byte
	switch f {
	case export.FormatPDF:
		body, err = s.pdf.Render(dataset)
	default:
		body, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render attendance export")
	}

	s.logger.Info("attendance exported", zap.String("course_id", courseID), zap.String("format", string(f)), zap.Int("rows", len(rows)))
	return &AttendanceExport{
		Filename:    fmt.Sprintf("%s_attendance_%s.%s", sanitizeFilename(course.Code), time.Now().UTC().Format("20060102"), f),
		ContentType: f.ContentType(),
		Body:        body,
	}, nil
}

func (s *AttendanceService) ownedCourse(ctx context.Context, teacherID, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not teach this course")
	}
	return course, nil
}

func (s *AttendanceService) filter(req dto.AttendanceListRequest) models.AttendanceFilter {
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = 50
	}
	return models.AttendanceFilter{DateFrom: req.DateFrom, DateTo: req.DateTo, Page: page, PageSize: size}
}

func (s *AttendanceService) list(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	rows, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func attendanceDataset(course *models.Course, rows []models.AttendanceRecord) export.Dataset {
	data := export.Dataset{
		Title:   fmt.Sprintf("%s (%s) attendance", course.Name, course.Code),
		Headers: []string{"Student", "Roll number", "Recorded at", "Code", "Ledger tx"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		data.Rows = append(data.Rows, []string{
			deref(row.StudentName, row.StudentID),
			deref(row.RollNumber, "-"),
			row.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			row.Code,
			deref(row.TxHash, "-"),
		})
	}
	return data
}

func deref(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "course"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 60 {
		return result[:60]
	}
	return result
}
