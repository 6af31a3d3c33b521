package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendo-api/internal/dto"
	"github.com/noah-isme/attendo-api/internal/models"
	"github.com/noah-isme/attendo-api/internal/service"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
	"github.com/noah-isme/attendo-api/pkg/response"
)

type redemptionService interface {
	Redeem(ctx context.Context, studentID string, req dto.RedeemRequest) (*dto.RedeemResponse, error)
}

type attendanceService interface {
	History(ctx context.Context, studentID string, req dto.AttendanceListRequest) ([]models.AttendanceRecord, *models.Pagination, error)
	CourseAttendance(ctx context.Context, teacherID, courseID string, req dto.AttendanceListRequest) ([]models.AttendanceRecord, *models.Pagination, error)
	Export(ctx context.Context, teacherID, courseID, format string, req dto.AttendanceListRequest) (*service.AttendanceExport, error)
}

// AttendanceHandler serves code redemption and attendance history.
type AttendanceHandler struct {
	redemption redemptionService
	attendance attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(redemption redemptionService, attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{redemption: redemption, attendance: attendance}
}

// Redeem godoc
// @Summary Submit an attendance code
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.RedeemRequest true "Code and optional device location"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /attendance/redeem [post]
func (h *AttendanceHandler) Redeem(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.redemption.Redeem(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Mine godoc
// @Summary List the caller's attendance
// @Tags Attendance
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/me [get]
func (h *AttendanceHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := listRequestFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, page, err := h.attendance.History(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, page)
}

// Course godoc
// @Summary List attendance for a course
// @Tags Attendance
// @Produce json
// @Param id path string true "Course ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{id}/attendance [get]
func (h *AttendanceHandler) Course(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := listRequestFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, page, err := h.attendance.CourseAttendance(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, page)
}

// Export godoc
// @Summary Download a course attendance sheet
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv or pdf"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /courses/{id}/attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := listRequestFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	out, err := h.attendance.Export(c.Request.Context(), claims.UserID, c.Param("id"), strings.TrimSpace(c.Query("format")), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, out.Filename, out.ContentType, out.Body)
}
