package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendo-api/internal/dto"
	"github.com/noah-isme/attendo-api/internal/middleware"
	"github.com/noah-isme/attendo-api/internal/models"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// listRequestFromQuery reads page, page_size, from and to (YYYY-MM-DD or RFC3339).
func listRequestFromQuery(c *gin.Context) (dto.AttendanceListRequest, error) {
	req := dto.AttendanceListRequest{Page: 1, PageSize: 50}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return req, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer")
		}
		req.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > 500 {
			return req, appErrors.Clone(appErrors.ErrValidation, "page_size must be between 1 and 500")
		}
		req.PageSize = size
	}
	from, err := parseDateParam(c.Query("from"), false)
	if err != nil {
		return req, err
	}
	to, err := parseDateParam(c.Query("to"), true)
	if err != nil {
		return req, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return req, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	req.DateFrom, req.DateTo = from, to
	return req, nil
}

func parseDateParam(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dates must be YYYY-MM-DD or RFC3339")
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}
