package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/attendo-api/internal/dto"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
	"github.com/noah-isme/attendo-api/pkg/response"
)

type rotationService interface {
	Start(ctx context.Context, teacherID string, req dto.StartRotationRequest) (dto.RotationSnapshot, error)
	Stop(teacherID string) dto.RotationSnapshot
	Snapshot(teacherID string) dto.RotationSnapshot
	SetBatchSize(teacherID string, req dto.BatchSizeRequest) (dto.RotationSnapshot, error)
	Subscribe(teacherID string) (<-chan dto.RotationSnapshot, func())
}

// RotationHandler exposes the teacher's code display controls.
type RotationHandler struct {
	service   rotationService
	validator *validator.Validate
}

// NewRotationHandler constructs the handler.
func NewRotationHandler(service rotationService, validate *validator.Validate) *RotationHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &RotationHandler{service: service, validator: validate}
}

// Start godoc
// @Summary Start rotating attendance codes for a course
// @Tags Rotation
// @Accept json
// @Produce json
// @Param payload body dto.StartRotationRequest true "Course to generate codes for"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rotation/start [post]
func (h *RotationHandler) Start(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.StartRotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "course_id is required"))
		return
	}
	snapshot, err := h.service.Start(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// Stop godoc
// @Summary Stop rotating attendance codes
// @Tags Rotation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rotation/stop [post]
func (h *RotationHandler) Stop(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, h.service.Stop(claims.UserID), nil)
}

// Current godoc
// @Summary Current code, countdown and batch progress
// @Tags Rotation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rotation [get]
func (h *RotationHandler) Current(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, h.service.Snapshot(claims.UserID), nil)
}

// SetBatchSize godoc
// @Summary Change the batch size while idle
// @Description Under the per_code commitment policy the size is kept but each code is still committed alone.
// @Tags Rotation
// @Accept json
// @Produce json
// @Param payload body dto.BatchSizeRequest true "Codes per batch (1-50)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /rotation/batch-size [put]
func (h *RotationHandler) SetBatchSize(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BatchSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.ErrInvalidBatchSize)
		return
	}
	snapshot, err := h.service.SetBatchSize(claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}
