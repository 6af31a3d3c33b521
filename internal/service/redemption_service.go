package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendo-api/internal/dto"
	"github.com/noah-isme/attendo-api/internal/models"
	"github.com/noah-isme/attendo-api/internal/repository"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
	"github.com/noah-isme/attendo-api/pkg/jobs"
	"github.com/noah-isme/attendo-api/pkg/ledger"
)

// LedgerRetryJobType tags queued ledger marks.
const LedgerRetryJobType = "ledger_redeem"

type activeCodeLookup interface {
	LookupActive(ctx context.Context, code string) (*models.AttendanceCode, error)
}

type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
}

type redemptionStore interface {
	Create(ctx context.Context, record *models.AttendanceRedemption) error
	SetTxHash(ctx context.Context, id, txHash string) error
}

type ledgerRedeemer interface {
	Redeem(ctx context.Context, code, studentID string) ledger.Result
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type redemptionMetrics interface {
	Redemption(outcome string)
	LedgerCall(operation, status string)
}

// LedgerRetry is the payload of a queued ledger mark.
type LedgerRetry struct {
	RedemptionID string
	Code         string
	StudentID    string
}

// RedemptionConfig tunes redemption.
type RedemptionConfig struct {
	LedgerTimeout time.Duration
}

// RedemptionService validates a student's code and records attendance. The database record
// is authoritative; the ledger mark is best effort and never rolls it back.
type RedemptionService struct {
	tokens     activeCodeLookup
	enrollment enrollmentChecker
	records    redemptionStore
	ledger     ledgerRedeemer
	geofence   *GeofenceService
	queue      jobDispatcher
	validator  *validator.Validate
	metrics    redemptionMetrics
	clock      Clock
	logger     *zap.Logger
	cfg        RedemptionConfig
}

// NewRedemptionService constructs the service.
func NewRedemptionService(
	tokens activeCodeLookup,
	enrollment enrollmentChecker,
	records redemptionStore,
	ledgerClient ledgerRedeemer,
	geofence *GeofenceService,
	validate *validator.Validate,
	metrics redemptionMetrics,
	logger *zap.Logger,
	cfg RedemptionConfig,
) *RedemptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if ledgerClient == nil {
		ledgerClient = ledger.Disabled{}
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 20 * time.Second
	}
	return &RedemptionService{
		tokens:     tokens,
		enrollment: enrollment,
		records:    records,
		ledger:     ledgerClient,
		geofence:   geofence,
		validator:  validate,
		metrics:    metrics,
		clock:      SystemClock(),
		logger:     logger,
		cfg:        cfg,
	}
}

// SetRetryQueue wires the queue that retries failed ledger marks.
func (s *RedemptionService) SetRetryQueue(queue jobDispatcher) {
	s.queue = queue
}

// Redeem exchanges a live code for an attendance record.
func (s *RedemptionService) Redeem(ctx context.Context, studentID string, req dto.RedeemRequest) (*dto.RedeemResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid redemption payload")
	}

	code, err := s.tokens.LookupActive(ctx, NormalizeCode(req.Code))
	if err != nil {
		s.observe("invalid_code")
		return nil, err
	}

	enrolled, err := s.enrollment.IsEnrolled(ctx, code.CourseID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		s.observe("not_enrolled")
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not enrolled in this course")
	}

	var distance *float64
	if s.geofence.Enabled() {
		if req.Latitude == nil || req.Longitude == nil {
			s.observe("no_location")
			return nil, appErrors.ErrGeolocationUnavailable
		}
		result := s.geofence.Check(*req.Latitude, *req.Longitude)
		d := roundKm(result.DistanceKm)
		distance = &d
		if !result.Within {
			s.observe("outside_geofence")
			msg := fmt.Sprintf("you are %.2f km from campus; attendance can only be marked within %.2f km", d, s.geofence.RadiusKm())
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrOutsideGeofence, msg), map[string]interface{}{
				"distance_km": d,
				"radius_km":   s.geofence.RadiusKm(),
			})
		}
	}

	sessionID := code.SessionID
	if sessionID == "" {
		sessionID = code.Code
	}
	record := &models.AttendanceRedemption{
		StudentID: studentID,
		CourseID:  code.CourseID,
		Code:      code.Code,
		SessionID: sessionID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		CreatedAt: s.clock.Now(),
	}
	if err := s.records.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateRedemption) {
			s.observe("duplicate")
			return nil, appErrors.ErrAlreadyRedeemed
		}
		s.observe("persist_failed")
		return nil, appErrors.Wrap(err, appErrors.ErrPersistenceFailure.Code, appErrors.ErrPersistenceFailure.Status, appErrors.ErrPersistenceFailure.Message)
	}
	s.observe("recorded")

	resp := &dto.RedeemResponse{
		RedemptionID: record.ID,
		CourseID:     record.CourseID,
		Recorded:     true,
		RecordedAt:   record.CreatedAt,
		DistanceKm:   distance,
	}
	resp.Ledger = s.markOnLedger(ctx, record)
	if resp.Ledger.Status == ledger.StatusFailed && retryable(resp.Ledger) {
		resp.LedgerQueued = s.enqueueRetry(record)
	}
	return resp, nil
}

func (s *RedemptionService) markOnLedger(ctx context.Context, record *models.AttendanceRedemption) ledger.Result {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerTimeout)
	defer cancel()

	result := s.ledger.Redeem(ctx, record.Code, record.StudentID)
	if s.metrics != nil {
		s.metrics.LedgerCall("redeem", string(result.Status))
	}
	switch result.Status {
	case ledger.StatusCommitted:
		if err := s.records.SetTxHash(ctx, record.ID, result.TxHash); err != nil {
			s.logger.Warn("store redemption tx hash", zap.String("redemption_id", record.ID), zap.Error(err))
		} else {
			tx := result.TxHash
			record.TxHash = &tx
		}
	case ledger.StatusFailed:
		s.logger.Warn("ledger redemption failed; database record kept",
			zap.String("redemption_id", record.ID),
			zap.String("failure", string(result.Failure)),
			zap.String("error", result.Error),
		)
	}
	return result
}

func (s *RedemptionService) enqueueRetry(record *models.AttendanceRedemption) bool {
	if s.queue == nil {
		return false
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:   record.ID,
		Type: LedgerRetryJobType,
		Payload: LedgerRetry{
			RedemptionID: record.ID,
			Code:         record.Code,
			StudentID:    record.StudentID,
		},
	})
	if err != nil {
		s.logger.Warn("enqueue ledger retry", zap.String("redemption_id", record.ID), zap.Error(err))
		return false
	}
	return true
}

// HandleLedgerRetry is the queue handler for failed ledger marks.
func (s *RedemptionService) HandleLedgerRetry(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(LedgerRetry)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerTimeout)
	defer cancel()

	result := s.ledger.Redeem(ctx, payload.Code, payload.StudentID)
	if s.metrics != nil {
		s.metrics.LedgerCall("redeem_retry", string(result.Status))
	}
	switch {
	case result.Success():
		if err := s.records.SetTxHash(ctx, payload.RedemptionID, result.TxHash); err != nil {
			return fmt.Errorf("store tx hash for %s: %w", payload.RedemptionID, err)
		}
		return nil
	case result.Status == ledger.StatusUnavailable:
		return jobs.Permanent(appErrors.Clone(appErrors.ErrLedgerUnavailable, result.Error))
	case !retryable(result):
		return jobs.Permanent(appErrors.Clone(appErrors.ErrLedgerCallFailure, result.Error))
	default:
		return appErrors.Clone(appErrors.ErrLedgerCallFailure, result.Error)
	}
}

// retryable excludes failures that repeat deterministically.
func retryable(result ledger.Result) bool {
	switch result.Failure {
	case ledger.FailureAlreadyMarked, ledger.FailureReverted, ledger.FailureRejected:
		return false
	}
	return true
}

func (s *RedemptionService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.Redemption(outcome)
	}
}

func roundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
