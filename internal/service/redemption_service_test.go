package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendo-api/internal/dto"
	"github.com/noah-isme/attendo-api/internal/models"
	"github.com/noah-isme/attendo-api/internal/repository"
	"github.com/noah-isme/attendo-api/pkg/config"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
	"github.com/noah-isme/attendo-api/pkg/jobs"
	"github.com/noah-isme/attendo-api/pkg/ledger"
)

type codeLookupStub struct {
	codes map[string]models.AttendanceCode
}

func (s codeLookupStub) LookupActive(ctx context.Context, code string) (*models.AttendanceCode, error) {
	c, ok := s.codes[code]
	if !ok {
		return nil, appErrors.ErrInvalidOrExpiredCode
	}
	return &c, nil
}

type enrollmentStub struct {
	enrolled map[string]bool
}

func (s enrollmentStub) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	return s.enrolled[courseID+"/"+studentID], nil
}

type redemptionStoreStub struct {
	mu       sync.Mutex
	records  []models.AttendanceRedemption
	sessions map[string]bool
	txHashes map[string]string
	err      error
}

func newRedemptionStoreStub() *redemptionStoreStub {
	return &redemptionStoreStub{sessions: map[string]bool{}, txHashes: map[string]string{}}
}

func (s *redemptionStoreStub) Create(ctx context.Context, record *models.AttendanceRedemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	key := record.StudentID + "/" + record.SessionID
	if s.sessions[key] {
		return repository.ErrDuplicateRedemption
	}
	s.sessions[key] = true
	record.ID = "rec-" + record.StudentID
	s.records = append(s.records, *record)
	return nil
}

func (s *redemptionStoreStub) SetTxHash(ctx context.Context, id, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txHashes[id] = txHash
	return nil
}

type redeemLedgerStub struct {
	result ledger.Result
	calls  int
}

func (l *redeemLedgerStub) Redeem(ctx context.Context, code, studentID string) ledger.Result {
	l.calls++
	return l.result
}

type dispatcherStub struct {
	jobs []jobs.Job
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	d.jobs = append(d.jobs, job)
	return nil
}

type redemptionFixture struct {
	svc    *RedemptionService
	store  *redemptionStoreStub
	ledger *redeemLedgerStub
	queue  *dispatcherStub
}

func newRedemptionFixture(fence config.GeofenceConfig, result ledger.Result) *redemptionFixture {
	lookup := codeLookupStub{codes: map[string]models.AttendanceCode{
		"K3F9QZ-LOYW3V28": {Code: "K3F9QZ-LOYW3V28", CourseID: "course-1", SessionID: "session-1", ExpiresAt: time.Now().Add(time.Minute)},
		"AAAAAA-LOYW3V29": {Code: "AAAAAA-LOYW3V29", CourseID: "course-1", SessionID: "session-1", ExpiresAt: time.Now().Add(time.Minute)},
	}}
	enrollment := enrollmentStub{enrolled: map[string]bool{"course-1/student-1": true}}
	store := newRedemptionStoreStub()
	ledgerStub := &redeemLedgerStub{result: result}
	queue := &dispatcherStub{}

	svc := NewRedemptionService(lookup, enrollment, store, ledgerStub, NewGeofenceService(fence), nil, nil, nil, RedemptionConfig{LedgerTimeout: time.Second})
	svc.SetRetryQueue(queue)
	return &redemptionFixture{svc: svc, store: store, ledger: ledgerStub, queue: queue}
}

func coords(lat, lon float64) (*float64, *float64) {
	return &lat, &lon
}

func TestRedeemRecordsAttendanceAndStoresTxHash(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Result{Status: ledger.StatusCommitted, TxHash: "0xabc"})

	resp, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: " k3f9qz-loyw3v28 "})
	require.NoError(t, err)
	assert.True(t, resp.Recorded)
	assert.Equal(t, "course-1", resp.CourseID)
	assert.Equal(t, ledger.StatusCommitted, resp.Ledger.Status)
	assert.False(t, resp.LedgerQueued)
	assert.Equal(t, "0xabc", f.store.txHashes[resp.RedemptionID])
	require.Len(t, f.store.records, 1)
	assert.Equal(t, "session-1", f.store.records[0].SessionID)
}

func TestRedeemUnknownCode(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Unavailable(""))

	_, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "ZZZZZZ-000000"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidOrExpiredCode)
	assert.Empty(t, f.store.records)
}

func TestRedeemRejectsInvalidPayload(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Unavailable(""))

	_, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "abc"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRedeemRequiresEnrollment(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Unavailable(""))

	_, err := f.svc.Redeem(context.Background(), "student-2", dto.RedeemRequest{Code: "K3F9QZ-LOYW3V28"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Empty(t, f.store.records)
}

func TestRedeemGeofenceRequiresLocation(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{Enabled: true, Latitude: 30.7690, Longitude: 76.5785, RadiusKm: 0.2}, ledger.Unavailable(""))

	_, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "K3F9QZ-LOYW3V28"})
	assert.ErrorIs(t, err, appErrors.ErrGeolocationUnavailable)
	assert.Empty(t, f.store.records)
}

func TestRedeemOutsideGeofenceReportsDistance(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{Enabled: true, Latitude: 30.7690, Longitude: 76.5785, RadiusKm: 0.2}, ledger.Unavailable(""))
	lat, lon := coords(30.7790, 76.5785)

	_, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "K3F9QZ-LOYW3V28", Latitude: lat, Longitude: lon})
	require.ErrorIs(t, err, appErrors.ErrOutsideGeofence)

	appErr := appErrors.FromError(err)
	assert.Contains(t, appErr.Message, "1.11 km")
	assert.Equal(t, 1.11, appErr.Details["distance_km"])
	assert.Empty(t, f.store.records)
}

func TestRedeemInsideGeofence(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{Enabled: true, Latitude: 30.7690, Longitude: 76.5785, RadiusKm: 0.2}, ledger.Unavailable(""))
	lat, lon := coords(30.7695, 76.5785)

	resp, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "K3F9QZ-LOYW3V28", Latitude: lat, Longitude: lon})
	require.NoError(t, err)
	require.NotNil(t, resp.DistanceKm)
	assert.Equal(t, 0.06, *resp.DistanceKm)
}

func TestRedeemTwiceInSameSession(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Unavailable(""))

	_, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "K3F9QZ-LOYW3V28"})
	require.NoError(t, err)

	_, err = f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "AAAAAA-LOYW3V29"})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyRedeemed)
	assert.Len(t, f.store.records, 1)
}

func TestRedeemPersistenceFailure(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Unavailable(""))
	f.store.err = errors.New("connection reset")

	_, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "K3F9QZ-LOYW3V28"})
	assert.ErrorIs(t, err, appErrors.ErrPersistenceFailure)
	assert.Equal(t, 0, f.ledger.calls)
}

func TestRedeemLedgerFailureKeepsRecordAndQueuesRetry(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Failed(ledger.FailureNetwork, "relayer down"))

	resp, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "K3F9QZ-LOYW3V28"})
	require.NoError(t, err)
	assert.True(t, resp.Recorded)
	assert.Equal(t, ledger.StatusFailed, resp.Ledger.Status)
	assert.True(t, resp.LedgerQueued)
	require.Len(t, f.queue.jobs, 1)

	payload, ok := f.queue.jobs[0].Payload.(LedgerRetry)
	require.True(t, ok)
	assert.Equal(t, resp.RedemptionID, payload.RedemptionID)
	assert.Equal(t, "K3F9QZ-LOYW3V28", payload.Code)
}

func TestRedeemDoesNotRetryDeterministicFailures(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Failed(ledger.FailureAlreadyMarked, "already marked"))

	resp, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "K3F9QZ-LOYW3V28"})
	require.NoError(t, err)
	assert.False(t, resp.LedgerQueued)
	assert.Empty(t, f.queue.jobs)
}

func TestRedeemWithoutLedger(t *testing.T) {
	f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Unavailable("ledger disabled"))

	resp, err := f.svc.Redeem(context.Background(), "student-1", dto.RedeemRequest{Code: "K3F9QZ-LOYW3V28"})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusUnavailable, resp.Ledger.Status)
	assert.False(t, resp.LedgerQueued)
	assert.Empty(t, f.store.txHashes)
}

func TestHandleLedgerRetry(t *testing.T) {
	job := jobs.Job{ID: "rec-1", Type: LedgerRetryJobType, Payload: LedgerRetry{RedemptionID: "rec-1", Code: "K3F9QZ-LOYW3V28", StudentID: "student-1"}}

	t.Run("committed stores tx hash", func(t *testing.T) {
		f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Result{Status: ledger.StatusCommitted, TxHash: "0xdef"})
		require.NoError(t, f.svc.HandleLedgerRetry(context.Background(), job))
		assert.Equal(t, "0xdef", f.store.txHashes["rec-1"])
	})

	t.Run("network failure retries", func(t *testing.T) {
		f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Failed(ledger.FailureNetwork, "down"))
		err := f.svc.HandleLedgerRetry(context.Background(), job)
		require.Error(t, err)
		assert.False(t, jobs.IsPermanent(err))
	})

	t.Run("revert is permanent", func(t *testing.T) {
		f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Failed(ledger.FailureReverted, "reverted"))
		err := f.svc.HandleLedgerRetry(context.Background(), job)
		assert.True(t, jobs.IsPermanent(err))
	})

	t.Run("unavailable is permanent", func(t *testing.T) {
		f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Unavailable(""))
		err := f.svc.HandleLedgerRetry(context.Background(), job)
		assert.True(t, jobs.IsPermanent(err))
		assert.ErrorIs(t, err, appErrors.ErrLedgerUnavailable)
	})

	t.Run("bad payload is permanent", func(t *testing.T) {
		f := newRedemptionFixture(config.GeofenceConfig{}, ledger.Unavailable(""))
		err := f.svc.HandleLedgerRetry(context.Background(), jobs.Job{ID: "x", Payload: "nope"})
		assert.True(t, jobs.IsPermanent(err))
	})
}
