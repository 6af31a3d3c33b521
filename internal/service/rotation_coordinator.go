package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendo-api/internal/dto"
	"github.com/noah-isme/attendo-api/internal/models"
	"github.com/noah-isme/attendo-api/pkg/config"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
	"github.com/noah-isme/attendo-api/pkg/ledger"
)

// Batch size bounds accepted by SetBatchTargetSize.
const (
	MinBatchSize = 1
	MaxBatchSize = 50
)

type codeMinter interface {
	Mint() (string, error)
}

type ledgerCommitter interface {
	Available() bool
	Commit(ctx context.Context, req ledger.Request) ledger.Result
}

type tokenPersister interface {
	PersistToken(ctx context.Context, code *models.AttendanceCode) error
}

type rotationMetrics interface {
	TokenMinted()
	MintFailed()
	LedgerCall(operation, status string)
	PersistFailed()
	SessionStarted()
	SessionStopped()
}

type noopRotationMetrics struct{}

func (noopRotationMetrics) TokenMinted()              {}
func (noopRotationMetrics) MintFailed()               {}
func (noopRotationMetrics) LedgerCall(string, string) {}
func (noopRotationMetrics) PersistFailed()            {}
func (noopRotationMetrics) SessionStarted()           {}
func (noopRotationMetrics) SessionStopped()           {}

// RotationSettings tunes a coordinator.
type RotationSettings struct {
	Interval      time.Duration
	TargetSize    int
	Policy        string
	PersistOnMint bool
	CommitTimeout time.Duration
}

// RotationSettingsFromConfig maps the environment configuration onto coordinator settings.
func RotationSettingsFromConfig(cfg config.RotationConfig) RotationSettings {
	return RotationSettings{
		Interval:      cfg.Interval,
		TargetSize:    cfg.BatchSize,
		Policy:        cfg.BatchPolicy,
		PersistOnMint: cfg.PersistOnMint,
		CommitTimeout: cfg.CommitTimeout,
	}
}

// RotationDeps groups the collaborators of a coordinator. Metrics, Clock and Logger are optional.
type RotationDeps struct {
	Minter  codeMinter
	Ledger  ledgerCommitter
	Store   tokenPersister
	Metrics rotationMetrics
	Clock   Clock
	Logger  *zap.Logger
}

// RotationCoordinator owns the code rotation timer and batch accumulation for one teacher.
//
// All session state is guarded by mu. Exactly one ticker goroutine exists per session and is
// tagged with the session generation; Stop cancels it and waits for it to exit before a new
// session can start, and any tick or commit continuation carrying an older generation is
// ignored.
type RotationCoordinator struct {
	teacherID string
	settings  RotationSettings

	minter  codeMinter
	ledger  ledgerCommitter
	store   tokenPersister
	metrics rotationMetrics
	clock   Clock
	logger  *zap.Logger

	lifecycle sync.Mutex

	mu          sync.Mutex
	active      bool
	generation  uint64
	courseID    string
	sessionID   string
	current     *models.AttendanceToken
	batch       models.Batch
	batchState  models.BatchState
	targetSize  int
	totalMinted int
	lastErr     *appErrors.Error
	lastCommit  *dto.CommitOutcome
	cancel      context.CancelFunc
	done        chan struct{}

	pending sync.WaitGroup

	subMu   sync.Mutex
	subs    map[uint64]chan dto.RotationSnapshot
	nextSub uint64
}

// NewRotationCoordinator builds an idle coordinator.
func NewRotationCoordinator(teacherID string, settings RotationSettings, deps RotationDeps) *RotationCoordinator {
	if settings.Interval <= 0 {
		settings.Interval = 7 * time.Second
	}
	if settings.TargetSize < MinBatchSize || settings.TargetSize > MaxBatchSize {
		settings.TargetSize = 5
	}
	if settings.Policy != config.BatchPolicyPerCode {
		settings.Policy = config.BatchPolicyPreApproved
	}
	if settings.CommitTimeout <= 0 {
		settings.CommitTimeout = 30 * time.Second
	}
	if deps.Metrics == nil {
		deps.Metrics = noopRotationMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.Disabled{}
	}

	c := &RotationCoordinator{
		teacherID:  teacherID,
		settings:   settings,
		minter:     deps.Minter,
		ledger:     deps.Ledger,
		store:      deps.Store,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     deps.Logger.With(zap.String("teacher_id", teacherID)),
		targetSize: settings.TargetSize,
		subs:       make(map[uint64]chan dto.RotationSnapshot),
	}
	c.batch = models.Batch{TargetSize: c.effectiveTargetLocked()}
	return c
}

// effectiveTargetLocked is the flush threshold. Per-code commitment flushes every token.
func (c *RotationCoordinator) effectiveTargetLocked() int {
	if c.settings.Policy == config.BatchPolicyPerCode {
		return 1
	}
	return c.targetSize
}

// Start begins generating codes for a course. The first code is minted before Start returns.
func (c *RotationCoordinator) Start(courseID string) error {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return appErrors.ErrSessionActive
	}
	c.generation++
	gen := c.generation
	c.active = true
	c.courseID = courseID
	c.sessionID = uuid.NewString()
	c.current = nil
	c.batch = models.Batch{TargetSize: c.effectiveTargetLocked()}
	c.batchState = models.BatchStateOpen
	c.lastErr = nil
	c.lastCommit = nil
	c.totalMinted = 0

	c.rotateSafeLocked(gen)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ticker := c.clock.NewTicker(c.settings.Interval)
	c.cancel = cancel
	c.done = done
	sessionID := c.sessionID
	c.mu.Unlock()

	go c.loop(ctx, gen, ticker, done)

	c.metrics.SessionStarted()
	c.logger.Info("rotation started",
		zap.String("course_id", courseID),
		zap.String("session_id", sessionID),
		zap.Duration("interval", c.settings.Interval),
		zap.String("policy", c.settings.Policy),
	)
	c.publish()
	return nil
}

// Stop ends the session. It is idempotent. Commits already dispatched keep running and
// their outcome is only logged.
func (c *RotationCoordinator) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.generation++
	c.current = nil
	c.batch = models.Batch{TargetSize: c.effectiveTargetLocked()}
	c.batchState = ""
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	courseID := c.courseID
	c.mu.Unlock()

	cancel()
	<-done

	c.metrics.SessionStopped()
	c.logger.Info("rotation stopped", zap.String("course_id", courseID))
	c.publish()
}

// SetBatchTargetSize changes the batch size. Only allowed while idle. Under the per_code
// policy the size is stored but every code still flushes on its own, so snapshots keep
// reporting a target of 1.
func (c *RotationCoordinator) SetBatchTargetSize(n int) error {
	if n < MinBatchSize || n > MaxBatchSize {
		return appErrors.ErrInvalidBatchSize
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return appErrors.Clone(appErrors.ErrSessionActive, "stop code generation before changing the batch size")
	}
	c.targetSize = n
	c.batch.TargetSize = c.effectiveTargetLocked()
	c.mu.Unlock()

	c.publish()
	return nil
}

// Active reports whether a session is running.
func (c *RotationCoordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Snapshot returns the observable state for the display layer.
func (c *RotationCoordinator) Snapshot() dto.RotationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *RotationCoordinator) snapshotLocked() dto.RotationSnapshot {
	snap := dto.RotationSnapshot{
		Active:          c.active,
		RotationCount:   len(c.batch.Tokens),
		TargetSize:      c.effectiveTargetLocked(),
		TotalMinted:     c.totalMinted,
		LedgerAvailable: c.ledger.Available(),
	}
	if c.active {
		snap.CourseID = c.courseID
		snap.BatchState = c.batchState
	}
	if c.current != nil {
		expires := c.current.ExpiresAt()
		snap.CurrentToken = c.current.Value
		snap.ExpiresAt = &expires
		if remaining := expires.Sub(c.clock.Now()); remaining > 0 {
			snap.SecondsRemaining = int(math.Ceil(remaining.Seconds()))
		}
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Message
	}
	if c.lastCommit != nil {
		outcome := *c.lastCommit
		snap.LastCommit = &outcome
	}
	return snap
}

// Subscribe streams snapshots on every state change, starting with the current one. Slow
// readers only ever see the latest snapshot. The returned func unsubscribes.
func (c *RotationCoordinator) Subscribe() (<-chan dto.RotationSnapshot, func()) {
	ch := make(chan dto.RotationSnapshot, 1)

	c.subMu.Lock()
	ch <- c.Snapshot()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

// publish snapshots under subMu so the last value delivered is never older than the last
// state change.
func (c *RotationCoordinator) publish() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	snap := c.Snapshot()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Wait blocks until dispatched commits finish or ctx ends.
func (c *RotationCoordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RotationCoordinator) loop(ctx context.Context, gen uint64, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.tick(gen)
		}
	}
}

func (c *RotationCoordinator) tick(gen uint64) {
	c.mu.Lock()
	changed := c.rotateSafeLocked(gen)
	c.mu.Unlock()
	if changed {
		c.publish()
	}
}

// rotateSafeLocked never lets a panic escape, otherwise the rotation schedule would die
// silently.
func (c *RotationCoordinator) rotateSafeLocked(gen uint64) (changed bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("rotation tick panicked", zap.Any("panic", r), zap.Stack("stack"))
			c.lastErr = appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("code rotation failed: %v", r))
			changed = true
		}
	}()
	return c.rotateLocked(gen)
}

// rotateLocked mints the next code and flushes the batch once it is full. It reports whether
// state changed.
func (c *RotationCoordinator) rotateLocked(gen uint64) bool {
	if !c.active || gen != c.generation {
		return false
	}

	value, err := c.minter.Mint()
	if err != nil {
		c.metrics.MintFailed()
		c.lastErr = appErrors.FromError(err)
		if !errors.Is(err, appErrors.ErrMintFailure) {
			c.lastErr = appErrors.Wrap(err, appErrors.ErrMintFailure.Code, appErrors.ErrMintFailure.Status, appErrors.ErrMintFailure.Message)
		}
		c.logger.Warn("mint attendance code", zap.Error(err))
		return true
	}
	if c.lastErr != nil && errors.Is(c.lastErr, appErrors.ErrMintFailure) {
		c.lastErr = nil
	}

	now := c.clock.Now()
	token := models.AttendanceToken{
		Value:      value,
		MintedAt:   now,
		ValidFor:   c.settings.Interval,
		CourseID:   c.courseID,
		BatchIndex: len(c.batch.Tokens),
	}
	c.current = &token
	c.batch.Tokens = append(c.batch.Tokens, token)
	c.totalMinted++
	c.metrics.TokenMinted()

	window := time.Duration(c.batch.TargetSize) * c.settings.Interval
	if c.settings.PersistOnMint && !c.batch.Full() {
		c.dispatchPersist([]*models.AttendanceCode{c.codeRecordLocked(token.Value, now.Add(window))})
	}

	if c.batch.Full() {
		flushed := c.batch
		c.batch = models.Batch{TargetSize: c.effectiveTargetLocked()}
		c.dispatchCommitLocked(gen, flushed, window)
	}
	return true
}

func (c *RotationCoordinator) codeRecordLocked(value string, expiresAt time.Time) *models.AttendanceCode {
	return &models.AttendanceCode{
		TeacherID: c.teacherID,
		CourseID:  c.courseID,
		SessionID: c.sessionID,
		Code:      value,
		ExpiresAt: expiresAt,
		CreatedAt: c.clock.Now(),
	}
}

func (c *RotationCoordinator) dispatchPersist(records []*models.AttendanceCode) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.settings.CommitTimeout)
		defer cancel()
		c.persist(ctx, records)
	}()
}

// dispatchCommitLocked hands a full batch to the ledger and the relational store. Both
// halves run independently; neither waits for nor depends on the other's outcome.
func (c *RotationCoordinator) dispatchCommitLocked(gen uint64, batch models.Batch, window time.Duration) {
	var req ledger.Request
	if c.settings.Policy == config.BatchPolicyPerCode {
		req = ledger.SingleCode(batch.Tokens[0].Value, window)
	} else {
		req = ledger.Batch(batch.Values(), window)
	}

	expiresAt := c.clock.Now().Add(window)
	records := make([]*models.AttendanceCode, len(batch.Tokens))
	for i, token := range batch.Tokens {
		records[i] = c.codeRecordLocked(token.Value, expiresAt)
	}

	c.pending.Add(1)
	go c.commit(gen, req, records)
}

func (c *RotationCoordinator) commit(gen uint64, req ledger.Request, records []*models.AttendanceCode) {
	defer c.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.settings.CommitTimeout)
	defer cancel()

	var (
		wg     sync.WaitGroup
		result ledger.Result
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		result = c.ledger.Commit(ctx, req)
	}()

	persisted, persistErr := c.persist(ctx, records)
	wg.Wait()

	operation := "commit_batch"
	if req.Kind == ledger.KindSingleCode {
		operation = "commit_single"
	}
	c.metrics.LedgerCall(operation, string(result.Status))

	outcome := dto.CommitOutcome{
		Kind:        req.Kind,
		Codes:       len(req.Codes),
		Ledger:      result,
		Persisted:   persisted,
		CompletedAt: c.clock.Now(),
	}
	if persistErr != nil {
		outcome.PersistError = persistErr.Error()
	}
	c.completeCommit(gen, outcome)
}

// persist writes codes in mint order. Every code is attempted even after a failure.
func (c *RotationCoordinator) persist(ctx context.Context, records []*models.AttendanceCode) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	var (
		stored   int
		firstErr error
	)
	for _, record := range records {
		if err := c.store.PersistToken(ctx, record); err != nil {
			c.metrics.PersistFailed()
			c.logger.Warn("persist attendance code", zap.String("course_id", record.CourseID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored++
	}
	return stored, firstErr
}

func (c *RotationCoordinator) completeCommit(gen uint64, outcome dto.CommitOutcome) {
	c.mu.Lock()
	if !c.active || gen != c.generation {
		c.mu.Unlock()
		c.logger.Info("commit resolved after session ended",
			zap.String("status", string(outcome.Ledger.Status)),
			zap.String("tx_hash", outcome.Ledger.TxHash),
			zap.Int("persisted", outcome.Persisted),
		)
		return
	}

	c.lastCommit = &outcome
	if c.lastErr != nil && (errors.Is(c.lastErr, appErrors.ErrLedgerCallFailure) || errors.Is(c.lastErr, appErrors.ErrPersistenceFailure)) {
		c.lastErr = nil
	}
	c.batchState = models.BatchStateOpen
	switch outcome.Ledger.Status {
	case ledger.StatusCommitted:
		c.batchState = models.BatchStatePreApproved
	case ledger.StatusUnavailable:
	default:
		c.lastErr = appErrors.Clone(appErrors.ErrLedgerCallFailure, outcome.Ledger.Error)
	}
	if outcome.PersistError != "" {
		c.lastErr = appErrors.Clone(appErrors.ErrPersistenceFailure, fmt.Sprintf("%d of %d codes could not be stored", outcome.Codes-outcome.Persisted, outcome.Codes))
	}
	c.mu.Unlock()

	c.logger.Info("batch committed",
		zap.String("kind", string(outcome.Kind)),
		zap.Int("codes", outcome.Codes),
		zap.String("ledger_status", string(outcome.Ledger.Status)),
		zap.String("tx_hash", outcome.Ledger.TxHash),
		zap.Int("persisted", outcome.Persisted),
	)
	c.publish()
}
