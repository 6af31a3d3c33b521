package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendo-api/internal/models"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
)

type attendanceCodeRepository interface {
	Create(ctx context.Context, code *models.AttendanceCode) error
	FindActiveByCode(ctx context.Context, code string, now time.Time) (*models.AttendanceCode, error)
}

type tokenCache interface {
	Get(ctx context.Context, code string) (*models.AttendanceCode, error)
	Put(ctx context.Context, code *models.AttendanceCode) error
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// TokenStore is the relational store contract for minted codes, fronted by an optional
// Redis cache. The database stays authoritative.
type TokenStore struct {
	repo    attendanceCodeRepository
	cache   tokenCache
	clock   Clock
	metrics cacheMetrics
	logger  *zap.Logger
}

// NewTokenStore constructs a TokenStore. cache and metrics may be nil.
func NewTokenStore(repo attendanceCodeRepository, cache tokenCache, metrics cacheMetrics, clock Clock, logger *zap.Logger) *TokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &TokenStore{repo: repo, cache: cache, clock: clock, metrics: metrics, logger: logger}
}

// PersistToken writes a code for later redemption lookups.
func (s *TokenStore) PersistToken(ctx context.Context, code *models.AttendanceCode) error {
	if err := s.repo.Create(ctx, code); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistenceFailure.Code, appErrors.ErrPersistenceFailure.Status, "failed to store attendance code")
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, code); err != nil {
			s.logger.Warn("cache attendance code", zap.String("course_id", code.CourseID), zap.Error(err))
		}
	}
	return nil
}

// LookupActive returns the code only if it has not expired.
func (s *TokenStore) LookupActive(ctx context.Context, code string) (*models.AttendanceCode, error) {
	now := s.clock.Now()

	if s.cache != nil {
		start := time.Now()
		cached, err := s.cache.Get(ctx, code)
		hit := err == nil && cached != nil && cached.ExpiresAt.After(now)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(hit, time.Since(start))
		}
		if hit {
			return cached, nil
		}
		if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("token cache lookup failed", zap.Error(err))
		}
	}

	record, err := s.repo.FindActiveByCode(ctx, code, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidOrExpiredCode
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up attendance code")
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, record); err != nil {
			s.logger.Debug("refill token cache", zap.Error(err))
		}
	}
	return record, nil
}
