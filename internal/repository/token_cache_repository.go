package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/attendo-api/internal/models"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
)

const tokenKeyPrefix = "attendo:code:"

// TokenCacheRepository keeps live attendance codes in Redis so redemption avoids a database
// round trip while a code is displayed. Entries expire with the code.
type TokenCacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewTokenCacheRepository constructs a token cache. A nil client disables caching.
func NewTokenCacheRepository(client *redis.Client, logger *zap.Logger) *TokenCacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCacheRepository{client: client, logger: logger}
}

func tokenKey(code string) string {
	return tokenKeyPrefix + strings.ToUpper(code)
}

// Get returns the cached code or appErrors.ErrCacheMiss.
func (r *TokenCacheRepository) Get(ctx context.Context, code string) (*models.AttendanceCode, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	key := tokenKey(code)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var record models.AttendanceCode
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshal cached code %s: %w", key, err)
	}
	return &record, nil
}

// Put stores the code until it expires. Already expired codes are skipped.
func (r *TokenCacheRepository) Put(ctx context.Context, code *models.AttendanceCode) error {
	if r.client == nil || code == nil {
		return nil
	}
	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal cached code: %w", err)
	}

	key := tokenKey(code.Code)
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete drops a cached code.
func (r *TokenCacheRepository) Delete(ctx context.Context, code string) error {
	if r.client == nil {
		return nil
	}
	key := tokenKey(code)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *TokenCacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
