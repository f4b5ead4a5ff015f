// Package cache keeps the latest report per user in Redis so a client that
// reconnects can fetch what it missed.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ppg-screening/internal/models"

	"go.uber.org/zap"
)

const (
	keyPrefix  = "ppg:report:"
	keySuffix  = ":latest"
	DefaultTTL = 24 * time.Hour
)

// ReportKey is the cache key of a user's latest report.
func ReportKey(userID string) string {
	return keyPrefix + userID + keySuffix
}

// ReportCache stores ReportPayload values as JSON.
type ReportCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewReportCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *ReportCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportCache{kv: kv, ttl: ttl, logger: logger}
}

// Publish stores the payload as the user's latest report.
func (c *ReportCache) Publish(ctx context.Context, p models.ReportPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := c.kv.Set(ctx, ReportKey(p.UserID), string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to cache report for user %s: %w", p.UserID, err)
	}
	c.logger.Debug("report cached", zap.String("user_id", p.UserID), zap.Duration("ttl", c.ttl))
	return nil
}

// Latest returns the cached report, or ErrCacheMiss.
func (c *ReportCache) Latest(ctx context.Context, userID string) (*models.ReportPayload, error) {
	val, err := c.kv.Get(ctx, ReportKey(userID))
	if err != nil {
		return nil, err
	}
	var p models.ReportPayload
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached report: %w", err)
	}
	return &p, nil
}

// Forget drops the cached report.
func (c *ReportCache) Forget(ctx context.Context, userID string) error {
	return c.kv.Del(ctx, ReportKey(userID))
}
