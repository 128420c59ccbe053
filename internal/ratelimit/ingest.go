package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/wunderling/tutorledger/internal/config"
)

const (
	keyIngestCalendar = "ingest:calendar:%s"
	keyPostingLock    = "posting:run:lock"
)

// IngestLimiter throttles webhook deliveries per calendar and guards the
// posting run with a distributed lock. A nil limiter allows everything,
// so callers never branch on configuration.
type IngestLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewIngestLimiter(cfg config.Config) (*IngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.IngestRate <= 0 || limitCfg.IngestBurst <= 0 {
		return nil, errors.New("ingest rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &IngestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.IngestRate,
		burst:   limitCfg.IngestBurst,
		lockTTL: time.Duration(limitCfg.PostingLockTTLSeconds) * time.Second,
	}, nil
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowCalendar admits or rejects one webhook delivery for a calendar.
func (l *IngestLimiter) AllowCalendar(ctx context.Context, calendarID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyIngestCalendar, strings.TrimSpace(calendarID))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

// TryPostingLock claims the single posting-run slot across replicas.
func (l *IngestLimiter) TryPostingLock(ctx context.Context) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, keyPostingLock, l.lockTTL)
}

func (l *IngestLimiter) ReleasePostingLock(ctx context.Context, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, keyPostingLock, token)
}
