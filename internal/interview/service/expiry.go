package service

import (
	"context"
	"fmt"
	"time"

	"hirejudge/internal/common/cache"
	"hirejudge/internal/interview/repository"
	"hirejudge/internal/metrics"
	"hirejudge/pkg/utils/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const expiryLockKey = "lock:interview:expiry"

// ExpiryConfig controls the overdue interview sweep.
type ExpiryConfig struct {
	Schedule  string        `yaml:"schedule"`
	BatchSize int           `yaml:"batchSize"`
	LockTTL   time.Duration `yaml:"lockTTL"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ExpirySweeper periodically marks pending and scheduled interviews whose
// slot has ended as expired. With a cache set only one replica sweeps per tick.
type ExpirySweeper struct {
	repo  repository.InterviewRepository
	cache cache.Cache
	cfg   ExpiryConfig
	cron  *cron.Cron
	now   func() time.Time
}

func NewExpirySweeper(repo repository.InterviewRepository, lockCache cache.Cache, cfg ExpiryConfig) (*ExpirySweeper, error) {
	if repo == nil {
		return nil, fmt.Errorf("interview repository is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 50 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	sw := &ExpirySweeper{repo: repo, cache: lockCache, cfg: cfg, cron: cron.New(), now: time.Now}
	if _, err := sw.cron.AddFunc(cfg.Schedule, func() { sw.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid expiry schedule %q: %w", cfg.Schedule, err)
	}
	return sw, nil
}

func (sw *ExpirySweeper) Start() {
	sw.cron.Start()
	logger.Info(context.Background(), "interview expiry sweeper started", zap.String("schedule", sw.cfg.Schedule))
}

// Stop halts scheduling and waits for a running sweep to finish.
func (sw *ExpirySweeper) Stop() {
	<-sw.cron.Stop().Done()
}

// Sweep runs one pass and returns the number of expired interviews.
func (sw *ExpirySweeper) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, sw.cfg.Timeout)
	defer cancel()

	if sw.cache != nil {
		ok, err := sw.cache.TryLock(ctx, expiryLockKey, sw.cfg.LockTTL)
		if err != nil {
			logger.Warn(ctx, "expiry lock failed", zap.Error(err))
			return 0
		}
		if !ok {
			return 0
		}
		defer func() {
			if err := sw.cache.Unlock(context.WithoutCancel(ctx), expiryLockKey); err != nil {
				logger.Warn(ctx, "expiry unlock failed", zap.Error(err))
			}
		}()
	}

	var total int64
	for {
		n, err := sw.repo.ExpireOverdue(ctx, sw.now().UTC(), sw.cfg.BatchSize)
		if err != nil {
			logger.Error(ctx, "expire overdue interviews failed", zap.Error(err))
			break
		}
		total += n
		if n < int64(sw.cfg.BatchSize) {
			break
		}
	}
	if total > 0 {
		metrics.InterviewsExpiredTotal.Add(float64(total))
		logger.Info(ctx, "expired overdue interviews", zap.Int64("count", total))
	}
	return total
}
