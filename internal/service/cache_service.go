package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-activity-planner/internal/models"
	appErrors "github.com/noah-isme/sma-activity-planner/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CacheService caches finished plan runs so status polling does not hit the
// database, and records hit/miss metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

func planRunKey(id string) string {
	return "run:" + id
}

// GetPlanRun returns a cached run, or nil on a miss. Cache failures are
// logged and reported as misses.
func (s *CacheService) GetPlanRun(ctx context.Context, id string) *models.PlanRun {
	if !s.Enabled() {
		return nil
	}
	start := time.Now()
	var run models.PlanRun
	err := s.repo.Get(ctx, planRunKey(id), &run)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("run_id", id), zap.Error(err))
		}
		return nil
	}
	return &run
}

// PutPlanRun caches a run. Only terminal runs are cached since they no
// longer change apart from result expiry.
func (s *CacheService) PutPlanRun(ctx context.Context, run *models.PlanRun) {
	if !s.Enabled() || run == nil || !run.Status.Done() {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, planRunKey(run.ID), run, s.defaultTTL)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// ForgetPlanRun drops a cached run.
func (s *CacheService) ForgetPlanRun(ctx context.Context, id string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.Delete(ctx, planRunKey(id)); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("run_id", id), zap.Error(err))
	}
}
