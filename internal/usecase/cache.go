package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anarcoiris/FaceGUI/internal/clients"
	"github.com/anarcoiris/FaceGUI/internal/logging"
)

// Cache abstracts the Redis operations used for probe reports to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// DefaultProbeTTL bounds how long a cached report is served.
const DefaultProbeTTL = 10 * time.Minute

// CachedProber memoises probe reports per configuration fingerprint. Cache
// failures are logged and never fail a probe.
type CachedProber struct {
	prober         ProbeRunner
	cache          Cache
	logger         *zap.Logger
	ttl            time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCachedProber wraps prober with cache. A nil cache disables caching.
func NewCachedProber(prober ProbeRunner, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultProbeTTL
	}
	return &CachedProber{
		prober:         prober,
		cache:          cache,
		logger:         logger,
		ttl:            ttl,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     500 * time.Millisecond,
	}
}

// Probe returns a cached report when one exists, unless refresh is set. The
// second return value tells whether the report came from the cache.
func (cp *CachedProber) Probe(ctx context.Context, cfg clients.Configuration, opts ProbeOptions, refresh bool) (CapabilityReport, bool) {
	if cp.cache == nil {
		return cp.prober.Probe(ctx, cfg, opts), false
	}

	requestID := uuid.NewString()
	key := probeCacheKey(cfg, opts)
	opLogger := logging.WithOperation(cp.logger, "probe.cached", requestID)

	if !refresh {
		cached, err := cp.withRedisGet(ctx, requestID, "cache.get.probe", key)
		if err == nil {
			var report CapabilityReport
			if jsonErr := json.Unmarshal([]byte(cached), &report); jsonErr == nil {
				opLogger.Debug("probe report served from cache")
				return report, true
			}
			opLogger.Warn("discarding unreadable cached probe report")
		} else if !errors.Is(err, redis.Nil) {
			opLogger.Warn("probe cache unavailable", zap.Error(err))
		}
	}

	report := cp.prober.Probe(ctx, cfg, opts)
	payload, err := json.Marshal(report)
	if err != nil {
		return report, false
	}
	if err := cp.withRedisRetry(ctx, requestID, "cache.set.probe", func() error {
		return cp.cache.Set(ctx, key, payload, cp.ttl)
	}); err != nil {
		opLogger.Warn("failed to cache probe report", zap.Error(err))
	}
	return report, false
}

func probeCacheKey(cfg clients.Configuration, opts ProbeOptions) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(opts.TestImageURL)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(opts.FallbackURL)))
	h.Write([]byte{0})
	h.Write(opts.TestImage)
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(opts.Attributes, ",")))
	return "probe:" + cfg.Fingerprint() + ":" + hex.EncodeToString(h.Sum(nil)[:8])
}

func (cp *CachedProber) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if cp.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := cp.initialBackoff
	opLogger := logging.WithOperation(cp.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < cp.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= cp.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == cp.retryAttempts-1 {
			if !errors.Is(err, redis.Nil) {
				opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			}
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (cp *CachedProber) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := cp.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := cp.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
