package middleware

import (
	"context"
	"fmt"
	"time"

	"algoarena/internal/common/cache"
	pkgerrors "algoarena/pkg/errors"
	"algoarena/pkg/utils/logger"
	"algoarena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	rateKeyPrefix      = "ratelimit:"
	defaultRateTimeout = 200 * time.Millisecond
	defaultRateWindow  = time.Minute
)

// RateLimitPolicy caps requests per key within a fixed window.
type RateLimitPolicy struct {
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
}

// RateLimiter counts requests in Redis using fixed windows.
type RateLimiter struct {
	cache   cache.Cache
	timeout time.Duration
}

// NewRateLimiter creates a limiter. A nil cache disables limiting.
func NewRateLimiter(c cache.Cache, timeout time.Duration) *RateLimiter {
	if timeout <= 0 {
		timeout = defaultRateTimeout
	}
	return &RateLimiter{cache: c, timeout: timeout}
}

// Allow counts one hit against key and returns TooManyRequests once max is passed.
func (l *RateLimiter) Allow(ctx context.Context, key string, policy RateLimitPolicy) error {
	if l == nil || l.cache == nil || policy.Max <= 0 {
		return nil
	}
	window := policy.Window
	if window <= 0 {
		window = defaultRateWindow
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	key = rateKeyPrefix + key
	first, err := l.cache.SetNX(ctx, key, 1, window)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CacheError)
	}
	count := int64(1)
	if !first {
		if count, err = l.cache.Incr(ctx, key); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CacheError)
		}
		// A key left without expiry would block the caller forever.
		if ttl, err := l.cache.TTL(ctx, key); err == nil && ttl < 0 {
			_ = l.cache.Expire(ctx, key, window)
		}
	}
	if count > int64(policy.Max) {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithDetail("retry_after_seconds", int(window.Seconds()))
	}
	return nil
}

// RateLimit limits requests on route by the key keyFn returns. Requests with
// an empty key pass. Cache failures are logged and the request passes.
func RateLimit(l *RateLimiter, route string, policy RateLimitPolicy, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := keyFn(c)
		if subject == "" {
			c.Next()
			return
		}
		err := l.Allow(c.Request.Context(), fmt.Sprintf("%s:%s", route, subject), policy)
		switch {
		case err == nil:
		case pkgerrors.Is(err, pkgerrors.TooManyRequests):
			response.AbortWithError(c, err)
			return
		default:
			logger.Warn(c.Request.Context(), "rate limit check failed", zap.String("route", route), zap.Error(err))
		}
		c.Next()
	}
}

// ClientIP keys a limit by the caller's address.
func ClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}
