// Package gateway provides API gateway functionality including rate limiting
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const window = time.Minute

var errNoRedis = errors.New("no redis client")

// RateLimiter enforces per-client, per-endpoint request budgets over a fixed
// one-minute window. Counters live in Redis when a client is configured and
// in process memory otherwise or when Redis is unreachable.
type RateLimiter struct {
	redis       *redis.Client
	logger      *zap.Logger
	config      RateLimitConfig
	localLimits sync.Map

	sweepMu   sync.Mutex
	lastSweep time.Time
}

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	RequestsPerMinute int                       `yaml:"requests_per_minute"`
	KeyPrefix         string                    `yaml:"key_prefix"`
	Endpoints         map[string]EndpointLimits `yaml:"endpoints"`
	IncludeHeaders    bool                      `yaml:"include_headers"`
	Clock             func() time.Time          `yaml:"-"`
}

// EndpointLimits defines rate limits for specific endpoints
type EndpointLimits struct {
	Path              string `yaml:"path"`
	Method            string `yaml:"method"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	CostMultiplier    int    `yaml:"cost_multiplier"`
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
	Reason     string
}

type localWindow struct {
	mu    sync.Mutex
	start time.Time
	count int
}

// NewRateLimiter creates a new rate limiter. redisClient may be nil.
func NewRateLimiter(redisClient *redis.Client, cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "sectorintel"
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = DefaultEndpointLimits()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &RateLimiter{
		redis:  redisClient,
		logger: logger,
		config: cfg,
	}
}

// DefaultEndpointLimits returns the limits for the endpoints that start
// pipeline runs.
func DefaultEndpointLimits() map[string]EndpointLimits {
	return map[string]EndpointLimits{
		// Raw record ingestion
		"POST:/api/v1/ingest": {
			Path:              "/api/v1/ingest",
			Method:            "POST",
			RequestsPerMinute: 30,
			CostMultiplier:    1,
		},
		// Feed collection
		"POST:/api/v1/collect": {
			Path:              "/api/v1/collect",
			Method:            "POST",
			RequestsPerMinute: 50,
			CostMultiplier:    10,
		},
	}
}

// Check counts one request from clientID against the endpoint budget.
func (rl *RateLimiter) Check(ctx context.Context, clientID, endpoint, method string) (*RateLimitResult, error) {
	limit := rl.effectiveLimit(rl.getEndpointLimits(endpoint, method))
	key := fmt.Sprintf("%s:ratelimit:%s:%s:%s:minute", rl.config.KeyPrefix, clientID, method, endpoint)
	now := rl.config.Clock()

	count, ttl, err := rl.countRedis(ctx, key)
	if err != nil {
		if rl.redis != nil {
			rl.logger.Warn("Rate limit check failed, using local window", zap.Error(err))
		}
		count, ttl = rl.countLocal(key, now)
	}

	allowed := count <= limit
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	var retryAfter time.Duration
	var reason string
	if !allowed {
		retryAfter = ttl
		reason = "Rate limit exceeded"
	}

	return &RateLimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		Limit:      limit,
		ResetAt:    now.Add(ttl),
		RetryAfter: retryAfter,
		Reason:     reason,
	}, nil
}

var incrScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

func (rl *RateLimiter) countRedis(ctx context.Context, key string) (int, time.Duration, error) {
	if rl.redis == nil {
		return 0, 0, errNoRedis
	}
	count, err := incrScript.Run(ctx, rl.redis, []string{key}, window.Milliseconds()).Int()
	if err != nil {
		return 0, 0, err
	}
	ttl, err := rl.redis.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, ttl, nil
}

func (rl *RateLimiter) countLocal(key string, now time.Time) (int, time.Duration) {
	rl.sweepLocal(now)

	v, _ := rl.localLimits.LoadOrStore(key, &localWindow{start: now})
	w := v.(*localWindow)

	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Sub(w.start) >= window {
		w.start = now
		w.count = 0
	}
	w.count++
	return w.count, w.start.Add(window).Sub(now)
}

// sweepLocal drops expired local windows at most once per window.
func (rl *RateLimiter) sweepLocal(now time.Time) {
	rl.sweepMu.Lock()
	if now.Sub(rl.lastSweep) < window {
		rl.sweepMu.Unlock()
		return
	}
	rl.lastSweep = now
	rl.sweepMu.Unlock()

	rl.localLimits.Range(func(k, v any) bool {
		w := v.(*localWindow)
		w.mu.Lock()
		expired := now.Sub(w.start) >= window
		w.mu.Unlock()
		if expired {
			rl.localLimits.Delete(k)
		}
		return true
	})
}

func (rl *RateLimiter) getEndpointLimits(endpoint, method string) *EndpointLimits {
	key := method + ":" + endpoint
	if limits, ok := rl.config.Endpoints[key]; ok {
		return &limits
	}
	return nil
}

func (rl *RateLimiter) effectiveLimit(endpoint *EndpointLimits) int {
	limit := rl.config.RequestsPerMinute
	if endpoint == nil {
		return limit
	}
	if endpoint.RequestsPerMinute > 0 && endpoint.RequestsPerMinute < limit {
		limit = endpoint.RequestsPerMinute
	}
	if endpoint.CostMultiplier > 1 {
		limit /= endpoint.CostMultiplier
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Middleware returns an HTTP middleware for rate limiting. getClientID may
// return "" to fall back to the client address.
func (rl *RateLimiter) Middleware(getClientID func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var clientID string
			if getClientID != nil {
				clientID = getClientID(r)
			}
			if clientID == "" {
				clientID = getClientIP(r)
			}

			result, err := rl.Check(r.Context(), clientID, r.URL.Path, r.Method)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if rl.config.IncludeHeaders {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			}

			if !result.Allowed {
				rl.logger.Debug("Rate limit exceeded",
					zap.String("client", clientID),
					zap.String("path", r.URL.Path),
				)
				retry := int(result.RetryAfter.Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"rate_limit_exceeded","message":"%s","retry_after":%d}`,
					result.Reason, retry)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP returns the client host without its port. Only the first hop of
// X-Forwarded-For is used.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return stripPort(ip)
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return stripPort(xri)
	}
	return stripPort(r.RemoteAddr)
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
