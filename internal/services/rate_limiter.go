package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/redis"
)

// RateLimitDecision результат проверки лимита для одного клиента
type RateLimitDecision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int64     `json:"limit"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RateLimiter ограничивает число запросов клиента в фиксированном окне.
// Счётчики живут в Redis, поэтому лимит общий для всех реплик.
type RateLimiter struct {
	redis   rateRedis
	log     *logger.Logger
	enabled bool
	limit   int64
	window  time.Duration
	prefix  string
	now     func() time.Time
}

type rateRedis interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	GetInt(ctx context.Context, key string) (int64, error)
}

// NewRateLimiter создаёт rate limiter. Без Redis или с выключенным конфигом он пропускает всё.
func NewRateLimiter(redisClient *redis.Client, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimiter {
	if redisClient == nil || cfg == nil || !cfg.Enabled || cfg.Requests <= 0 || cfg.WindowSeconds <= 0 {
		return &RateLimiter{enabled: false, now: time.Now}
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &RateLimiter{
		redis:   redisClient,
		log:     log,
		enabled: true,
		limit:   int64(cfg.Requests),
		window:  time.Duration(cfg.WindowSeconds) * time.Second,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Allow засчитывает запрос клиента и сообщает, укладывается ли он в лимит.
func (r *RateLimiter) Allow(ctx context.Context, client string) (*RateLimitDecision, error) {
	now := r.now()
	if !r.enabled {
		return &RateLimitDecision{Allowed: true, Limit: r.limit, Remaining: r.limit, ResetAt: now.Add(r.window)}, nil
	}

	key := r.makeKey(client)

	count, err := r.redis.Incr(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("rate limiter incr failed: %w", err)
	}

	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window); err != nil {
			r.log.WithError(err).WithField("key", key).Warn("Failed to set rate limit ttl")
		}
	}

	return &RateLimitDecision{
		Allowed:   count <= r.limit,
		Limit:     r.limit,
		Used:      count,
		Remaining: r.remaining(count),
		ResetAt:   now.Add(r.ttl(ctx, key)),
	}, nil
}

// Usage возвращает состояние окна клиента, не засчитывая запрос.
func (r *RateLimiter) Usage(ctx context.Context, client string) (*RateLimitDecision, error) {
	now := r.now()
	if !r.enabled {
		return &RateLimitDecision{Allowed: true, Limit: r.limit, Remaining: r.limit, ResetAt: now}, nil
	}

	key := r.makeKey(client)
	count, err := r.redis.GetInt(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return &RateLimitDecision{Allowed: true, Limit: r.limit, Remaining: r.limit, ResetAt: now.Add(r.window)}, nil
		}
		return nil, fmt.Errorf("rate limiter usage failed: %w", err)
	}

	return &RateLimitDecision{
		Allowed:   count < r.limit,
		Limit:     r.limit,
		Used:      count,
		Remaining: r.remaining(count),
		ResetAt:   now.Add(r.ttl(ctx, key)),
	}, nil
}

func (r *RateLimiter) ttl(ctx context.Context, key string) time.Duration {
	ttl, err := r.redis.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		if err != nil {
			r.log.WithError(err).WithField("key", key).Warn("Failed to get rate limit ttl")
		}
		return r.window
	}
	return ttl
}

func (r *RateLimiter) remaining(count int64) int64 {
	if count >= r.limit {
		return 0
	}
	return r.limit - count
}

func (r *RateLimiter) makeKey(client string) string {
	return fmt.Sprintf("%s:%s", r.prefix, strings.ReplaceAll(client, ":", "_"))
}

// Limit возвращает лимит для текущего окна.
func (r *RateLimiter) Limit() int64 {
	return r.limit
}

// Enabled сообщает, включён ли rate limiting.
func (r *RateLimiter) Enabled() bool {
	return r.enabled
}

// ExtractClientIP получает IP клиента из заголовков прокси или RemoteAddr.
func ExtractClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
