package handlers

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/services"
)

// RateLimitHandler отдаёт состояние лимита клиента.
type RateLimitHandler struct {
	limiter RateLimitStatusProvider
	log     *logger.Logger
	cfg     *config.RateLimitConfig
}

// NewRateLimitHandler создает новый RateLimitHandler.
func NewRateLimitHandler(limiter RateLimitStatusProvider, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimitHandler {
	return &RateLimitHandler{
		limiter: limiter,
		log:     log,
		cfg:     cfg,
	}
}

// Status возвращает текущие значения лимита для клиента.
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.limiter == nil || h.cfg == nil || !h.cfg.Enabled || !h.limiter.Enabled() {
		writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"enabled": false,
		})
		return
	}

	client := services.ExtractClientIP(r)
	usage, err := h.limiter.Usage(r.Context(), client)
	if err != nil {
		h.log.WithError(err).Error("Failed to fetch rate limit usage")
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to fetch rate limit usage")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"enabled":        true,
		"limit":          usage.Limit,
		"window_seconds": h.cfg.WindowSeconds,
		"used":           usage.Used,
		"remaining":      usage.Remaining,
		"reset_at":       usage.ResetAt.UTC().Format(time.RFC3339),
		"key":            client,
	})
}

// RateLimitMiddleware ограничивает запросы по IP клиента.
func RateLimitMiddleware(limiter MiddlewareLimiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || !limiter.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := limiter.Allow(r.Context(), services.ExtractClientIP(r))
			if err != nil {
				log.WithError(err).Error("Rate limiter failed")
				writeErrorResponse(w, http.StatusInternalServerError, "Rate limiter error")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			if !decision.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			}

			if !decision.Allowed {
				retry := int64(time.Until(decision.ResetAt).Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				writeErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
