package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"
)

// DashboardHandler сводка админской панели
type DashboardHandler struct {
	dashboard DashboardProvider
	log       *logger.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewDashboardHandler создает обработчик админской панели
func NewDashboardHandler(dashboard DashboardProvider, log *logger.Logger, cfg *config.DashboardConfig) *DashboardHandler {
	timeout := 5 * time.Second
	if cfg != nil && cfg.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	return &DashboardHandler{
		dashboard: dashboard,
		log:       log,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Summary считает сводку заново на каждый запрос
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	summary, err := h.dashboard.GetDashboardSummary(ctx, h.now())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeErrorResponse(w, http.StatusGatewayTimeout, "Dashboard computation timed out")
			return
		}
		writeServiceError(w, h.log, err, "Failed to compute dashboard")
		return
	}
	writeJSONResponse(w, http.StatusOK, summary)
}
