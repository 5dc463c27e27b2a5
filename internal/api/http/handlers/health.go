package handlers

import (
	"context"
	"net/http"
	"oraclehub/internal/service"
	"oraclehub/pkg/httputil"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

type Handler struct {
	Log    logger.Logger
	Oracle *service.OracleService
}

func NewHandler(log logger.Logger, oracle *service.OracleService) *Handler {
	if oracle == nil {
		panic("oracle service cannot be nil")
	}

	return &Handler{Log: log, Oracle: oracle}
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]any{}, nil); err != nil {
		h.Log.Errorf("Healthz handler error: %s", err.Error())
	}
}

// Readiness checks health of external services/clients.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := h.Oracle.CheckDependency(ctx); err != nil {
		h.Log.Warnf("Readiness check failed, error=%v", err)
		err = httputil.Error(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependencies check failed", map[string]any{
			"error": err.Error(),
		})
		if err != nil {
			h.Log.Errorf("Readiness handler error: %s", err.Error())
		}
		return
	}

	if err := httputil.JSON(w, http.StatusOK, map[string]string{"dependencies": "healthy"}, nil); err != nil {
		h.Log.Errorf("Readiness handler error: %s", err.Error())
	}
}
