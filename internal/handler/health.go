// Package handler holds the HTTP handlers of the operational surface. The
// bot itself talks to Telegram; HTTP only serves probes, metrics and, in
// webhook mode, update deliveries (see internal/telegram).
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable. *sqlite.DB implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of a successful probe.
type HealthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
}

// HealthHandler answers liveness/readiness probes.
type HealthHandler struct {
	db      Pinger
	mode    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler reports mode (polling or webhook) in every response.
func NewHealthHandler(db Pinger, mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		mode:    mode,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// HandleHealth handles GET /healthz. The store must answer a ping within the
// timeout, otherwise the probe fails with 503.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Mode: h.mode})
}
