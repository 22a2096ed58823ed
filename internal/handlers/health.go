package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger sprawdza połączenie z magazynem danych
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler obsługuje GET /healthz
type HealthHandler struct {
	backend string
	pinger  Pinger
	logger  *slog.Logger
}

// NewHealthHandler tworzy handler. pinger może być nil (magazyn w pamięci).
func NewHealthHandler(backend string, pinger Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{backend: backend, pinger: pinger, logger: logger}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Warn("Magazyn danych nie odpowiada", "backend", h.backend, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "backend": h.backend})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": h.backend})
}
