package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/pm-roleplay/internal/store"
	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	kv      store.KV
	timeout time.Duration
}

// NewHealthHandler creates a health handler. kv may be nil when storage is disabled.
func NewHealthHandler(kv store.KV) *HealthHandler {
	return &HealthHandler{kv: kv, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	switch {
	case h.kv == nil:
		checks["storage"] = "disabled"
	case h.kv.Ping(ctx) != nil:
		slog.Error("Health check failed", "check", "storage")
		checks["storage"] = "unreachable"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	default:
		checks["storage"] = "ok"
	}

	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// ConfigHandler exposes the non-secret settings the frontend needs.
type ConfigHandler struct {
	aiEnabled     bool
	storageDriver string
}

// NewConfigHandler creates a config handler.
func NewConfigHandler(aiEnabled bool, storageDriver string) *ConfigHandler {
	return &ConfigHandler{aiEnabled: aiEnabled, storageDriver: storageDriver}
}

// GetConfig returns the server configuration for the frontend.
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"ai_enabled":     h.aiEnabled,
		"storage_driver": h.storageDriver,
	})
}

// RegisterRoutes registers GET /api/config.
func (h *ConfigHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
}
