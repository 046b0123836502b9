package api

import (
	"net/http"

	"github.com/ashureev/pm-roleplay/internal/scenario"
	"github.com/go-chi/chi/v5"
)

// ScenarioHandler serves the read-only scenario catalog.
type ScenarioHandler struct {
	catalog *scenario.Catalog
}

// NewScenarioHandler creates a scenario handler.
func NewScenarioHandler(catalog *scenario.Catalog) *ScenarioHandler {
	return &ScenarioHandler{catalog: catalog}
}

// RegisterRoutes registers scenario routes.
func (h *ScenarioHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/scenarios", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})
}

// List returns every scenario in catalog order.
func (h *ScenarioHandler) List(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"scenarios": h.catalog.List()})
}

// Get returns one scenario.
func (h *ScenarioHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.catalog.Get(chi.URLParam(r, "id"))
	if !ok {
		Error(w, http.StatusNotFound, "scenario not found")
		return
	}
	JSON(w, http.StatusOK, s)
}
