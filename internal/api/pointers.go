package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ashureev/pm-roleplay/internal/events"
	"github.com/ashureev/pm-roleplay/internal/identity"
	"github.com/ashureev/pm-roleplay/internal/pointer"
	"github.com/ashureev/pm-roleplay/internal/store"
	"github.com/ashureev/pm-roleplay/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

type scenarioPointerBody struct {
	ScenarioID string `json:"scenarioId" validate:"required,max=128"`
}

type sessionPointerBody struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
}

// PointerHandler exposes the caller's "where I left off" pointers.
type PointerHandler struct {
	kv     store.KV
	pub    events.Publisher
	prefix string
}

// NewPointerHandler creates a pointer handler. Every mutation is published on
// pub and recorded by tracker.
func NewPointerHandler(kv store.KV, pub events.Publisher, tracker telemetry.Tracker, prefix string) *PointerHandler {
	if tracker != nil {
		pub = trackingPublisher{next: pub, tracker: tracker}
	}
	return &PointerHandler{kv: kv, pub: pub, prefix: prefix}
}

// RegisterRoutes registers pointer routes.
func (h *PointerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/pointers", func(r chi.Router) {
		r.Get("/last-scenario", h.GetLastScenario)
		r.Put("/last-scenario", h.PutLastScenario)
		r.Get("/last-session", h.GetLastSessionID)
		r.Put("/last-session", h.PutLastSessionID)
		r.Get("/scenarios/{scenarioId}/session", h.GetScenarioSession)
		r.Put("/scenarios/{scenarioId}/session", h.PutScenarioSession)
		r.Delete("/scenarios/{scenarioId}/session", h.DeleteScenarioSession)
	})
}

func (h *PointerHandler) pointers(r *http.Request) *pointer.Store {
	return pointer.New(h.kv, identity.Namespace(r.Context(), h.prefix), h.pub)
}

// GetLastScenario returns {scenarioId}; empty when unset.
func (h *PointerHandler) GetLastScenario(w http.ResponseWriter, r *http.Request) {
	id, err := h.pointers(r).LastScenario(r.Context())
	if err != nil {
		storageError(w, "read last scenario", err)
		return
	}
	JSON(w, http.StatusOK, scenarioPointerBody{ScenarioID: id})
}

// PutLastScenario records the last opened scenario.
func (h *PointerHandler) PutLastScenario(w http.ResponseWriter, r *http.Request) {
	var body scenarioPointerBody
	if err := decodeJSON(w, r, &body); err != nil {
		Error(w, http.StatusBadRequest, "scenarioId is required")
		return
	}
	if err := h.pointers(r).SetLastScenario(r.Context(), body.ScenarioID); err != nil {
		storageError(w, "write last scenario", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLastSessionID returns {sessionId} for the most recent session.
func (h *PointerHandler) GetLastSessionID(w http.ResponseWriter, r *http.Request) {
	id, err := h.pointers(r).LastSessionID(r.Context())
	if err != nil {
		storageError(w, "read last session", err)
		return
	}
	JSON(w, http.StatusOK, sessionPointerBody{SessionID: id})
}

// PutLastSessionID records the most recent session.
func (h *PointerHandler) PutLastSessionID(w http.ResponseWriter, r *http.Request) {
	var body sessionPointerBody
	if err := decodeJSON(w, r, &body); err != nil {
		Error(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if err := h.pointers(r).SetLastSessionID(r.Context(), body.SessionID); err != nil {
		storageError(w, "write last session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetScenarioSession returns the last session of one scenario.
func (h *PointerHandler) GetScenarioSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.pointers(r).LastSession(r.Context(), chi.URLParam(r, "scenarioId"))
	if err != nil {
		storageError(w, "read scenario session", err)
		return
	}
	JSON(w, http.StatusOK, sessionPointerBody{SessionID: id})
}

// PutScenarioSession records the last session of one scenario.
func (h *PointerHandler) PutScenarioSession(w http.ResponseWriter, r *http.Request) {
	var body sessionPointerBody
	if err := decodeJSON(w, r, &body); err != nil {
		Error(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if err := h.pointers(r).SetLastSession(r.Context(), chi.URLParam(r, "scenarioId"), body.SessionID); err != nil {
		storageError(w, "write scenario session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteScenarioSession clears the scenario pointer only while it still holds
// ?sessionId=. A stale or repeated clear reports {cleared:false}.
func (h *PointerHandler) DeleteScenarioSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "sessionId query parameter is required")
		return
	}
	cleared, err := h.pointers(r).ClearLastSession(r.Context(), chi.URLParam(r, "scenarioId"), sessionID)
	if err != nil {
		storageError(w, "clear scenario session", err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"cleared": cleared})
}

func storageError(w http.ResponseWriter, op string, err error) {
	slog.Error("Storage operation failed", "op", op, "error", err)
	Error(w, http.StatusInternalServerError, "storage unavailable")
}

// trackingPublisher records pointer mutations before forwarding them.
type trackingPublisher struct {
	next    events.Publisher
	tracker telemetry.Tracker
}

func (p trackingPublisher) Publish(ctx context.Context, ev events.Event) {
	p.tracker.Track(telemetry.Event{
		Type:       telemetry.EventPointerChange,
		UserID:     identity.UserIDFromContext(ctx),
		SessionID:  ev.SessionID,
		ScenarioID: ev.ScenarioID,
		Outcome:    ev.Kind,
		Fields:     map[string]any{"key": ev.Key},
	})
	if p.next != nil {
		p.next.Publish(ctx, ev)
	}
}
