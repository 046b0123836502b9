package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/pm-roleplay/internal/domain"
	"github.com/ashureev/pm-roleplay/internal/identity"
	"github.com/ashureev/pm-roleplay/internal/resource"
	"github.com/ashureev/pm-roleplay/internal/store"
	"github.com/go-chi/chi/v5"
)

// SessionHandler exposes cached per-session resources.
type SessionHandler struct {
	resources *resource.Cache
	prefix    string
}

// NewSessionHandler creates a session resource handler.
func NewSessionHandler(resources *resource.Cache, prefix string) *SessionHandler {
	return &SessionHandler{resources: resources, prefix: prefix}
}

// RegisterRoutes registers session resource routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions/{sessionId}", func(r chi.Router) {
		r.Get("/snapshot", h.GetSnapshot)
		r.Put("/snapshot", h.PutSnapshot)
		r.Delete("/snapshot", h.DeleteSnapshot)

		r.Get("/outputs", h.ListOutputs)
		r.Put("/outputs", h.PutOutput)
		r.Delete("/outputs/{outputId}", h.DeleteOutput)

		r.Get("/comments", h.ListComments)
		r.Post("/comments", h.AddComment)
		r.Delete("/comments/{commentId}", h.DeleteComment)

		r.Get("/evaluation", h.GetEvaluation)
	})
}

func (h *SessionHandler) scope(r *http.Request) (store.Namespace, string) {
	return identity.Namespace(r.Context(), h.prefix), chi.URLParam(r, "sessionId")
}

// GetSnapshot returns the cached transcript.
func (h *SessionHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ns, sessionID := h.scope(r)
	snap, err := h.resources.Snapshot(r.Context(), ns, sessionID)
	if errors.Is(err, resource.ErrNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		storageError(w, "read snapshot", err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// PutSnapshot replaces the cached transcript.
func (h *SessionHandler) PutSnapshot(w http.ResponseWriter, r *http.Request) {
	ns, sessionID := h.scope(r)
	var snap domain.SessionSnapshot
	if err := decodeJSON(w, r, &snap); err != nil {
		Error(w, http.StatusBadRequest, "invalid snapshot")
		return
	}
	snap.SessionID = sessionID
	if err := h.resources.SaveSnapshot(r.Context(), ns, &snap); err != nil {
		storageError(w, "write snapshot", err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// DeleteSnapshot drops the cached transcript.
func (h *SessionHandler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	ns, sessionID := h.scope(r)
	if err := h.resources.DeleteSnapshot(r.Context(), ns, sessionID); err != nil {
		storageError(w, "delete snapshot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOutputs returns the session's outputs.
func (h *SessionHandler) ListOutputs(w http.ResponseWriter, r *http.Request) {
	ns, sessionID := h.scope(r)
	outputs, err := h.resources.Outputs(r.Context(), ns, sessionID)
	if err != nil {
		storageError(w, "read outputs", err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"outputs": outputs})
}

// PutOutput creates or replaces one output.
func (h *SessionHandler) PutOutput(w http.ResponseWriter, r *http.Request) {
	ns, sessionID := h.scope(r)
	var out domain.Output
	if err := decodeJSON(w, r, &out); err != nil {
		Error(w, http.StatusBadRequest, "invalid output")
		return
	}
	saved, err := h.resources.SaveOutput(r.Context(), ns, sessionID, out)
	if err != nil {
		storageError(w, "write output", err)
		return
	}
	JSON(w, http.StatusOK, saved)
}

// DeleteOutput removes one output.
func (h *SessionHandler) DeleteOutput(w http.ResponseWriter, r *http.Request) {
	ns, sessionID := h.scope(r)
	deleted, err := h.resources.DeleteOutput(r.Context(), ns, sessionID, chi.URLParam(r, "outputId"))
	if err != nil {
		storageError(w, "delete output", err)
		return
	}
	if !deleted {
		Error(w, http.StatusNotFound, "output not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListComments returns the session's comments.
func (h *SessionHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	ns, sessionID := h.scope(r)
	comments, err := h.resources.Comments(r.Context(), ns, sessionID)
	if err != nil {
		storageError(w, "read comments", err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"comments": comments})
}

// AddComment appends a comment.
func (h *SessionHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	ns, sessionID := h.scope(r)
	var c domain.Comment
	if err := decodeJSON(w, r, &c); err != nil {
		Error(w, http.StatusBadRequest, "invalid comment")
		return
	}
	saved, err := h.resources.AddComment(r.Context(), ns, sessionID, c)
	if err != nil {
		storageError(w, "write comment", err)
		return
	}
	JSON(w, http.StatusCreated, saved)
}

// DeleteComment removes one comment.
func (h *SessionHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ns, sessionID := h.scope(r)
	deleted, err := h.resources.DeleteComment(r.Context(), ns, sessionID, chi.URLParam(r, "commentId"))
	if err != nil {
		storageError(w, "delete comment", err)
		return
	}
	if !deleted {
		Error(w, http.StatusNotFound, "comment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetEvaluation returns the stored evaluation.
func (h *SessionHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ns, sessionID := h.scope(r)
	ev, err := h.resources.Evaluation(r.Context(), ns, sessionID)
	if errors.Is(err, resource.ErrNotFound) {
		Error(w, http.StatusNotFound, "evaluation not found")
		return
	}
	if err != nil {
		storageError(w, "read evaluation", err)
		return
	}
	JSON(w, http.StatusOK, ev)
}
