package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/pm-roleplay/internal/api"
	"github.com/ashureev/pm-roleplay/internal/gemini"
	"github.com/ashureev/pm-roleplay/internal/identity"
	"github.com/ashureev/pm-roleplay/internal/resource"
	"github.com/ashureev/pm-roleplay/internal/telemetry"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

const (
	errReplyFailed      = "Failed to generate reply"
	errEvaluationFailed = "Failed to generate evaluation"
)

// Handler serves the agent routes.
type Handler struct {
	svc       *Service
	resources *resource.Cache
	limiter   *RateLimiter
	tracker   telemetry.Tracker
	validate  *validator.Validate
	prefix    string
}

// NewHandler creates a handler. limiter and resources may be nil; a nil
// tracker records nothing.
func NewHandler(svc *Service, resources *resource.Cache, limiter *RateLimiter, tracker telemetry.Tracker, storagePrefix string) *Handler {
	if tracker == nil {
		tracker = telemetry.Noop{}
	}
	if resources == nil {
		resources = resource.New(nil, nil)
	}
	return &Handler{
		svc:       svc,
		resources: resources,
		limiter:   limiter,
		tracker:   tracker,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		prefix:    storagePrefix,
	}
}

// RegisterRoutes registers the agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/agent", func(r chi.Router) {
		r.Post("/reply", h.HandleReply)
		r.Post("/missions", h.HandleMissions)
		r.Post("/evaluate", h.HandleEvaluate)
	})
}

// HandleReply handles POST /api/agent/reply.
func (h *Handler) HandleReply(w http.ResponseWriter, r *http.Request) {
	defer recoverTo(w, r, http.StatusInternalServerError, map[string]string{"error": errReplyFailed})

	userID := identity.UserIDFromContext(r.Context())
	if !h.allow(userID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req ReplyRequest
	if err := decodeBody(w, r, &req); err != nil {
		slog.Warn("invalid reply request body", "error", err)
		api.Error(w, http.StatusInternalServerError, errReplyFailed)
		return
	}

	start := time.Now()
	res, err := h.svc.Reply(r.Context(), req)
	ev := telemetry.Event{
		Type:       telemetry.EventAgentReply,
		UserID:     userID,
		SessionID:  identity.SessionIDFromContext(r.Context()),
		ScenarioID: req.ScenarioID,
		Model:      res.Model,
		DurationMS: time.Since(start).Milliseconds(),
		Fields:     map[string]any{"messages": len(req.Messages)},
	}

	if err != nil {
		ev.Outcome = outcome(err)
		h.tracker.Track(ev)
		if errors.Is(err, gemini.ErrAPIKeyMissing) {
			api.Error(w, http.StatusBadRequest, gemini.ErrAPIKeyMissing.Error())
			return
		}
		logGenerationError(r, "agent reply failed", err)
		api.Error(w, http.StatusInternalServerError, errReplyFailed)
		return
	}

	ev.Outcome = "ok"
	h.tracker.Track(ev)
	api.JSON(w, http.StatusOK, ReplyResponse{Reply: res.Reply})
}

// HandleMissions handles POST /api/agent/missions. It always answers 200.
func (h *Handler) HandleMissions(w http.ResponseWriter, r *http.Request) {
	defer recoverTo(w, r, http.StatusOK, MissionResponse{CompletedMissionIDs: []string{}})

	var req MissionRequest
	if err := decodeBody(w, r, &req); err != nil {
		slog.Warn("invalid mission request body", "error", err)
		api.JSON(w, http.StatusOK, MissionResponse{CompletedMissionIDs: []string{}})
		return
	}

	start := time.Now()
	ids := h.svc.DetectMissions(r.Context(), req)
	h.tracker.Track(telemetry.Event{
		Type:       telemetry.EventMissionDetection,
		UserID:     identity.UserIDFromContext(r.Context()),
		SessionID:  identity.SessionIDFromContext(r.Context()),
		ScenarioID: req.ScenarioID,
		DurationMS: time.Since(start).Milliseconds(),
		Outcome:    "ok",
		Fields: map[string]any{
			"messages":  len(req.Messages),
			"missions":  len(req.Missions),
			"completed": len(ids),
		},
	})

	api.JSON(w, http.StatusOK, MissionResponse{CompletedMissionIDs: ids})
}

// HandleEvaluate handles POST /api/agent/evaluate.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	defer recoverTo(w, r, http.StatusInternalServerError, map[string]string{"error": errEvaluationFailed})

	ctx := r.Context()
	userID := identity.UserIDFromContext(ctx)
	if !h.allow(userID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req EvaluateRequest
	if err := decodeBody(w, r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.Error(w, http.StatusBadRequest, "sessionId and scenarioId are required")
		return
	}

	start := time.Now()
	result, model, err := h.svc.Evaluate(ctx, req)
	ev := telemetry.Event{
		Type:       telemetry.EventEvaluation,
		UserID:     userID,
		SessionID:  req.SessionID,
		ScenarioID: req.ScenarioID,
		Model:      model,
		DurationMS: time.Since(start).Milliseconds(),
	}

	switch {
	case errors.Is(err, ErrScenarioNotFound):
		ev.Outcome = "scenario_not_found"
		h.tracker.Track(ev)
		api.Error(w, http.StatusNotFound, "scenario not found")
		return
	case errors.Is(err, gemini.ErrAPIKeyMissing):
		ev.Outcome = outcome(err)
		h.tracker.Track(ev)
		api.Error(w, http.StatusBadRequest, gemini.ErrAPIKeyMissing.Error())
		return
	case err != nil:
		ev.Outcome = outcome(err)
		h.tracker.Track(ev)
		logGenerationError(r, "evaluation failed", err)
		api.Error(w, http.StatusInternalServerError, errEvaluationFailed)
		return
	}

	if err := h.resources.SaveEvaluation(ctx, identity.Namespace(ctx, h.prefix), result); err != nil {
		slog.Warn("failed to store evaluation", "session_id", req.SessionID, "error", err)
	}

	ev.Outcome = "ok"
	if result.OverallScore != nil {
		ev.Fields = map[string]any{"overallScore": *result.OverallScore}
	}
	h.tracker.Track(ev)
	api.JSON(w, http.StatusOK, result)
}

func (h *Handler) allow(userID string) bool {
	return h.limiter == nil || h.limiter.Allow(userID)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(dst)
}

// recoverTo converts a panic into the route's documented fallback response.
func recoverTo(w http.ResponseWriter, r *http.Request, status int, body any) {
	if rec := recover(); rec != nil {
		slog.Error("agent handler panic",
			"path", r.URL.Path,
			"request_id", chiMiddleware.GetReqID(r.Context()),
			"panic", rec,
		)
		api.JSON(w, status, body)
	}
}

func logGenerationError(r *http.Request, msg string, err error) {
	attrs := []any{"request_id", chiMiddleware.GetReqID(r.Context()), "error", err}
	var upstream *gemini.UpstreamError
	if errors.As(err, &upstream) {
		attrs = append(attrs, "status", upstream.StatusCode, "body", upstream.Body)
	}
	slog.Error(msg, attrs...)
}

func outcome(err error) string {
	var upstream *gemini.UpstreamError
	switch {
	case errors.Is(err, gemini.ErrAPIKeyMissing):
		return "api_key_missing"
	case errors.As(err, &upstream):
		return "upstream_error"
	default:
		return "error"
	}
}
