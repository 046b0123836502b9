package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/pm-roleplay/internal/gemini"
	"github.com/ashureev/pm-roleplay/internal/identity"
	"github.com/ashureev/pm-roleplay/internal/resource"
	"github.com/ashureev/pm-roleplay/internal/store"
	"github.com/ashureev/pm-roleplay/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTracker struct {
	events []string
}

func (r *recordingTracker) Track(ev telemetry.Event) { r.events = append(r.events, ev.Type+":"+ev.Outcome) }
func (r *recordingTracker) Close() error          { return nil }

func newRouter(t *testing.T, gen *fakeGenerator, limiter *RateLimiter, cache *resource.Cache, tracker *recordingTracker) http.Handler {
	t.Helper()
	h := NewHandler(NewService(gen, testCatalog(t), ""), cache, limiter, tracker, "pm")
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(identity.WithUserID(r.Context(), "u1")))
		})
	})
	h.RegisterRoutes(r)
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleReplySuccess(t *testing.T) {
	tracker := &recordingTracker{}
	h := newRouter(t, &fakeGenerator{text: "こんにちは"}, nil, nil, tracker)

	rec := post(t, h, "/api/agent/reply", `{"scenarioId":"req-1","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"こんにちは"}`, rec.Body.String())
	assert.Equal(t, []string{"agent_reply:ok"}, tracker.events)
}

func TestHandleReplyFailures(t *testing.T) {
	cases := []struct {
		name   string
		gen    *fakeGenerator
		body   string
		status int
		want   string
	}{
		{"missing key", &fakeGenerator{unconfigured: true}, `{}`, http.StatusBadRequest, `{"error":"GEMINI_API_KEY is not set"}`},
		{"network error", &fakeGenerator{err: errors.New("dial tcp: refused")}, `{}`, http.StatusInternalServerError, `{"error":"Failed to generate reply"}`},
		{"upstream error", &fakeGenerator{err: &gemini.UpstreamError{StatusCode: 403, Body: `{"secret":"detail"}`}}, `{}`, http.StatusInternalServerError, `{"error":"Failed to generate reply"}`},
		{"malformed body", &fakeGenerator{text: "x"}, `{"messages":`, http.StatusInternalServerError, `{"error":"Failed to generate reply"}`},
		{"panic", &fakeGenerator{panicOnCall: true}, `{}`, http.StatusInternalServerError, `{"error":"Failed to generate reply"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newRouter(t, tc.gen, nil, nil, &recordingTracker{})
			rec := post(t, h, "/api/agent/reply", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.want, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "secret")
		})
	}
}

func TestHandleMissionsAlwaysOK(t *testing.T) {
	msgs := `[{"role":"user","content":"目的は売上改善です"}]`
	cases := []struct {
		name string
		gen  *fakeGenerator
		body string
		want string
	}{
		{"detected", &fakeGenerator{text: `{"completedMissionIds":["m1","bogus"]}`}, `{"scenarioId":"req-1","messages":` + msgs + `}`, `{"completedMissionIds":["m1"]}`},
		{"network error", &fakeGenerator{err: errors.New("timeout")}, `{"scenarioId":"req-1","messages":` + msgs + `}`, `{"completedMissionIds":[]}`},
		{"missing key", &fakeGenerator{unconfigured: true}, `{"scenarioId":"req-1","messages":` + msgs + `}`, `{"completedMissionIds":[]}`},
		{"empty messages", &fakeGenerator{text: `{"completedMissionIds":["m1"]}`}, `{"scenarioId":"req-1"}`, `{"completedMissionIds":[]}`},
		{"malformed body", &fakeGenerator{}, `not json`, `{"completedMissionIds":[]}`},
		{"unparsable output", &fakeGenerator{text: "done!"}, `{"scenarioId":"req-1","messages":` + msgs + `}`, `{"completedMissionIds":[]}`},
		{"panic", &fakeGenerator{panicOnCall: true}, `{"scenarioId":"req-1","messages":` + msgs + `}`, `{"completedMissionIds":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newRouter(t, tc.gen, nil, nil, &recordingTracker{})
			rec := post(t, h, "/api/agent/missions", tc.body)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tc.want, rec.Body.String())
		})
	}
}

func TestHandleMissionsIgnoresExistingStatus(t *testing.T) {
	h := newRouter(t, &fakeGenerator{text: `{"completedMissionIds":["m1"]}`}, nil, nil, &recordingTracker{})
	rec := post(t, h, "/api/agent/missions",
		`{"scenarioId":"req-1","messages":[{"role":"user","content":"x"}],"existingMissionStatus":[{"missionId":"m1"}]}`)
	assert.JSONEq(t, `{"completedMissionIds":["m1"]}`, rec.Body.String())
}

func TestHandleEvaluateStoresResult(t *testing.T) {
	kv := store.NewMemory()
	cache := resource.New(kv, nil)
	gen := &fakeGenerator{text: `{"overallScore":80,"categories":[{"name":"Discovery","score":80}],"summary":"良い"}`}
	h := newRouter(t, gen, nil, cache, &recordingTracker{})

	rec := post(t, h, "/api/agent/evaluate", `{"sessionId":"s1","scenarioId":"req-1","messages":[{"role":"user","content":"x"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"passing":true`)

	stored, err := cache.Evaluation(context.Background(), store.Namespace{Prefix: "pm", UserID: "u1"}, "s1")
	require.NoError(t, err)
	assert.Equal(t, "良い", stored.Summary)
	assert.Equal(t, 80.0, *stored.OverallScore)
}

func TestHandleEvaluateErrors(t *testing.T) {
	cases := []struct {
		name   string
		gen    *fakeGenerator
		body   string
		status int
		want   string
	}{
		{"unknown scenario", &fakeGenerator{}, `{"sessionId":"s1","scenarioId":"zzz"}`, http.StatusNotFound, `{"error":"scenario not found"}`},
		{"missing ids", &fakeGenerator{}, `{"scenarioId":"req-1"}`, http.StatusBadRequest, `{"error":"sessionId and scenarioId are required"}`},
		{"missing key", &fakeGenerator{unconfigured: true}, `{"sessionId":"s1","scenarioId":"req-1"}`, http.StatusBadRequest, `{"error":"GEMINI_API_KEY is not set"}`},
		{"upstream", &fakeGenerator{err: &gemini.UpstreamError{StatusCode: 500}}, `{"sessionId":"s1","scenarioId":"req-1"}`, http.StatusInternalServerError, `{"error":"Failed to generate evaluation"}`},
		{"garbage output", &fakeGenerator{text: "???"}, `{"sessionId":"s1","scenarioId":"req-1"}`, http.StatusInternalServerError, `{"error":"Failed to generate evaluation"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newRouter(t, tc.gen, nil, nil, &recordingTracker{})
			rec := post(t, h, "/api/agent/evaluate", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.want, rec.Body.String())
		})
	}
}

func TestRateLimitAppliesToReplyButNotMissions(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	defer limiter.Close()
	h := newRouter(t, &fakeGenerator{text: `{"completedMissionIds":[]}`}, limiter, nil, &recordingTracker{})

	assert.Equal(t, http.StatusOK, post(t, h, "/api/agent/reply", `{}`).Code)

	rec := post(t, h, "/api/agent/reply", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, post(t, h, "/api/agent/missions", `{"scenarioId":"req-1"}`).Code)
}

func TestStaleTokenDoesNotBlockAgentRoutes(t *testing.T) {
	h := NewHandler(NewService(&fakeGenerator{text: `{"completedMissionIds":["m1"]}`}, testCatalog(t), ""), nil, nil, &recordingTracker{}, "pm")
	r := chi.NewRouter()
	r.Use(identity.LenientMiddleware("secret", true))
	h.RegisterRoutes(r)

	for _, path := range []string{"/api/agent/missions", "/api/agent/reply"} {
		req := httptest.NewRequest(http.MethodPost, path,
			strings.NewReader(`{"scenarioId":"req-1","messages":[{"role":"user","content":"x"}]}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer expired.or.garbage")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestHandleReplyAcceptsClientMessageShapes(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	h := newRouter(t, gen, nil, nil, &recordingTracker{})

	rec := post(t, h, "/api/agent/reply",
		`{"scenarioId":"req-1","messages":[{"role":"user","content":"hi","createdAt":1714550400000,"tags":"decision"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, gen.calls())
}
