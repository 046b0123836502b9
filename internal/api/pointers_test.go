package api

import (
	"net/http"
	"testing"

	"github.com/ashureev/pm-roleplay/internal/events"
	"github.com/ashureev/pm-roleplay/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastScenarioPointer(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/pointers/last-scenario", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"scenarioId":""}`, rec.Body.String())

	rec = s.do(t, http.MethodPut, "/api/pointers/last-scenario", `{"scenarioId":"testing-signup"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/pointers/last-scenario", "")
	assert.JSONEq(t, `{"scenarioId":"testing-signup"}`, rec.Body.String())

	raw, err := s.kv.Get(t.Context(), "pm:user:u1:lastScenarioId")
	require.NoError(t, err)
	assert.Equal(t, "testing-signup", raw)

	rec = s.do(t, http.MethodPut, "/api/pointers/last-scenario", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLastSessionIDPointer(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, "/api/pointers/last-session", `{"sessionId":"s9"}`).Code)
	rec := s.do(t, http.MethodGet, "/api/pointers/last-session", "")
	assert.JSONEq(t, `{"sessionId":"s9"}`, rec.Body.String())
}

func TestScenarioSessionGuardedClear(t *testing.T) {
	s := newTestServer(t)
	path := "/api/pointers/scenarios/requirements-checkout/session"

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, path, `{"sessionId":"s1"}`).Code)

	rec := s.do(t, http.MethodDelete, path+"?sessionId=other", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared":false}`, rec.Body.String())
	assert.JSONEq(t, `{"sessionId":"s1"}`, s.do(t, http.MethodGet, path, "").Body.String())

	rec = s.do(t, http.MethodDelete, path+"?sessionId=s1", "")
	assert.JSONEq(t, `{"cleared":true}`, rec.Body.String())

	rec = s.do(t, http.MethodDelete, path+"?sessionId=s1", "")
	assert.JSONEq(t, `{"cleared":false}`, rec.Body.String())
	assert.JSONEq(t, `{"sessionId":""}`, s.do(t, http.MethodGet, path, "").Body.String())

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, path, "").Code)

	// one set plus one effective clear
	require.Len(t, s.pub.events, 2)
	assert.Equal(t, events.KindSet, s.pub.events[0].Kind)
	assert.Equal(t, events.KindClear, s.pub.events[1].Kind)
	assert.Equal(t, "pm:user:u1", s.pub.events[1].Namespace)

	require.Len(t, s.tracker.events, 2)
	assert.Equal(t, telemetry.EventPointerChange, s.tracker.events[1].Type)
	assert.Equal(t, "u1", s.tracker.events[1].UserID)
	assert.Equal(t, events.KindClear, s.tracker.events[1].Outcome)
}

func TestPointersAreScopedPerUser(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, "/api/pointers/last-scenario", `{"scenarioId":"a"}`).Code)

	req := newRequest(http.MethodGet, "/api/pointers/last-scenario")
	req.Header.Set("X-Test-User", "u2")
	rec := serveRequest(s, req)
	assert.JSONEq(t, `{"scenarioId":""}`, rec.Body.String())
}
