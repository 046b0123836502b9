// Package agent implements the role-play agent routes: conversational replies,
// mission detection and rubric evaluation.
package agent

import "github.com/ashureev/pm-roleplay/internal/domain"

// ReplyRequest is the body of POST /api/agent/reply.
type ReplyRequest struct {
	ScenarioID string           `json:"scenarioId,omitempty"`
	Prompt     string           `json:"prompt,omitempty"`
	Messages   []domain.Message `json:"messages,omitempty"`
}

// ReplyResponse is the success body of POST /api/agent/reply.
type ReplyResponse struct {
	Reply string `json:"reply"`
}

// MissionRequest is the body of POST /api/agent/missions. ExistingMissionStatus
// is accepted for compatibility and does not filter the result.
type MissionRequest struct {
	ScenarioID            string                 `json:"scenarioId,omitempty"`
	Missions              []domain.Mission       `json:"missions,omitempty"`
	Messages              []domain.Message       `json:"messages,omitempty"`
	ExistingMissionStatus []domain.MissionStatus `json:"existingMissionStatus,omitempty"`
}

// MissionResponse is the only body POST /api/agent/missions ever returns.
type MissionResponse struct {
	CompletedMissionIDs []string `json:"completedMissionIds"`
}

// EvaluateRequest is the body of POST /api/agent/evaluate.
type EvaluateRequest struct {
	SessionID  string           `json:"sessionId" validate:"required"`
	ScenarioID string           `json:"scenarioId" validate:"required"`
	Messages   []domain.Message `json:"messages" validate:"dive"`
}

// ReplyResult is a generated reply plus the model that produced it.
type ReplyResult struct {
	Reply string
	Model string
}
