package domain

import "time"

// SessionPointer is the per-namespace view of "where the user left off".
type SessionPointer struct {
	LastScenarioID string            `json:"lastScenarioId,omitempty"`
	LastSessionID  string            `json:"lastSessionId,omitempty"`
	Sessions       map[string]string `json:"sessions,omitempty"` // scenarioId -> sessionId
}

// SessionSnapshot is a locally cached copy of a session transcript.
type SessionSnapshot struct {
	SessionID       string          `json:"sessionId"`
	ScenarioID      string          `json:"scenarioId"`
	Messages        []Message       `json:"messages"`
	MissionStatuses []MissionStatus `json:"missionStatuses,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Output is an artifact the user produced during a session (e.g. a PRD draft).
type Output struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind" validate:"required"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Comment is a reviewer note attached to a session, optionally to one message.
type Comment struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	MessageID string    `json:"messageId,omitempty"`
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
}
