package domain

import "time"

// Evaluation is a replaceable snapshot of the rubric result for a session.
type Evaluation struct {
	SessionID         string               `json:"sessionId"`
	ScenarioID        string               `json:"scenarioId,omitempty"`
	OverallScore      *float64             `json:"overallScore,omitempty"`
	Passing           *bool                `json:"passing,omitempty"`
	Categories        []EvaluationCategory `json:"categories"`
	Summary           string               `json:"summary,omitempty"`
	ImprovementAdvice string               `json:"improvementAdvice,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
}

// EvaluationCategory is the score for one rubric criterion.
type EvaluationCategory struct {
	Name     string   `json:"name"`
	Weight   float64  `json:"weight"`
	Score    *float64 `json:"score,omitempty"`
	Feedback string   `json:"feedback,omitempty"`
}
