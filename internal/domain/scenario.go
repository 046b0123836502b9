package domain

import "time"

// Discipline groups scenarios that share a persona profile.
type Discipline string

// Known disciplines.
const (
	DisciplineRequirements Discipline = "requirements"
	DisciplineIncident     Discipline = "incident"
	DisciplineTesting      Discipline = "testing"
)

// Scenario is a read-only training exercise configuration.
type Scenario struct {
	ID                 string      `json:"id" yaml:"id" validate:"required"`
	Title              string      `json:"title" yaml:"title" validate:"required"`
	Description        string      `json:"description" yaml:"description"`
	Discipline         Discipline  `json:"discipline" yaml:"discipline" validate:"required"`
	KickoffPrompt      string      `json:"kickoffPrompt" yaml:"kickoffPrompt"`
	Missions           []Mission   `json:"missions,omitempty" yaml:"missions" validate:"dive"`
	EvaluationCriteria []Criterion `json:"evaluationCriteria" yaml:"evaluationCriteria" validate:"dive"`
	PassingScore       *float64    `json:"passingScore,omitempty" yaml:"passingScore" validate:"omitempty,gte=0,lte=100"`
}

// Mission is a sub-goal whose completion is inferred from the conversation.
type Mission struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	Title       string `json:"title" yaml:"title" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description"`
	Order       int    `json:"order" yaml:"order"`
}

// MissionStatus records a completed mission. Completion is append-only.
type MissionStatus struct {
	MissionID   string     `json:"missionId"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Criterion is one weighted rubric entry of a scenario.
type Criterion struct {
	Name        string  `json:"name" yaml:"name" validate:"required"`
	Weight      float64 `json:"weight" yaml:"weight" validate:"gt=0"`
	Description string  `json:"description,omitempty" yaml:"description"`
}

// MissionIDs returns the ids of the given missions as a set.
func MissionIDs(missions []Mission) map[string]struct{} {
	ids := make(map[string]struct{}, len(missions))
	for _, m := range missions {
		ids[m.ID] = struct{}{}
	}
	return ids
}
