package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/pm-roleplay/internal/domain"
	"github.com/ashureev/pm-roleplay/internal/gemini"
)

// ErrUnusableEvaluation is returned when the model output has no evaluation object.
var ErrUnusableEvaluation = errors.New("model returned no usable evaluation")

const evaluationSystemInstruction = "You are a strict but fair coach grading a product-management trainee " +
	"on a role-play conversation. Score each listed criterion from 0 to 100. " +
	"Respond strictly with JSON of the form " +
	`{"overallScore": <number>, "categories": [{"name": "<criterion name>", "score": <number>, "feedback": "<text>"}], ` +
	`"summary": "<text>", "improvementAdvice": "<text>"} and nothing else. ` +
	"Use the criterion names exactly as given. Write feedback, summary and advice in Japanese."

type evaluationPayload struct {
	OverallScore *float64 `json:"overallScore"`
	Categories   []struct {
		Name     string   `json:"name"`
		Score    *float64 `json:"score"`
		Feedback string   `json:"feedback"`
	} `json:"categories"`
	Summary           string `json:"summary"`
	ImprovementAdvice string `json:"improvementAdvice"`
}

// Evaluate grades a transcript against the scenario rubric. Category names and
// weights always come from the scenario; the model only supplies scores and text.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (*domain.Evaluation, string, error) {
	sc, ok := s.catalog.Get(req.ScenarioID)
	if !ok {
		return nil, "", ErrScenarioNotFound
	}
	model := s.model(s.catalog.ProfileFor(req.ScenarioID))
	if !s.Configured() {
		return nil, model, gemini.ErrAPIKeyMissing
	}

	text, err := s.gen.Generate(ctx, gemini.Request{
		Model:             model,
		SystemInstruction: evaluationSystemInstruction,
		Turns: []gemini.Turn{{
			Role: gemini.TurnRoleUser,
			Text: evaluationPrompt(sc, req.Messages),
		}},
		JSONResponse: true,
	})
	if err != nil {
		return nil, model, err
	}

	var payload evaluationPayload
	if !decodeModelJSON(text, &payload) {
		return nil, model, ErrUnusableEvaluation
	}

	ev := buildEvaluation(sc, payload)
	ev.SessionID = req.SessionID
	ev.CreatedAt = time.Now().UTC()
	return ev, model, nil
}

func evaluationPrompt(sc domain.Scenario, messages []domain.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n%s\n\nCriteria:\n", sc.Title, sc.Description)
	for _, c := range sc.EvaluationCriteria {
		fmt.Fprintf(&b, "- %s (weight %g): %s\n", c.Name, c.Weight, c.Description)
	}
	b.WriteString("\nConversation:\n")
	b.WriteString(transcript(messages))
	return b.String()
}

func buildEvaluation(sc domain.Scenario, p evaluationPayload) *domain.Evaluation {
	byName := make(map[string]int, len(p.Categories))
	for i, c := range p.Categories {
		if _, dup := byName[c.Name]; !dup {
			byName[c.Name] = i
		}
	}

	ev := &domain.Evaluation{
		ScenarioID:        sc.ID,
		Categories:        make([]domain.EvaluationCategory, 0, len(sc.EvaluationCriteria)),
		Summary:           strings.TrimSpace(p.Summary),
		ImprovementAdvice: strings.TrimSpace(p.ImprovementAdvice),
	}

	var weighted, totalWeight float64
	for _, crit := range sc.EvaluationCriteria {
		cat := domain.EvaluationCategory{Name: crit.Name, Weight: crit.Weight}
		if i, ok := byName[crit.Name]; ok {
			cat.Feedback = strings.TrimSpace(p.Categories[i].Feedback)
			if score := p.Categories[i].Score; score != nil {
				v := clampScore(*score)
				cat.Score = &v
				weighted += v * crit.Weight
				totalWeight += crit.Weight
			}
		}
		ev.Categories = append(ev.Categories, cat)
	}

	switch {
	case p.OverallScore != nil:
		v := clampScore(*p.OverallScore)
		ev.OverallScore = &v
	case totalWeight > 0:
		v := weighted / totalWeight
		ev.OverallScore = &v
	}

	if sc.PassingScore != nil && ev.OverallScore != nil {
		passing := *ev.OverallScore >= *sc.PassingScore
		ev.Passing = &passing
	}
	return ev
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
