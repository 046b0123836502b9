package agent

import (
	"context"
	"strings"

	"github.com/ashureev/pm-roleplay/internal/gemini"
)

// Reply generates the persona's next message. The call is made once and never
// retried; every call regenerates from the full supplied history.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (ReplyResult, error) {
	profile := s.catalog.ProfileFor(req.ScenarioID)
	model := s.model(profile)

	if !s.Configured() {
		return ReplyResult{Model: model}, gemini.ErrAPIKeyMissing
	}

	text, err := s.gen.Generate(ctx, gemini.Request{
		Model: model,
		SystemInstruction: joinNonEmpty(
			profile.SystemPrompt,
			s.catalog.ScenarioPrompt(req.ScenarioID),
			req.Prompt,
		),
		Turns: gemini.TurnsFromMessages(req.Messages),
	})
	if err != nil {
		return ReplyResult{Model: model}, err
	}

	reply := strings.TrimSpace(text)
	if reply == "" {
		reply = ReplyPlaceholder
	}
	return ReplyResult{Reply: reply, Model: model}, nil
}
