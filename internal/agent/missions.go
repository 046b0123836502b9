package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/pm-roleplay/internal/domain"
	"github.com/ashureev/pm-roleplay/internal/gemini"
)

// missionWindow is how many trailing messages the detector sees.
const missionWindow = 14

const missionSystemInstruction = "You judge whether a product-management trainee has completed training missions " +
	"based on a role-play conversation. Respond strictly with JSON of the form " +
	`{"completedMissionIds": ["<mission id>", ...]} and nothing else. ` +
	"Only include a mission when the conversation clearly shows it was completed. " +
	"If you are unsure about a mission, omit it."

// DetectMissions returns the ids of missions the model judged complete. It
// never fails: every problem degrades to an empty list.
func (s *Service) DetectMissions(ctx context.Context, req MissionRequest) []string {
	missions := req.Missions
	if len(missions) == 0 {
		if sc, ok := s.catalog.Get(req.ScenarioID); ok {
			missions = sc.Missions
		}
	}
	if len(missions) == 0 || len(req.Messages) == 0 || !s.Configured() {
		return []string{}
	}

	text, err := s.gen.Generate(ctx, gemini.Request{
		Model:             s.model(s.catalog.ProfileFor(req.ScenarioID)),
		SystemInstruction: missionSystemInstruction,
		Turns: []gemini.Turn{{
			Role: gemini.TurnRoleUser,
			Text: missionPrompt(missions, domain.RecentMessages(req.Messages, missionWindow)),
		}},
		JSONResponse: true,
	})
	if err != nil {
		slog.Warn("mission detection failed", "scenario_id", req.ScenarioID, "error", err)
		return []string{}
	}

	return filterMissionIDs(parseCompletedIDs(text), domain.MissionIDs(missions))
}

func missionPrompt(missions []domain.Mission, recent []domain.Message) string {
	var b strings.Builder
	b.WriteString("Missions:\n")
	for _, m := range missions {
		fmt.Fprintf(&b, "- %s: %s", m.ID, m.Title)
		if m.Description != "" {
			fmt.Fprintf(&b, " (%s)", m.Description)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nConversation:\n")
	b.WriteString(transcript(recent))
	return b.String()
}

// parseCompletedIDs reads the completedMissionIds array from model output.
// It returns nil when no usable object is found.
func parseCompletedIDs(text string) []any {
	var payload struct {
		CompletedMissionIDs []any `json:"completedMissionIds"`
	}
	if !decodeModelJSON(text, &payload) {
		return nil
	}
	return payload.CompletedMissionIDs
}

// filterMissionIDs keeps string ids from the known set, each at most once, in
// the order the model returned them.
func filterMissionIDs(raw []any, known map[string]struct{}) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(raw))
	for _, v := range raw {
		id, ok := v.(string)
		if !ok {
			continue
		}
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// decodeModelJSON decodes model output into dst. The whole trimmed text is
// tried first, then every balanced {...} object in order.
func decodeModelJSON(text string, dst any) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if json.Unmarshal([]byte(text), dst) == nil {
		return true
	}
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			if json.Unmarshal([]byte(text[start:end+1]), dst) == nil {
				return true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return false
}

// matchBrace returns the index of the brace closing the one at open, skipping
// braces inside JSON strings, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	inString, escaped := false, false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

