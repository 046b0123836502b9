package agent

import (
	"errors"
	"strings"

	"github.com/ashureev/pm-roleplay/internal/domain"
	"github.com/ashureev/pm-roleplay/internal/gemini"
	"github.com/ashureev/pm-roleplay/internal/scenario"
)

// ReplyPlaceholder replaces an empty model reply.
const ReplyPlaceholder = "返答を生成できませんでした。"

// ErrScenarioNotFound is returned when an operation requires a known scenario.
var ErrScenarioNotFound = errors.New("scenario not found")

// configurable is implemented by generators that can report a missing API key
// without making a call.
type configurable interface {
	Configured() bool
}

// Service drives the generative model for all agent routes.
type Service struct {
	gen           gemini.Generator
	catalog       *scenario.Catalog
	modelOverride string
}

// NewService creates a service. A non-empty modelOverride replaces every
// profile's model.
func NewService(gen gemini.Generator, catalog *scenario.Catalog, modelOverride string) *Service {
	return &Service{gen: gen, catalog: catalog, modelOverride: modelOverride}
}

// Configured reports whether generation can be attempted at all.
func (s *Service) Configured() bool {
	if s.gen == nil {
		return false
	}
	if c, ok := s.gen.(configurable); ok {
		return c.Configured()
	}
	return true
}

func (s *Service) model(p scenario.Profile) string {
	if s.modelOverride != "" {
		return s.modelOverride
	}
	return p.Model
}

// joinNonEmpty joins the non-blank parts with a blank line.
func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// transcript renders messages as "ROLE: content" lines.
func transcript(messages []domain.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		role := string(m.Role)
		if role == "" {
			role = string(domain.RoleUser)
		}
		b.WriteString(strings.ToUpper(role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
