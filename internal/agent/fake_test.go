package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/ashureev/pm-roleplay/internal/domain"
	"github.com/ashureev/pm-roleplay/internal/gemini"
	"github.com/ashureev/pm-roleplay/internal/scenario"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	mu           sync.Mutex
	text         string
	err          error
	unconfigured bool
	panicOnCall  bool
	requests     []gemini.Request
}

func (f *fakeGenerator) Configured() bool { return !f.unconfigured }

func (f *fakeGenerator) Generate(_ context.Context, req gemini.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.panicOnCall {
		panic("boom")
	}
	return f.text, f.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeGenerator) last() gemini.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func testCatalog(t *testing.T) *scenario.Catalog {
	t.Helper()
	passing := 70.0
	c, err := scenario.New([]domain.Scenario{
		{
			ID:            "req-1",
			Title:         "Checkout requirements",
			Description:   "Gather requirements",
			Discipline:    domain.DisciplineRequirements,
			KickoffPrompt: "You are the head of sales.",
			Missions: []domain.Mission{
				{ID: "m1", Title: "Goal", Description: "Confirm the goal", Order: 1},
				{ID: "m2", Title: "Users", Description: "Identify users", Order: 2},
			},
			EvaluationCriteria: []domain.Criterion{
				{Name: "Discovery", Weight: 3},
				{Name: "Clarity", Weight: 1},
			},
			PassingScore: &passing,
		},
		{
			ID:         "qa-1",
			Title:      "Signup tests",
			Discipline: domain.DisciplineTesting,
		},
	})
	require.NoError(t, err)
	return c
}

func conversation(n int) []domain.Message {
	msgs := make([]domain.Message, n)
	for i := range msgs {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAgent
		}
		msgs[i] = domain.Message{Role: role, Content: "msg-" + string(rune('a'+i%26))}
	}
	return msgs
}
