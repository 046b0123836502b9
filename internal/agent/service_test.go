package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ashureev/pm-roleplay/internal/domain"
	"github.com/ashureev/pm-roleplay/internal/gemini"
	"github.com/ashureev/pm-roleplay/internal/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyBuildsSystemInstructionAndTurns(t *testing.T) {
	gen := &fakeGenerator{text: "  はい、承知しました。  "}
	svc := NewService(gen, testCatalog(t), "")

	res, err := svc.Reply(context.Background(), ReplyRequest{
		ScenarioID: "req-1",
		Prompt:     "Stay brief.",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "hello"},
			{Role: domain.RoleAgent, Content: "hi"},
			{Role: domain.RoleSystem, Content: "note"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "はい、承知しました。", res.Reply)

	req := gen.last()
	profile := scenario.ProfileForDiscipline(domain.DisciplineRequirements)
	assert.Equal(t, profile.Model, req.Model)
	assert.Equal(t, profile.SystemPrompt+"\n\nYou are the head of sales.\n\nStay brief.", req.SystemInstruction)
	assert.Equal(t, []gemini.Turn{
		{Role: gemini.TurnRoleUser, Text: "hello"},
		{Role: gemini.TurnRoleModel, Text: "hi"},
		{Role: gemini.TurnRoleUser, Text: "note"},
	}, req.Turns)
	assert.False(t, req.JSONResponse)
}

func TestReplyUnknownScenarioUsesDefaults(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	svc := NewService(gen, testCatalog(t), "")

	_, err := svc.Reply(context.Background(), ReplyRequest{ScenarioID: "nope"})
	require.NoError(t, err)

	req := gen.last()
	assert.True(t, strings.HasSuffix(req.SystemInstruction, "\n\n"+scenario.DefaultScenarioPrompt))
	assert.Equal(t, scenario.DefaultModel, req.Model)
}

func TestReplyModelOverride(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	svc := NewService(gen, testCatalog(t), "gemini-custom")

	_, err := svc.Reply(context.Background(), ReplyRequest{ScenarioID: "qa-1"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-custom", gen.last().Model)
}

func TestReplyEmptyTextUsesPlaceholder(t *testing.T) {
	svc := NewService(&fakeGenerator{text: " \n "}, testCatalog(t), "")
	res, err := svc.Reply(context.Background(), ReplyRequest{})
	require.NoError(t, err)
	assert.Equal(t, ReplyPlaceholder, res.Reply)
}

func TestReplyWithoutKeyMakesNoCall(t *testing.T) {
	gen := &fakeGenerator{unconfigured: true}
	svc := NewService(gen, testCatalog(t), "")

	_, err := svc.Reply(context.Background(), ReplyRequest{Messages: conversation(2)})
	require.ErrorIs(t, err, gemini.ErrAPIKeyMissing)
	assert.Zero(t, gen.calls())
}

func TestDetectMissionsShortCircuits(t *testing.T) {
	cases := map[string]struct {
		gen *fakeGenerator
		req MissionRequest
	}{
		"no missions anywhere": {
			gen: &fakeGenerator{text: `{"completedMissionIds":["m1"]}`},
			req: MissionRequest{ScenarioID: "qa-1", Messages: conversation(3)},
		},
		"no messages": {
			gen: &fakeGenerator{text: `{"completedMissionIds":["m1"]}`},
			req: MissionRequest{ScenarioID: "req-1"},
		},
		"no api key": {
			gen: &fakeGenerator{unconfigured: true},
			req: MissionRequest{ScenarioID: "req-1", Messages: conversation(3)},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := NewService(tc.gen, testCatalog(t), "")
			ids := svc.DetectMissions(context.Background(), tc.req)
			assert.NotNil(t, ids)
			assert.Empty(t, ids)
			assert.Zero(t, tc.gen.calls())
		})
	}
}

func TestDetectMissionsWhitelistsIDs(t *testing.T) {
	gen := &fakeGenerator{text: `Here you go: {"completedMissionIds":["m1","bogus",7,"m1"]}`}
	svc := NewService(gen, testCatalog(t), "")

	ids := svc.DetectMissions(context.Background(), MissionRequest{
		Missions: []domain.Mission{{ID: "m1", Title: "Goal", Description: "Confirm the goal"}},
		Messages: conversation(20),
	})
	assert.Equal(t, []string{"m1"}, ids)
	assert.Equal(t, 1, gen.calls())
}

func TestDetectMissionsPromptUsesRecentWindow(t *testing.T) {
	gen := &fakeGenerator{text: `{"completedMissionIds":[]}`}
	svc := NewService(gen, testCatalog(t), "")

	msgs := conversation(20)
	msgs[0].Content = "oldest"
	msgs[19].Content = "newest"
	svc.DetectMissions(context.Background(), MissionRequest{ScenarioID: "req-1", Messages: msgs})

	req := gen.last()
	assert.Equal(t, missionSystemInstruction, req.SystemInstruction)
	assert.True(t, req.JSONResponse)
	require.Len(t, req.Turns, 1)
	prompt := req.Turns[0].Text
	assert.Contains(t, prompt, "- m1: Goal (Confirm the goal)\n- m2: Users (Identify users)")
	assert.Contains(t, prompt, "AGENT: newest")
	assert.NotContains(t, prompt, "oldest")
	assert.Equal(t, missionWindow, strings.Count(prompt, "USER: ")+strings.Count(prompt, "AGENT: "))
}

func TestMissionPromptOmitsEmptyDescription(t *testing.T) {
	prompt := missionPrompt([]domain.Mission{
		{ID: "m1", Title: "Goal"},
		{ID: "m2", Title: "Users", Description: "Identify users"},
	}, nil)
	assert.Contains(t, prompt, "- m1: Goal\n- m2: Users (Identify users)\n")
	assert.NotContains(t, prompt, "()")
}

func TestDetectMissionsUpstreamFailureIsEmpty(t *testing.T) {
	for name, err := range map[string]error{
		"network":  errors.New("dial tcp: connection refused"),
		"upstream": &gemini.UpstreamError{StatusCode: 500, Body: "{}"},
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewService(&fakeGenerator{err: err}, testCatalog(t), "")
			ids := svc.DetectMissions(context.Background(), MissionRequest{ScenarioID: "req-1", Messages: conversation(2)})
			assert.Equal(t, []string{}, ids)
		})
	}
}

func TestParseCompletedIDs(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []any
	}{
		{"strict", `{"completedMissionIds":["a"]}`, []any{"a"}},
		{"fenced", "```json\n{\"completedMissionIds\":[\"a\",\"b\"]}\n```", []any{"a", "b"}},
		{"prose braces first", `Note {not json}. Result: {"completedMissionIds":["a"]}`, []any{"a"}},
		{"brace inside string", `{"completedMissionIds":["a}"]} trailing }`, []any{"a}"}},
		{"nested", `x {"meta":{"k":1},"completedMissionIds":["c"]} y`, []any{"c"}},
		{"wrong shape", `{"completedMissionIds":"a"}`, nil},
		{"no json", "I could not decide.", nil},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseCompletedIDs(tc.text))
		})
	}
}

func TestEvaluateWhitelistsCategoriesAndWeights(t *testing.T) {
	gen := &fakeGenerator{text: `{
		"categories": [
			{"name": "Discovery", "score": 120, "feedback": "良い質問"},
			{"name": "Invented", "score": 10},
			{"name": "Clarity", "score": 40, "weight": 99}
		],
		"summary": " 全体的に良好 ",
		"improvementAdvice": "優先度を確認しましょう"
	}`}
	svc := NewService(gen, testCatalog(t), "")

	ev, _, err := svc.Evaluate(context.Background(), EvaluateRequest{SessionID: "s1", ScenarioID: "req-1", Messages: conversation(4)})
	require.NoError(t, err)

	require.Len(t, ev.Categories, 2)
	assert.Equal(t, "Discovery", ev.Categories[0].Name)
	assert.Equal(t, 3.0, ev.Categories[0].Weight)
	assert.Equal(t, 100.0, *ev.Categories[0].Score)
	assert.Equal(t, 1.0, ev.Categories[1].Weight)

	// (100*3 + 40*1) / 4
	require.NotNil(t, ev.OverallScore)
	assert.InDelta(t, 85.0, *ev.OverallScore, 0.001)
	require.NotNil(t, ev.Passing)
	assert.True(t, *ev.Passing)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, "全体的に良好", ev.Summary)

	prompt := gen.last().Turns[0].Text
	assert.Contains(t, prompt, "- Discovery (weight 3)")
}

func TestEvaluateUsesModelOverallScore(t *testing.T) {
	gen := &fakeGenerator{text: `{"overallScore": 55, "categories": [{"name": "Clarity", "score": 90}]}`}
	svc := NewService(gen, testCatalog(t), "")

	ev, _, err := svc.Evaluate(context.Background(), EvaluateRequest{SessionID: "s1", ScenarioID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, 55.0, *ev.OverallScore)
	assert.False(t, *ev.Passing)
	assert.Nil(t, ev.Categories[0].Score)
}

func TestEvaluateErrors(t *testing.T) {
	svc := NewService(&fakeGenerator{text: "{}"}, testCatalog(t), "")
	_, _, err := svc.Evaluate(context.Background(), EvaluateRequest{SessionID: "s1", ScenarioID: "missing"})
	require.ErrorIs(t, err, ErrScenarioNotFound)

	svc = NewService(&fakeGenerator{text: "no json here"}, testCatalog(t), "")
	_, _, err = svc.Evaluate(context.Background(), EvaluateRequest{SessionID: "s1", ScenarioID: "req-1"})
	require.ErrorIs(t, err, ErrUnusableEvaluation)

	gen := &fakeGenerator{unconfigured: true}
	svc = NewService(gen, testCatalog(t), "")
	_, _, err = svc.Evaluate(context.Background(), EvaluateRequest{SessionID: "s1", ScenarioID: "req-1"})
	require.ErrorIs(t, err, gemini.ErrAPIKeyMissing)
	assert.Zero(t, gen.calls())
}

func TestScenarioWithoutPassingScoreHasNoVerdict(t *testing.T) {
	svc := NewService(&fakeGenerator{text: `{"overallScore": 90}`}, testCatalog(t), "")
	ev, _, err := svc.Evaluate(context.Background(), EvaluateRequest{SessionID: "s1", ScenarioID: "qa-1"})
	require.NoError(t, err)
	assert.Nil(t, ev.Passing)
	assert.Empty(t, ev.Categories)
}
