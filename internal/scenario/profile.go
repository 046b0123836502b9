package scenario

import "github.com/ashureev/pm-roleplay/internal/domain"

// DefaultModel is used by profiles that do not pin a model.
const DefaultModel = "gemini-2.5-flash"

// DefaultScenarioPrompt is the scenario instruction used when the scenario id is unknown.
const DefaultScenarioPrompt = "あなたはプロダクトマネージャーの練習相手となるAIエージェントです。" +
	"相手の質問に対して、現実の関係者のように自然な日本語で簡潔に答えてください。"

// Profile is the persona used to drive the agent for a discipline.
type Profile struct {
	Name         string
	Model        string
	SystemPrompt string
}

var profiles = map[domain.Discipline]Profile{
	domain.DisciplineRequirements: {
		Name:  "stakeholder",
		Model: DefaultModel,
		SystemPrompt: "あなたは要件定義の練習のために登場する社内のステークホルダーです。" +
			"業務の事情には詳しいが、システムの言葉では話しません。" +
			"聞かれていない情報を先回りして説明せず、質問の質に応じて答えの具体性を変えてください。",
	},
	domain.DisciplineIncident: {
		Name:  "oncall-engineer",
		Model: DefaultModel,
		SystemPrompt: "あなたは障害対応中のエンジニアです。" +
			"状況は刻々と変わり、確実な情報と推測を区別して話します。" +
			"PMが意思決定を求めたときは選択肢とリスクを短く示してください。",
	},
	domain.DisciplineTesting: {
		Name:  "qa-engineer",
		Model: "gemini-2.5-flash-lite",
		SystemPrompt: "あなたは経験豊富なQAエンジニアです。" +
			"PMが書いたテストケースをレビューし、抜けている観点を質問で気づかせてください。" +
			"答えを直接教えすぎないこと。",
	},
}

var defaultProfile = Profile{
	Name:  "default",
	Model: DefaultModel,
	SystemPrompt: "あなたはプロダクトマネージャーのトレーニング用AIエージェントです。" +
		"役割から外れず、日本語で会話してください。",
}

// ProfileFor resolves the persona for a scenario id. Unknown ids and
// disciplines fall back to the default profile.
func (c *Catalog) ProfileFor(scenarioID string) Profile {
	s, ok := c.Get(scenarioID)
	if !ok {
		return defaultProfile
	}
	return ProfileForDiscipline(s.Discipline)
}

// ProfileForDiscipline returns the fixed profile for a discipline.
func ProfileForDiscipline(d domain.Discipline) Profile {
	if p, ok := profiles[d]; ok {
		return p
	}
	return defaultProfile
}

// ScenarioPrompt returns the scenario-level instruction for an id.
func (c *Catalog) ScenarioPrompt(scenarioID string) string {
	s, ok := c.Get(scenarioID)
	if !ok {
		return DefaultScenarioPrompt
	}
	return s.KickoffPrompt
}
