package scenario

import (
	"testing"

	"github.com/ashureev/pm-roleplay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCatalogLoads(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, "requirements-checkout", list[0].ID)

	s, ok := c.Get("incident-payment-outage")
	require.True(t, ok)
	assert.Equal(t, domain.DisciplineIncident, s.Discipline)
	assert.NotEmpty(t, s.Missions)
}

func TestMissionsSortedByOrder(t *testing.T) {
	c, err := Parse([]byte(`
- id: s1
  title: T
  discipline: testing
  missions:
    - {id: b, title: B, order: 2}
    - {id: a, title: A, order: 1}
`))
	require.NoError(t, err)

	s, _ := c.Get("s1")
	assert.Equal(t, "a", s.Missions[0].ID)
	assert.Equal(t, "b", s.Missions[1].ID)
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
- {id: s1, title: A, discipline: testing}
- {id: s1, title: B, discipline: testing}
`))
	require.Error(t, err)

	_, err = Parse([]byte(`
- id: s1
  title: A
  discipline: testing
  missions:
    - {id: m, title: one}
    - {id: m, title: two}
`))
	require.Error(t, err)
}

func TestParseRejectsMissingFields(t *testing.T) {
	_, err := Parse([]byte(`- {id: s1, discipline: testing}`))
	require.Error(t, err)
}

func TestProfileResolution(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "stakeholder", c.ProfileFor("requirements-checkout").Name)
	assert.Equal(t, "qa-engineer", c.ProfileFor("testing-signup").Name)
	assert.Equal(t, "default", c.ProfileFor("nope").Name)
	assert.Equal(t, "default", c.ProfileFor("").Name)
	assert.Equal(t, "default", ProfileForDiscipline("design").Name)
}

func TestScenarioPromptFallsBackToDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultScenarioPrompt, c.ScenarioPrompt("missing"))
	assert.Contains(t, c.ScenarioPrompt("requirements-checkout"), "営業部長")
}

func TestNilCatalogIsEmpty(t *testing.T) {
	var c *Catalog
	_, ok := c.Get("x")
	assert.False(t, ok)
	assert.Nil(t, c.List())
	assert.Equal(t, "default", c.ProfileFor("x").Name)
}
