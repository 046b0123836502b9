// Package scenario loads the static scenario catalog and the persona profiles
// that drive the agent for each discipline.
package scenario

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/ashureev/pm-roleplay/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var builtinScenarios []byte

// Catalog is an immutable, id-indexed set of scenarios.
type Catalog struct {
	byID  map[string]domain.Scenario
	order []string
}

// Load reads the catalog from path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	data := builtinScenarios
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read scenarios file: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes and validates a YAML scenario list.
func Parse(data []byte) (*Catalog, error) {
	var scenarios []domain.Scenario
	if err := yaml.Unmarshal(data, &scenarios); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	return New(scenarios)
}

// New validates scenarios and indexes them by id.
func New(scenarios []domain.Scenario) (*Catalog, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	c := &Catalog{byID: make(map[string]domain.Scenario, len(scenarios))}
	for i, s := range scenarios {
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("scenario %d (%q): %w", i, s.ID, err)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate scenario id %q", s.ID)
		}
		seen := make(map[string]struct{}, len(s.Missions))
		for _, m := range s.Missions {
			if _, dup := seen[m.ID]; dup {
				return nil, fmt.Errorf("scenario %q: duplicate mission id %q", s.ID, m.ID)
			}
			seen[m.ID] = struct{}{}
		}
		sort.SliceStable(s.Missions, func(a, b int) bool { return s.Missions[a].Order < s.Missions[b].Order })
		c.byID[s.ID] = s
		c.order = append(c.order, s.ID)
	}
	return c, nil
}

// Get returns the scenario with the given id.
func (c *Catalog) Get(id string) (domain.Scenario, bool) {
	if c == nil || id == "" {
		return domain.Scenario{}, false
	}
	s, ok := c.byID[id]
	return s, ok
}

// List returns all scenarios in file order.
func (c *Catalog) List() []domain.Scenario {
	if c == nil {
		return nil
	}
	out := make([]domain.Scenario, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
