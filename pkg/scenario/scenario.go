// Package scenario models the authored content a session plays through: the
// clue catalog, key plot points and endings. Authoring schemas are only
// validated as far as progress tracking needs.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// FileName is the scenario document inside a scenario directory.
const FileName = "scenario.yaml"

// ErrScenarioNotFound is returned when a scenario directory has no scenario file.
var ErrScenarioNotFound = errors.New("scenario not found")

// Importance values for clues.
const (
	ImportanceNormal   = "normal"
	ImportanceCritical = "critical"
)

// Meta describes a scenario.
type Meta struct {
	ID         string `yaml:"id" json:"id"`
	Title      string `yaml:"title" json:"title"`
	Era        string `yaml:"era" json:"era"`
	Difficulty string `yaml:"difficulty" json:"difficulty"`
	Synopsis   string `yaml:"synopsis" json:"synopsis"`
}

// PlotPoint is a key beat of the story.
type PlotPoint struct {
	ID            string   `yaml:"id"`
	Description   string   `yaml:"description"`
	DependsOn     []string `yaml:"depends_on"`
	RequiredClues []string `yaml:"required_clues"`
}

// Ending is a possible conclusion.
type Ending struct {
	ID        string `yaml:"id"`
	Condition string `yaml:"condition"`
	SanReward string `yaml:"san_reward"`
}

// NPC is a non-player character template.
type NPC struct {
	Name        string   `yaml:"name"`
	Role        string   `yaml:"role"`
	Personality string   `yaml:"personality"`
	Knows       []string `yaml:"knows"`
}

// Location is a place investigators can visit.
type Location struct {
	Name       string `yaml:"name"`
	Atmosphere string `yaml:"atmosphere"`
}

// Clue is a piece of information investigators can discover.
type Clue struct {
	Description string `yaml:"description"`
	Importance  string `yaml:"importance"`
	Discovery   string `yaml:"discovery"`
}

// Scenario is a parsed scenario document.
type Scenario struct {
	Meta        Meta                `yaml:"meta"`
	KeeperGuide string              `yaml:"keeper_guide"`
	PlotPoints  []PlotPoint         `yaml:"key_plot_points"`
	Endings     []Ending            `yaml:"endings"`
	NPCs        map[string]NPC      `yaml:"npcs"`
	Locations   map[string]Location `yaml:"locations"`
	Clues       map[string]Clue     `yaml:"clues"`
}

// Parse decodes a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if s.Meta.ID == "" {
		return nil, fmt.Errorf("scenario has no meta.id")
	}
	for id, c := range s.Clues {
		if c.Importance == "" {
			c.Importance = ImportanceNormal
			s.Clues[id] = c
		}
	}
	for i, e := range s.Endings {
		if e.SanReward == "" {
			s.Endings[i].SanReward = "0"
		}
	}
	return &s, nil
}

// SortedClueIDs returns the clue catalog ids in order.
func (s *Scenario) SortedClueIDs() []string {
	ids := make([]string, 0, len(s.Clues))
	for id := range s.Clues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Loader reads scenarios from <dir>/<id>/scenario.yaml.
type Loader struct {
	dir string
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads the scenario with the given id.
func (l *Loader) Load(id string) (*Scenario, error) {
	path := filepath.Join(l.dir, filepath.Clean("/" + id)[1:], FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, id)
		}
		return nil, fmt.Errorf("failed to read scenario %s: %w", id, err)
	}
	return Parse(data)
}

// List returns the metadata of every scenario under the loader root, sorted
// by directory name. A missing root yields an empty list.
func (l *Loader) List() ([]Meta, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Meta{}, nil
		}
		return nil, err
	}

	metas := []Meta{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, e.Name(), FileName))
		if err != nil {
			continue
		}
		var doc struct {
			Meta Meta `yaml:"meta"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			continue
		}
		if doc.Meta.ID == "" {
			doc.Meta.ID = e.Name()
		}
		metas = append(metas, doc.Meta)
	}
	return metas, nil
}
