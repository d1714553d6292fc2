package scenario_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadHaunting(t *testing.T) *scenario.Scenario {
	t.Helper()
	sc, err := scenario.NewLoader("testdata").Load("haunting")
	require.NoError(t, err)
	return sc
}

func TestLoader(t *testing.T) {
	sc := loadHaunting(t)
	assert.Equal(t, "The Haunting", sc.Meta.Title)
	assert.Len(t, sc.PlotPoints, 2)
	assert.Equal(t, scenario.ImportanceNormal, sc.Clues["newspaper"].Importance)
	assert.Equal(t, "0", sc.Endings[1].SanReward)

	_, err := scenario.NewLoader("testdata").Load("missing")
	assert.ErrorIs(t, err, scenario.ErrScenarioNotFound)

	_, err = scenario.NewLoader("testdata").Load("../testdata/haunting/../../nope")
	assert.ErrorIs(t, err, scenario.ErrScenarioNotFound)
}

func TestLoader_List(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b-second"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-second", scenario.FileName), []byte("meta:\n  title: Second\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a-first"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-first", scenario.FileName), []byte("meta:\n  id: first\n  title: First\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))

	metas, err := scenario.NewLoader(dir).List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "first", metas[0].ID)
	assert.Equal(t, "b-second", metas[1].ID)

	metas, err = scenario.NewLoader(filepath.Join(dir, "nowhere")).List()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestParse_RequiresID(t *testing.T) {
	_, err := scenario.Parse([]byte("meta:\n  title: Nameless\n"))
	assert.Error(t, err)
}

func TestGuardian_AdvanceAndEnding(t *testing.T) {
	g := scenario.NewGuardian(loadHaunting(t))
	s := domain.NewSnapshot("s1", "haunting")

	assert.True(t, g.KnowsClue("diary"))
	assert.False(t, g.KnowsClue("map"))

	s.AddClue("diary")
	s.AddClue("basement_door")
	assert.Empty(t, g.Advance(s), "basement depends on research")
	_, ok := g.Ending(s)
	assert.False(t, ok)

	s.AddClue("newspaper")
	assert.Equal(t, []string{"research", "basement"}, g.Advance(s))
	assert.Equal(t, []string{"basement", "research"}, s.CompletedPoints)

	ending, ok := g.Ending(s)
	require.True(t, ok)
	assert.Equal(t, "victory", ending.ID)
	assert.Equal(t, "1d6", ending.SanReward)
}

func TestGuardian_ConfiguredEnding(t *testing.T) {
	g := scenario.NewGuardian(loadHaunting(t), scenario.WithEndingID("escape"))
	s := domain.NewSnapshot("s1", "haunting")
	for _, c := range []string{"newspaper", "diary", "basement_door"} {
		s.AddClue(c)
	}
	g.Advance(s)
	_, ok := g.Ending(s)
	assert.False(t, ok, "no ending with id escape")
}

func TestGuardian_ProgressPrompt(t *testing.T) {
	g := scenario.NewGuardian(loadHaunting(t))
	s := domain.NewSnapshot("s1", "haunting")
	s.AddClue("newspaper")

	prompt := g.ProgressPrompt(s)
	assert.Contains(t, prompt, "Discovered clues: An old article about the Macario family")
	assert.Contains(t, prompt, "Undiscovered critical clues: A nailed-shut door in the basement, Corbitt's diary")
	assert.Contains(t, prompt, "Current plot point: Learn who lived in the house before.")
	assert.Contains(t, prompt, "Steer the investigators")
}

func TestGuardian_Brief(t *testing.T) {
	g := scenario.NewGuardian(loadHaunting(t))
	party := []*domain.Actor{{
		ID:   "alice",
		Name: "Alice",
		Resources: map[string]domain.Resource{
			domain.ResourceHP:     {Current: 9, Max: 11},
			domain.ResourceSanity: {Current: 55, Max: 99},
		},
	}}
	brief := g.Brief(party)
	assert.Contains(t, brief, "[Scenario] The Haunting")
	assert.Contains(t, brief, "Stephen Knott (knott): nervous. Knows: previous tenants, the fire, the rent")
	assert.NotContains(t, brief, "the neighbours")
	assert.Contains(t, brief, "Alice (alice): HP 9/11 SAN 55/99 MP -")
	assert.Contains(t, brief, "- diary: Corbitt's diary (importance: critical")
}
