package scenario

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/keeper/pkg/domain"
)

// DefaultEndingID is the ending a Guardian checks for unless configured otherwise.
const DefaultEndingID = "victory"

// Guardian tracks story progress against a scenario. It reads and updates
// the clue and plot-point sets stored on a snapshot and holds no state of
// its own, so one Guardian can serve many sessions.
type Guardian struct {
	scenario *Scenario
	endingID string
}

// GuardianOption configures a Guardian.
type GuardianOption func(*Guardian)

// WithEndingID sets the single ending the Guardian checks for.
func WithEndingID(id string) GuardianOption {
	return func(g *Guardian) {
		if id != "" {
			g.endingID = id
		}
	}
}

// NewGuardian creates a Guardian for s.
func NewGuardian(s *Scenario, opts ...GuardianOption) *Guardian {
	g := &Guardian{scenario: s, endingID: DefaultEndingID}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Scenario returns the tracked scenario.
func (g *Guardian) Scenario() *Scenario {
	return g.scenario
}

// KnowsClue reports whether id is in the clue catalog.
func (g *Guardian) KnowsClue(id string) bool {
	_, ok := g.scenario.Clues[id]
	return ok
}

// ClueDescription returns the catalog description of a clue, or its id.
func (g *Guardian) ClueDescription(id string) string {
	if c, ok := g.scenario.Clues[id]; ok && c.Description != "" {
		return c.Description
	}
	return id
}

// CurrentPoint returns the first uncompleted plot point whose dependencies
// are all completed.
func (g *Guardian) CurrentPoint(s *domain.Snapshot) (PlotPoint, bool) {
	for _, pp := range g.scenario.PlotPoints {
		if slices.Contains(s.CompletedPoints, pp.ID) {
			continue
		}
		if g.dependenciesMet(s, pp) {
			return pp, true
		}
	}
	return PlotPoint{}, false
}

// Advance completes every plot point that declares required clues, has its
// dependencies completed and all of its clues discovered. It repeats until
// nothing changes and returns the newly completed ids.
func (g *Guardian) Advance(s *domain.Snapshot) []string {
	var completed []string
	for changed := true; changed; {
		changed = false
		for _, pp := range g.scenario.PlotPoints {
			if len(pp.RequiredClues) == 0 || slices.Contains(s.CompletedPoints, pp.ID) {
				continue
			}
			if !g.dependenciesMet(s, pp) {
				continue
			}
			if !slices.ContainsFunc(pp.RequiredClues, func(c string) bool { return !s.HasClue(c) }) {
				s.CompletePoint(pp.ID)
				completed = append(completed, pp.ID)
				changed = true
			}
		}
	}
	return completed
}

func (g *Guardian) dependenciesMet(s *domain.Snapshot, pp PlotPoint) bool {
	for _, dep := range pp.DependsOn {
		if !slices.Contains(s.CompletedPoints, dep) {
			return false
		}
	}
	return true
}

// Ending reports the configured ending once every critical clue is discovered
// and every plot point is completed.
func (g *Guardian) Ending(s *domain.Snapshot) (Ending, bool) {
	for id, c := range g.scenario.Clues {
		if c.Importance == ImportanceCritical && !s.HasClue(id) {
			return Ending{}, false
		}
	}
	for _, pp := range g.scenario.PlotPoints {
		if !slices.Contains(s.CompletedPoints, pp.ID) {
			return Ending{}, false
		}
	}
	for _, e := range g.scenario.Endings {
		if e.ID == g.endingID {
			return e, true
		}
	}
	return Ending{}, false
}

// ProgressPrompt summarizes discovered and missing critical clues and the
// current plot point for the narrative generator.
func (g *Guardian) ProgressPrompt(s *domain.Snapshot) string {
	var discovered, missing []string
	for _, id := range g.scenario.SortedClueIDs() {
		c := g.scenario.Clues[id]
		switch {
		case s.HasClue(id):
			discovered = append(discovered, c.Description)
		case c.Importance == ImportanceCritical:
			missing = append(missing, c.Description)
		}
	}

	lines := []string{"[Plot progress]"}
	if len(discovered) > 0 {
		lines = append(lines, "Discovered clues: "+strings.Join(discovered, ", "))
	}
	if len(missing) > 0 {
		lines = append(lines, "Undiscovered critical clues: "+strings.Join(missing, ", "))
	}
	current, ok := g.CurrentPoint(s)
	if ok {
		lines = append(lines, "Current plot point: "+current.Description)
	}
	if ok && len(missing) > 0 {
		lines = append(lines, "Steer the investigators toward the critical clues when it fits the scene.")
	}
	return strings.Join(lines, "\n")
}

// Brief renders the scenario context and the party status for the generator.
func (g *Guardian) Brief(party []*domain.Actor) string {
	sc := g.scenario
	parts := []string{
		"[Scenario] " + sc.Meta.Title,
		"Era: " + sc.Meta.Era,
		"[Keeper guide] " + sc.KeeperGuide,
	}

	if len(sc.NPCs) > 0 {
		var lines []string
		for _, id := range sortedKeys(sc.NPCs) {
			npc := sc.NPCs[id]
			knows := npc.Knows[:min(3, len(npc.Knows))]
			lines = append(lines, fmt.Sprintf("- %s (%s): %s. Knows: %s", npc.Name, id, npc.Personality, strings.Join(knows, ", ")))
		}
		parts = append(parts, "[NPCs]\n"+strings.Join(lines, "\n"))
	}

	if len(sc.Locations) > 0 {
		var lines []string
		for _, id := range sortedKeys(sc.Locations) {
			loc := sc.Locations[id]
			lines = append(lines, fmt.Sprintf("- %s: %s", loc.Name, loc.Atmosphere))
		}
		parts = append(parts, "[Locations]\n"+strings.Join(lines, "\n"))
	}

	if len(party) > 0 {
		var lines []string
		for _, a := range party {
			lines = append(lines, fmt.Sprintf("- %s (%s): %s %s %s", a.Name, a.ID,
				pool(a, domain.ResourceHP, "HP"), pool(a, domain.ResourceSanity, "SAN"), pool(a, domain.ResourceMagic, "MP")))
		}
		parts = append(parts, "[Investigators]\n"+strings.Join(lines, "\n"))
	}

	if len(sc.Clues) > 0 {
		var lines []string
		for _, id := range sc.SortedClueIDs() {
			c := sc.Clues[id]
			lines = append(lines, fmt.Sprintf("- %s: %s (importance: %s, discovery: %s)", id, c.Description, c.Importance, c.Discovery))
		}
		parts = append(parts, "[Clue catalog - use these clue_id values]\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(parts, "\n\n")
}

func pool(a *domain.Actor, name, label string) string {
	r, ok := a.Resource(name)
	if !ok {
		return label + " -"
	}
	return fmt.Sprintf("%s %d/%d", label, r.Current, r.Max)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
