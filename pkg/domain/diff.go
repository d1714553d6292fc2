package domain

import (
	"reflect"
	"slices"

	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/turn"
)

// SnapshotDiff represents the changes between two snapshots.
// It is designed to be serialized to JSON for partial updates on the client.
type SnapshotDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Phase *phase.Phase `json:"phase,omitempty"`

	// Resources holds changed pools per actor. Removed actors map to nil.
	Resources map[string]map[string]Resource `json:"resources,omitempty"`

	// Clues contains newly discovered clues.
	Clues []string `json:"clues,omitempty"`

	// History contains messages appended since the old snapshot.
	History []Message `json:"history,omitempty"`

	Turn *turn.State `json:"turn_state,omitempty"`
}

// Diff calculates the difference between oldSnap and newSnap.
// If oldSnap is nil, it returns a diff representing the entire newSnap (initial load).
func Diff(oldSnap, newSnap *Snapshot) *SnapshotDiff {
	if newSnap == nil {
		return nil
	}

	diff := &SnapshotDiff{SessionID: newSnap.SessionID}

	if oldSnap == nil || oldSnap.Phase != newSnap.Phase {
		p := newSnap.Phase
		diff.Phase = &p
	}
	if newSnap.Turn != nil && (oldSnap == nil || !reflect.DeepEqual(oldSnap.Turn, newSnap.Turn)) {
		t := newSnap.Turn.Clone()
		diff.Turn = &t
	}

	diff.Resources = diffResources(oldSnap, newSnap)
	diff.Clues = diffClues(oldSnap, newSnap)
	diff.History = diffHistory(oldSnap, newSnap)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffResources(oldSnap, newSnap *Snapshot) map[string]map[string]Resource {
	delta := make(map[string]map[string]Resource)
	for id, a := range newSnap.Actors {
		var prev map[string]Resource
		if oldSnap != nil {
			if old, ok := oldSnap.Actors[id]; ok {
				prev = old.Resources
			}
		}
		for name, r := range a.Resources {
			if p, ok := prev[name]; ok && p == r {
				continue
			}
			if delta[id] == nil {
				delta[id] = make(map[string]Resource)
			}
			delta[id][name] = r
		}
	}
	if oldSnap != nil {
		for id := range oldSnap.Actors {
			if !newSnap.Present(id) {
				delta[id] = nil
			}
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffClues(oldSnap, newSnap *Snapshot) []string {
	var added []string
	for _, c := range newSnap.DiscoveredClues {
		if oldSnap == nil || !oldSnap.HasClue(c) {
			added = append(added, c)
		}
	}
	return added
}

// diffHistory assumes history is append-only. If it was rewritten, the whole
// new history is sent.
func diffHistory(oldSnap, newSnap *Snapshot) []Message {
	if oldSnap == nil {
		return slices.Clone(newSnap.History)
	}
	n := len(oldSnap.History)
	if n > len(newSnap.History) || !slices.Equal(oldSnap.History, newSnap.History[:n]) {
		return slices.Clone(newSnap.History)
	}
	if n == len(newSnap.History) {
		return nil
	}
	return slices.Clone(newSnap.History[n:])
}

// IsEmpty reports whether the diff carries no changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.Phase == nil &&
		d.Turn == nil &&
		len(d.Resources) == 0 &&
		len(d.Clues) == 0 &&
		len(d.History) == 0
}
