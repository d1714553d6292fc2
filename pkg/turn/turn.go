// Package turn implements the turn state machine that decides which actor may
// act. Exploration has a single reassignable active actor and no queue. Combat
// has an agility-ordered queue, per-actor action counters and a round counter.
//
// A Machine is a plain in-memory value: it never blocks and it is not safe for
// concurrent use. Callers serialize access per session.
package turn

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Mode is the turn mode.
type Mode string

const (
	Exploration Mode = "exploration"
	Combat      Mode = "combat"
)

var (
	// ErrEmptyRoster is returned when entering combat with no combatants.
	ErrEmptyRoster = errors.New("combat requires at least one combatant")
	// ErrNotExploration is returned when an exploration-only operation runs in combat.
	ErrNotExploration = errors.New("operation only allowed in exploration mode")
	// ErrInvalidState is returned by Restore when a State violates the mode invariants.
	ErrInvalidState = errors.New("invalid turn state")
	// ErrInvalidGrant is returned when granting a non-positive number of actions.
	ErrInvalidGrant = errors.New("action grant must be positive")
)

// State is the serializable form of a Machine.
type State struct {
	Mode             Mode           `json:"mode"`
	Queue            []string       `json:"turn_queue"`
	CurrentIndex     int            `json:"current_index"`
	ActionsRemaining map[string]int `json:"actions_remaining"`
	Round            int            `json:"round_number"`
	ActiveActorID    string         `json:"active_character_id,omitempty"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Queue = slices.Clone(s.Queue)
	out.ActionsRemaining = maps.Clone(s.ActionsRemaining)
	if out.Queue == nil {
		out.Queue = []string{}
	}
	if out.ActionsRemaining == nil {
		out.ActionsRemaining = map[string]int{}
	}
	return out
}

// Current returns the actor whose turn it is. See Machine.Current.
func (s State) Current() string {
	if s.Mode == Combat && s.CurrentIndex >= 0 && s.CurrentIndex < len(s.Queue) {
		return s.Queue[s.CurrentIndex]
	}
	return s.ActiveActorID
}

// Validate checks the mode, queue and index invariants.
func (s State) Validate() error {
	switch s.Mode {
	case Exploration:
		if len(s.Queue) != 0 {
			return fmt.Errorf("%w: exploration with %d queued actors", ErrInvalidState, len(s.Queue))
		}
	case Combat:
		if len(s.Queue) == 0 {
			return fmt.Errorf("%w: combat with empty queue", ErrInvalidState)
		}
		if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
			return fmt.Errorf("%w: index %d outside queue of %d", ErrInvalidState, s.CurrentIndex, len(s.Queue))
		}
		if s.Round < 1 {
			return fmt.Errorf("%w: combat round %d", ErrInvalidState, s.Round)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidState, s.Mode)
	}
	for id, n := range s.ActionsRemaining {
		if n < 0 {
			return fmt.Errorf("%w: negative actions for %s", ErrInvalidState, id)
		}
	}
	return nil
}

// Combatant is an actor entering combat.
type Combatant struct {
	ID      string
	Agility int
}

// Presence reports whether an actor is still in the live roster.
// A nil Presence treats every actor as present.
type Presence func(id string) bool

func (p Presence) has(id string) bool {
	return p == nil || p(id)
}

// Machine is the turn state machine.
type Machine struct {
	s State
}

// New returns a Machine in exploration mode with no active actor.
func New() *Machine {
	return &Machine{s: State{
		Mode:             Exploration,
		Queue:            []string{},
		ActionsRemaining: map[string]int{},
	}}
}

// Restore builds a Machine from a persisted State.
func Restore(s State) (*Machine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Machine{s: s.Clone()}, nil
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	return m.s.Clone()
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	return m.s.Mode
}

// Round returns the combat round, 0 in exploration.
func (m *Machine) Round() int {
	return m.s.Round
}

// Current returns the actor whose turn it is: the queue head in combat, the
// active actor in exploration.
func (m *Machine) Current() string {
	return m.s.Current()
}

// ActionsRemaining returns the counter for id.
func (m *Machine) ActionsRemaining(id string) int {
	return m.s.ActionsRemaining[id]
}

// EnterCombat orders combatants by descending agility, keeping roster order
// for ties, and starts round 1 with one action each. It returns the first
// actor to act.
func (m *Machine) EnterCombat(combatants []Combatant) (string, error) {
	if len(combatants) == 0 {
		return "", ErrEmptyRoster
	}
	ordered := slices.Clone(combatants)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Agility > ordered[j].Agility
	})

	queue := make([]string, 0, len(ordered))
	actions := make(map[string]int, len(ordered))
	for _, c := range ordered {
		if _, dup := actions[c.ID]; dup {
			continue
		}
		queue = append(queue, c.ID)
		actions[c.ID] = 1
	}

	m.s.Mode = Combat
	m.s.Queue = queue
	m.s.ActionsRemaining = actions
	m.s.CurrentIndex = 0
	m.s.Round = 1
	return queue[0], nil
}

// ExitCombat returns to exploration. The previously active actor is kept if
// still present, otherwise it is cleared.
func (m *Machine) ExitCombat(present Presence) {
	m.s.Mode = Exploration
	m.s.Queue = []string{}
	m.s.ActionsRemaining = map[string]int{}
	m.s.CurrentIndex = 0
	m.s.Round = 0
	if m.s.ActiveActorID != "" && !present.has(m.s.ActiveActorID) {
		m.s.ActiveActorID = ""
	}
}

// CanAct reports whether id may act now. Anyone may act in exploration; in
// combat only the current actor with remaining actions.
func (m *Machine) CanAct(id string) bool {
	if m.s.Mode == Exploration {
		return true
	}
	if len(m.s.Queue) == 0 {
		return false
	}
	return m.s.Queue[m.s.CurrentIndex] == id && m.s.ActionsRemaining[id] > 0
}

// ConsumeAction spends one action of id, never going below zero. When the
// current actor runs out, the machine advances and ConsumeAction reports true.
func (m *Machine) ConsumeAction(id string, present Presence) bool {
	if n := m.s.ActionsRemaining[id]; n > 0 {
		m.s.ActionsRemaining[id] = n - 1
	}
	if m.s.Mode != Combat || m.Current() != id || m.s.ActionsRemaining[id] > 0 {
		return false
	}
	_, ok := m.Advance(present)
	return ok
}

// Advance moves to the next present actor in the queue. Wrapping past the end
// starts a new round and resets every counter to 1. It returns false without
// changing state outside combat or when no queued actor is present.
func (m *Machine) Advance(present Presence) (string, bool) {
	if m.s.Mode != Combat || len(m.s.Queue) == 0 {
		return "", false
	}
	if !slices.ContainsFunc(m.s.Queue, present.has) {
		return "", false
	}
	for {
		m.s.CurrentIndex++
		if m.s.CurrentIndex >= len(m.s.Queue) {
			m.s.CurrentIndex = 0
			m.s.Round++
			for _, id := range m.s.Queue {
				m.s.ActionsRemaining[id] = 1
			}
		}
		if id := m.s.Queue[m.s.CurrentIndex]; present.has(id) {
			return id, true
		}
	}
}

// GrantExtraAction adds n actions to id in any mode.
func (m *Machine) GrantExtraAction(id string, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGrant, n)
	}
	if m.s.ActionsRemaining == nil {
		m.s.ActionsRemaining = map[string]int{}
	}
	m.s.ActionsRemaining[id] += n
	return nil
}

// ForceActive makes id the active actor. Only allowed in exploration.
func (m *Machine) ForceActive(id string) error {
	if m.s.Mode != Exploration {
		return ErrNotExploration
	}
	m.s.ActiveActorID = id
	return nil
}
