package domain

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/skill"
	"github.com/aretw0/keeper/pkg/turn"
)

// Role identifies the author of a history message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation with the narrative generator.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage accumulates generator token counters.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	Calls            int `json:"calls"`
}

// Add returns u plus o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		Calls:            u.Calls + o.Calls,
	}
}

// Snapshot is the complete persisted state of a session.
type Snapshot struct {
	SessionID       string                 `json:"session_id"`
	ScenarioID      string                 `json:"scenario_id"`
	Phase           phase.Phase            `json:"phase"`
	Actors          map[string]*Actor      `json:"characters"`
	ActorOrder      []string               `json:"character_order,omitempty"`
	History         []Message              `json:"keeper_history"`
	Usage           Usage                  `json:"keeper_tokens"`
	DiscoveredClues []string               `json:"discovered_clues"`
	CompletedPoints []string               `json:"completed_points"`
	Turn            *turn.State            `json:"turn_state,omitempty"`
	PendingPushes   map[string]skill.Offer `json:"pending_pushes,omitempty"`
	Version         int64                  `json:"version"`
	UpdatedAt       time.Time              `json:"updated_at"`

	// Sealed holds an encrypted snapshot. When set, the other fields are
	// placeholders written by the encryption store middleware.
	Sealed []byte `json:"sealed,omitempty"`
}

// NewSnapshot creates an empty session in the lobby.
func NewSnapshot(sessionID, scenarioID string) *Snapshot {
	fresh := turn.New().State()
	return &Snapshot{
		SessionID:       sessionID,
		ScenarioID:      scenarioID,
		Phase:           phase.Lobby,
		Actors:          map[string]*Actor{},
		History:         []Message{},
		DiscoveredClues: []string{},
		CompletedPoints: []string{},
		Turn:            &fresh,
		PendingPushes:   map[string]skill.Offer{},
	}
}

// Clone returns a deep copy of s. Executors mutate clones so a failed action
// never leaks into the caller's snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.Actors = make(map[string]*Actor, len(s.Actors))
	for id, a := range s.Actors {
		out.Actors[id] = a.Clone()
	}
	out.ActorOrder = slices.Clone(s.ActorOrder)
	out.History = slices.Clone(s.History)
	out.DiscoveredClues = slices.Clone(s.DiscoveredClues)
	out.CompletedPoints = slices.Clone(s.CompletedPoints)
	out.PendingPushes = maps.Clone(s.PendingPushes)
	out.Sealed = slices.Clone(s.Sealed)
	if s.Turn != nil {
		t := s.Turn.Clone()
		out.Turn = &t
	}
	return &out
}

// AddActor inserts a into the roster at the end of the turn order.
func (s *Snapshot) AddActor(a *Actor) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if _, exists := s.Actors[a.ID]; exists {
		return fmt.Errorf("actor %s already in roster", a.ID)
	}
	if s.Actors == nil {
		s.Actors = map[string]*Actor{}
	}
	s.Actors[a.ID] = a.Clone()
	s.ActorOrder = append(s.ActorOrder, a.ID)
	return nil
}

// RemoveActor drops id from the roster. Turn state still referencing it skips
// the actor from then on.
func (s *Snapshot) RemoveActor(id string) error {
	if _, ok := s.Actors[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMissingActor, id)
	}
	delete(s.Actors, id)
	delete(s.PendingPushes, id)
	s.ActorOrder = slices.DeleteFunc(s.ActorOrder, func(x string) bool { return x == id })
	return nil
}

// Actor returns the actor with id.
func (s *Snapshot) Actor(id string) (*Actor, bool) {
	a, ok := s.Actors[id]
	return a, ok
}

// Present reports whether id is in the live roster. It satisfies turn.Presence.
func (s *Snapshot) Present(id string) bool {
	_, ok := s.Actors[id]
	return ok
}

// Party returns the player characters in roster order.
func (s *Snapshot) Party() []*Actor {
	var out []*Actor
	for _, id := range s.ActorOrder {
		if a, ok := s.Actors[id]; ok && !a.IsNPC {
			out = append(out, a)
		}
	}
	return out
}

// TurnMachine restores the turn state machine. A snapshot without turn state
// starts in exploration.
func (s *Snapshot) TurnMachine() (*turn.Machine, error) {
	if s.Turn == nil {
		return turn.New(), nil
	}
	return turn.Restore(*s.Turn)
}

// SetTurn stores the machine's state on the snapshot.
func (s *Snapshot) SetTurn(m *turn.Machine) {
	st := m.State()
	s.Turn = &st
}

// HasClue reports whether clue id has been discovered.
func (s *Snapshot) HasClue(id string) bool {
	_, found := slices.BinarySearch(s.DiscoveredClues, id)
	return found
}

// AddClue records a discovered clue and reports whether it is new.
func (s *Snapshot) AddClue(id string) bool {
	var added bool
	s.DiscoveredClues, added = insertSorted(s.DiscoveredClues, id)
	return added
}

// CompletePoint records a completed plot point and reports whether it is new.
func (s *Snapshot) CompletePoint(id string) bool {
	var added bool
	s.CompletedPoints, added = insertSorted(s.CompletedPoints, id)
	return added
}

// AppendHistory records a message exchanged with the generator.
func (s *Snapshot) AppendHistory(role Role, content string) {
	s.History = append(s.History, Message{Role: role, Content: content})
}

func insertSorted(set []string, v string) ([]string, bool) {
	i, found := slices.BinarySearch(set, v)
	if found {
		return set, false
	}
	return slices.Insert(set, i, v), true
}

// normalize fills zero-valued collections and repairs the derived roster order.
func (s *Snapshot) normalize() {
	if s.Actors == nil {
		s.Actors = map[string]*Actor{}
	}
	if s.History == nil {
		s.History = []Message{}
	}
	if s.PendingPushes == nil {
		s.PendingPushes = map[string]skill.Offer{}
	}
	s.DiscoveredClues = dedupeSorted(s.DiscoveredClues)
	s.CompletedPoints = dedupeSorted(s.CompletedPoints)
	if s.Turn == nil {
		fresh := turn.New().State()
		s.Turn = &fresh
	}
	seen := make(map[string]bool, len(s.ActorOrder))
	order := make([]string, 0, len(s.Actors))
	for _, id := range s.ActorOrder {
		if s.Present(id) && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	var missing []string
	for id := range s.Actors {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	s.ActorOrder = append(order, missing...)
}

func dedupeSorted(in []string) []string {
	out := slices.Clone(in)
	if out == nil {
		return []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
