// Package phase implements the coarse session lifecycle state machine.
package phase

import (
	"errors"
	"fmt"
	"slices"
)

// Phase is a session lifecycle stage.
type Phase string

const (
	Lobby       Phase = "lobby"
	Intro       Phase = "intro"
	Exploration Phase = "exploration"
	Combat      Phase = "combat"
	Ending      Phase = "ending"
	Finished    Phase = "finished"
)

// ErrIllegalTransition matches every *IllegalTransitionError.
var ErrIllegalTransition = errors.New("illegal phase transition")

// ErrUnknownPhase is returned by Parse for an unrecognized name.
var ErrUnknownPhase = errors.New("unknown phase")

// IllegalTransitionError reports a rejected transition.
type IllegalTransitionError struct {
	From Phase
	To   Phase
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal phase transition: %s -> %s", e.From, e.To)
}

// Is allows errors.Is(err, ErrIllegalTransition).
func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

var edges = map[Phase][]Phase{
	Lobby:       {Intro},
	Intro:       {Exploration},
	Exploration: {Combat, Ending},
	Combat:      {Exploration, Ending},
	Ending:      {Finished},
	Finished:    nil,
}

// Parse validates a phase name.
func Parse(s string) (Phase, error) {
	p := Phase(s)
	if _, ok := edges[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
	return p, nil
}

// IsActive is true for every phase except lobby and finished.
func (p Phase) IsActive() bool {
	return p != Lobby && p != Finished
}

// Allowed returns the phases reachable from p in one step.
func (p Phase) Allowed() []Phase {
	return slices.Clone(edges[p])
}

// CanTransition reports whether p -> to is an allowed edge.
func (p Phase) CanTransition(to Phase) bool {
	return slices.Contains(edges[p], to)
}

// Machine holds the current phase.
type Machine struct {
	current Phase
}

// NewMachine starts a Machine at p. An empty phase starts in the lobby.
func NewMachine(p Phase) *Machine {
	if p == "" {
		p = Lobby
	}
	return &Machine{current: p}
}

// Current returns the current phase.
func (m *Machine) Current() Phase {
	return m.current
}

// IsActive reports whether the current phase accepts player actions.
func (m *Machine) IsActive() bool {
	return m.current.IsActive()
}

// Transition moves to target, or returns an *IllegalTransitionError and
// leaves the phase unchanged.
func (m *Machine) Transition(target Phase) error {
	if !m.current.CanTransition(target) {
		return &IllegalTransitionError{From: m.current, To: target}
	}
	m.current = target
	return nil
}
