package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventCheckResolved    EventType = "check_resolved"
	EventDirectiveDropped EventType = "directive_dropped"
	EventTurnAdvanced     EventType = "turn_advanced"
	EventPhaseChanged     EventType = "phase_changed"
	EventGenerate         EventType = "generate"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// CheckEvent is emitted for every resolved skill or sanity check.
type CheckEvent struct {
	EventBase
	ActorID string `json:"actor_id"`
	Kind    string `json:"kind"`
	Name    string `json:"name,omitempty"`
	Tier    string `json:"tier"`
	Pushed  bool   `json:"pushed,omitempty"`
}

// DirectiveEvent is emitted when a directive is dropped.
type DirectiveEvent struct {
	EventBase
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// TurnEvent is emitted when combat moves to the next actor.
type TurnEvent struct {
	EventBase
	ActorID string `json:"actor_id"`
	Round   int    `json:"round"`
}

// PhaseEvent is emitted on every phase transition.
type PhaseEvent struct {
	EventBase
	From string `json:"from"`
	To   string `json:"to"`
}

// GenerateEvent is emitted after each generator round-trip.
type GenerateEvent struct {
	EventBase
	Step     string        `json:"step"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnCheckResolved    func(context.Context, *CheckEvent)
	OnDirectiveDropped func(context.Context, *DirectiveEvent)
	OnTurnAdvanced     func(context.Context, *TurnEvent)
	OnPhaseChanged     func(context.Context, *PhaseEvent)
	OnGenerate         func(context.Context, *GenerateEvent)
}
