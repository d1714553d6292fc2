package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrNotYourTurn is returned when an actor tries to act outside its eligibility window.
var ErrNotYourTurn = errors.New("not_your_turn")

// ErrMissingActor is returned when a referenced actor is not in the roster.
var ErrMissingActor = errors.New("actor not found")

// ErrMissingClue is returned when a referenced clue is not in the scenario catalog.
var ErrMissingClue = errors.New("clue not found")

// ErrCorruptSnapshot is returned when persisted state cannot be decoded or violates invariants.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// ErrUnknownResource is returned when adjusting a resource the actor does not track.
var ErrUnknownResource = errors.New("unknown resource")

// ErrInactivePhase is returned when acting while the session is in the lobby or finished.
var ErrInactivePhase = errors.New("session is not accepting actions")

// ErrNoPendingPush is returned when pushing a check that was never offered or was already pushed.
var ErrNoPendingPush = errors.New("no pushable check pending")
