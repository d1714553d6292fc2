// Package sanity resolves sanity checks. It is advisory: outcomes describe
// the new sanity value and madness flags, and the caller decides whether to
// apply them to an actor.
package sanity

import (
	"fmt"

	"github.com/aretw0/keeper/pkg/dice"
)

// Madness is the insanity state triggered by a single check.
type Madness string

const (
	MadnessNone       Madness = ""
	MadnessTemporary  Madness = "temporary"
	MadnessIndefinite Madness = "indefinite"
)

// temporaryThreshold is the single-check loss that triggers a temporary bout.
const temporaryThreshold = 5

// Outcome is the result of one sanity check.
type Outcome struct {
	Roll    int              `json:"roll"`
	Current int              `json:"current_san"`
	Success bool             `json:"success"`
	Loss    int              `json:"san_lost"`
	New     int              `json:"new_san"`
	Madness Madness          `json:"madness,omitempty"`
	Formula dice.FormulaRoll `json:"formula"`
}

// Resolve rolls a d100 against current sanity. A roll at or below current is
// a success and uses lossOnSuccess, otherwise lossOnFailure. Both formulas are
// parsed before any die is drawn.
func Resolve(r *dice.Roller, current int, lossOnSuccess, lossOnFailure string) (Outcome, error) {
	if current < 0 || current > 99 {
		return Outcome{}, fmt.Errorf("%w: current sanity %d", dice.ErrSkillOutOfRange, current)
	}
	onSuccess, err := dice.ParseFormula(lossOnSuccess)
	if err != nil {
		return Outcome{}, fmt.Errorf("loss on success: %w", err)
	}
	onFailure, err := dice.ParseFormula(lossOnFailure)
	if err != nil {
		return Outcome{}, fmt.Errorf("loss on failure: %w", err)
	}

	roll := r.D100()
	success := roll <= current

	formula := onFailure
	if success {
		formula = onSuccess
	}
	fr := formula.Roll(r)
	newValue := max(0, current-fr.Total)

	madness := MadnessNone
	if fr.Total >= temporaryThreshold {
		madness = MadnessTemporary
	}
	if newValue == 0 {
		madness = MadnessIndefinite
	}

	return Outcome{
		Roll:    roll,
		Current: current,
		Success: success,
		Loss:    fr.Total,
		New:     newValue,
		Madness: madness,
		Formula: fr,
	}, nil
}

// IndefiniteThreshold reports whether the cumulative loss from starting has
// reached one fifth of the starting value.
func IndefiniteThreshold(starting, current int) bool {
	return starting-current >= starting/5
}
