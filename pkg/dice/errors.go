package dice

import (
	"errors"
	"fmt"
)

// ErrValidation is the root of every input rejection raised by this package.
// Callers match it with errors.Is to tell bad input from internal failures.
var ErrValidation = errors.New("validation error")

var (
	// ErrSkillOutOfRange is returned when a skill value is outside [0, 99].
	ErrSkillOutOfRange = fmt.Errorf("%w: skill value out of range", ErrValidation)

	// ErrTooManyBonusDice is returned when |BonusDice| exceeds MaxBonusDice.
	ErrTooManyBonusDice = fmt.Errorf("%w: too many bonus or penalty dice", ErrValidation)

	// ErrUnknownDifficulty is returned for a difficulty name that is not regular, hard or extreme.
	ErrUnknownDifficulty = fmt.Errorf("%w: unknown difficulty", ErrValidation)

	// ErrMalformedFormula is returned when a dice formula cannot be parsed.
	ErrMalformedFormula = fmt.Errorf("%w: malformed formula", ErrValidation)

	// ErrInvalidDiceSpec is returned when a dice spec has a non-positive count or sides.
	ErrInvalidDiceSpec = fmt.Errorf("%w: invalid dice spec", ErrValidation)
)
