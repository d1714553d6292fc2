package dice

import (
	"fmt"
	"strings"
)

// Difficulty selects the fraction of the skill value a roll must meet.
type Difficulty string

const (
	Regular Difficulty = "regular"
	Hard    Difficulty = "hard"
	Extreme Difficulty = "extreme"
)

// ParseDifficulty normalizes a difficulty name. An empty string is Regular.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case "", Regular:
		return Regular, nil
	case Hard:
		return Hard, nil
	case Extreme:
		return Extreme, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
	}
}

// Target returns the roll a check must meet or beat for the given skill value.
func (d Difficulty) Target(skill int) int {
	switch d {
	case Hard:
		return skill / 2
	case Extreme:
		return skill / 5
	default:
		return skill
	}
}
