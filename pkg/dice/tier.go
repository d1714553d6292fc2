package dice

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier classifies the outcome of a percentile check.
// Tiers are totally ordered: a greater value is a better outcome.
type Tier int

const (
	Fumble Tier = iota
	Failure
	RegularSuccess
	HardSuccess
	ExtremeSuccess
	CriticalSuccess
)

var tierNames = [...]string{
	Fumble:          "fumble",
	Failure:         "failure",
	RegularSuccess:  "regular_success",
	HardSuccess:     "hard_success",
	ExtremeSuccess:  "extreme_success",
	CriticalSuccess: "critical_success",
}

// String returns the wire name of the tier.
func (t Tier) String() string {
	if t < Fumble || t > CriticalSuccess {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// IsSuccess reports whether the tier is a regular success or better.
func (t Tier) IsSuccess() bool {
	return t >= RegularSuccess
}

// ParseTier converts a wire name back into a Tier.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(s, name) {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown tier %q", ErrValidation, s)
}

// MarshalJSON encodes the tier by name.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a tier name.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// EvaluateTier classifies a roll against a skill value and its difficulty
// target. It is a pure function of its three arguments.
func EvaluateTier(roll, skill, target int) Tier {
	switch {
	case roll == 1:
		return CriticalSuccess
	case roll >= 100 || (roll >= 96 && skill < 50):
		return Fumble
	case roll > target:
		return Failure
	case roll <= skill/5:
		return ExtremeSuccess
	case roll <= skill/2:
		return HardSuccess
	default:
		return RegularSuccess
	}
}
