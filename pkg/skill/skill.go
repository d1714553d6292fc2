// Package skill wraps percentile checks with skill names and push-roll rules.
package skill

import (
	"errors"

	"github.com/aretw0/keeper/pkg/dice"
)

// DefaultValue is the skill value used when an actor lacks the named skill.
const DefaultValue = 50

// ErrNotPushable is returned when pushing a check that cannot be retried.
var ErrNotPushable = errors.New("check cannot be pushed")

// nonPushable lists skills whose failures can never be retried.
var nonPushable = map[string]struct{}{
	"Cthulhu Mythos": {},
	"克苏鲁神话":          {},
}

// Outcome is the result of a named skill check.
type Outcome struct {
	Skill      string          `json:"skill"`
	Difficulty dice.Difficulty `json:"difficulty"`
	Result     dice.RollResult `json:"roll"`
	Success    bool            `json:"success"`
	CanPush    bool            `json:"can_push"`
}

// Offer captures the parameters of a failed check so it can be pushed once.
type Offer struct {
	Skill      string          `json:"skill"`
	Value      int             `json:"value"`
	Difficulty dice.Difficulty `json:"difficulty"`
	BonusDice  int             `json:"bonus_dice"`
}

// Offer returns the push offer for o, or false if o cannot be pushed.
func (o Outcome) Offer() (Offer, bool) {
	if !o.CanPush {
		return Offer{}, false
	}
	return Offer{
		Skill:      o.Skill,
		Value:      o.Result.SkillValue,
		Difficulty: o.Difficulty,
		BonusDice:  o.Result.BonusDice,
	}, true
}

// IsPushable reports whether a failed check of the named skill may be retried.
func IsPushable(name string) bool {
	_, blocked := nonPushable[name]
	return !blocked
}

// Resolver resolves skill checks against a Roller.
type Resolver struct {
	roller *dice.Roller
}

// NewResolver returns a Resolver drawing from r.
func NewResolver(r *dice.Roller) *Resolver {
	return &Resolver{roller: r}
}

// Check resolves one skill check.
func (s *Resolver) Check(name string, value int, difficulty dice.Difficulty, bonus int) (Outcome, error) {
	res, err := s.roller.Check(dice.CheckRequest{SkillValue: value, BonusDice: bonus, Difficulty: difficulty})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Skill:      name,
		Difficulty: res.Difficulty,
		Result:     res,
		Success:    res.IsSuccess(),
		CanPush:    !res.IsSuccess() && res.Tier != dice.Fumble && IsPushable(name),
	}, nil
}

// Push re-rolls an offer with the same parameters. A pushed check can never
// be pushed again.
func (s *Resolver) Push(offer Offer) (Outcome, error) {
	if !IsPushable(offer.Skill) {
		return Outcome{}, ErrNotPushable
	}
	out, err := s.Check(offer.Skill, offer.Value, offer.Difficulty, offer.BonusDice)
	if err != nil {
		return Outcome{}, err
	}
	out.Result.Pushed = true
	out.CanPush = false
	return out, nil
}
