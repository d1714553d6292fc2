package dice

import "math/rand"

// MaxBonusDice bounds the number of bonus or penalty tens dice on one check.
const MaxBonusDice = 2

// CheckRequest describes a single percentile check.
type CheckRequest struct {
	SkillValue int        `json:"skill_value"`
	BonusDice  int        `json:"bonus_dice"`
	Difficulty Difficulty `json:"difficulty"`
}

// Validate rejects requests that would otherwise be silently coerced.
func (r CheckRequest) Validate() error {
	if r.SkillValue < 0 || r.SkillValue > 99 {
		return ErrSkillOutOfRange
	}
	if r.BonusDice > MaxBonusDice || r.BonusDice < -MaxBonusDice {
		return ErrTooManyBonusDice
	}
	if _, err := ParseDifficulty(string(r.Difficulty)); err != nil {
		return err
	}
	return nil
}

// RollResult is the immutable record of a resolved percentile check.
type RollResult struct {
	Roll       int        `json:"roll"`
	Target     int        `json:"target"`
	SkillValue int        `json:"skill_value"`
	Tier       Tier       `json:"tier"`
	Difficulty Difficulty `json:"difficulty"`
	BonusDice  int        `json:"bonus_dice"`
	TensDice   []int      `json:"tens_dice"`
	UnitsDie   int        `json:"units_die"`
	Pushed     bool       `json:"pushed,omitempty"`
}

// IsSuccess reports whether the check met its target.
func (r RollResult) IsSuccess() bool {
	return r.Tier.IsSuccess()
}

// Roller draws dice from a single seeded source. It is not safe for
// concurrent use; resolve one action with one Roller.
type Roller struct {
	rng *rand.Rand
}

// NewRoller returns a Roller whose sequence is fully determined by seed.
func NewRoller(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// Intn returns a value in [0, n).
func (r *Roller) Intn(n int) int {
	return r.rng.Intn(n)
}

// Die rolls a single die with the given number of sides.
func (r *Roller) Die(sides int) int {
	return r.rng.Intn(sides) + 1
}

// D100 rolls a plain percentile die in [1, 100].
func (r *Roller) D100() int {
	return r.Die(100)
}

// Check resolves a percentile check. The request is validated before any die
// is drawn.
func (r *Roller) Check(req CheckRequest) (RollResult, error) {
	if err := req.Validate(); err != nil {
		return RollResult{}, err
	}
	difficulty, _ := ParseDifficulty(string(req.Difficulty))

	units := r.rng.Intn(10)
	count := 1 + abs(req.BonusDice)
	tens := make([]int, count)
	for i := range tens {
		tens[i] = r.rng.Intn(10)
	}

	chosen := tens[0]
	for _, t := range tens[1:] {
		if req.BonusDice > 0 && t < chosen {
			chosen = t
		}
		if req.BonusDice < 0 && t > chosen {
			chosen = t
		}
	}

	roll := chosen*10 + units
	if roll == 0 {
		roll = 100
	}

	target := difficulty.Target(req.SkillValue)
	return RollResult{
		Roll:       roll,
		Target:     target,
		SkillValue: req.SkillValue,
		Tier:       EvaluateTier(roll, req.SkillValue, target),
		Difficulty: difficulty,
		BonusDice:  req.BonusDice,
		TensDice:   tens,
		UnitsDie:   units,
	}, nil
}

// ResolveCheck resolves req on a fresh Roller seeded with seed.
func ResolveCheck(req CheckRequest, seed int64) (RollResult, error) {
	return NewRoller(seed).Check(req)
}

// OpposedResult reports both sides of an opposed check.
type OpposedResult struct {
	Active     RollResult `json:"active"`
	Passive    RollResult `json:"passive"`
	ActiveWins bool       `json:"active_wins"`
}

// Opposed resolves two checks independently. The higher tier wins; equal
// tiers go to the higher nominal skill value, and the active side keeps an
// exact tie.
func Opposed(r *Roller, active, passive CheckRequest) (OpposedResult, error) {
	a, err := r.Check(active)
	if err != nil {
		return OpposedResult{}, err
	}
	p, err := r.Check(passive)
	if err != nil {
		return OpposedResult{}, err
	}
	return OpposedResult{Active: a, Passive: p, ActiveWins: OpposedWinner(a, p)}, nil
}

// OpposedWinner reports whether a beats p in an opposed check.
func OpposedWinner(a, p RollResult) bool {
	if a.Tier != p.Tier {
		return a.Tier > p.Tier
	}
	return a.SkillValue >= p.SkillValue
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
