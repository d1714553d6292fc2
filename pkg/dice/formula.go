package dice

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	maxFormulaCount = 100
	maxFormulaSides = 1000
)

// Spec describes Count dice with Sides faces each.
type Spec struct {
	Count int `json:"count"`
	Sides int `json:"sides"`
}

// Term is one signed component of a formula: either dice or a constant.
type Term struct {
	Negative bool
	Dice     *Spec
	Constant int
}

// Formula is a parsed additive dice expression such as "2d6+1".
type Formula struct {
	Source string
	Terms  []Term
}

// FormulaRoll records the dice drawn while evaluating a formula.
type FormulaRoll struct {
	Formula string `json:"formula"`
	Rolls   []int  `json:"rolls,omitempty"`
	Raw     int    `json:"raw"`
	Total   int    `json:"total"`
}

// ParseFormula parses "[sign]NdS" and bare-integer terms joined by + or -.
// Whitespace is ignored and N defaults to 1 ("d6").
func ParseFormula(s string) (Formula, error) {
	src := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if src == "" {
		return Formula{}, fmt.Errorf("%w: empty formula", ErrMalformedFormula)
	}

	var terms []Term
	i := 0
	for i < len(src) {
		neg := false
		switch src[i] {
		case '+':
			i++
		case '-':
			neg = true
			i++
		default:
			if len(terms) > 0 {
				return Formula{}, fmt.Errorf("%w: %q", ErrMalformedFormula, s)
			}
		}
		j := i
		for j < len(src) && src[j] != '+' && src[j] != '-' {
			j++
		}
		term, err := parseTerm(src[i:j])
		if err != nil {
			return Formula{}, fmt.Errorf("%w: %q", err, s)
		}
		term.Negative = neg
		terms = append(terms, term)
		i = j
	}
	return Formula{Source: s, Terms: terms}, nil
}

func parseTerm(t string) (Term, error) {
	if t == "" {
		return Term{}, ErrMalformedFormula
	}
	idx := strings.IndexAny(t, "dD")
	if idx < 0 {
		n, err := strconv.Atoi(t)
		if err != nil || n < 0 {
			return Term{}, ErrMalformedFormula
		}
		return Term{Constant: n}, nil
	}

	count := 1
	if idx > 0 {
		n, err := strconv.Atoi(t[:idx])
		if err != nil {
			return Term{}, ErrMalformedFormula
		}
		count = n
	}
	sides, err := strconv.Atoi(t[idx+1:])
	if err != nil {
		return Term{}, ErrMalformedFormula
	}
	if count <= 0 || sides <= 0 {
		return Term{}, ErrInvalidDiceSpec
	}
	if count > maxFormulaCount || sides > maxFormulaSides {
		return Term{}, ErrMalformedFormula
	}
	return Term{Dice: &Spec{Count: count, Sides: sides}}, nil
}

// Min is the smallest total the formula can produce.
func (f Formula) Min() int {
	return f.bound(false)
}

// Max is the largest total the formula can produce.
func (f Formula) Max() int {
	return f.bound(true)
}

func (f Formula) bound(high bool) int {
	total := 0
	for _, t := range f.Terms {
		lo, hi := t.Constant, t.Constant
		if t.Dice != nil {
			lo, hi = t.Dice.Count, t.Dice.Count*t.Dice.Sides
		}
		pick := lo
		if high != t.Negative {
			pick = hi
		}
		if t.Negative {
			pick = -pick
		}
		total += pick
	}
	return max(total, 0)
}

// Roll evaluates the formula with r. The total is clamped to zero.
func (f Formula) Roll(r *Roller) FormulaRoll {
	out := FormulaRoll{Formula: f.Source}
	for _, t := range f.Terms {
		v := t.Constant
		if t.Dice != nil {
			v = 0
			for i := 0; i < t.Dice.Count; i++ {
				d := r.Die(t.Dice.Sides)
				out.Rolls = append(out.Rolls, d)
				v += d
			}
		}
		if t.Negative {
			v = -v
		}
		out.Raw += v
	}
	out.Total = max(out.Raw, 0)
	return out
}

// RollFormula parses and evaluates s in one step.
func (r *Roller) RollFormula(s string) (FormulaRoll, error) {
	f, err := ParseFormula(s)
	if err != nil {
		return FormulaRoll{}, err
	}
	return f.Roll(r), nil
}
