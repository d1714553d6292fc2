package cli

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/keeper/internal/presentation/tui"
	"github.com/aretw0/keeper/pkg/dice"
	"github.com/muesli/termenv"
)

// RollOptions configures a manual roll. Formula takes precedence over a
// percentile check. Against turns the check into an opposed roll at regular
// difficulty against that skill value.
type RollOptions struct {
	Skill      int
	Difficulty string
	Bonus      int
	Against    *int
	Formula    string
	Seed       *int64
}

// Roll performs a percentile check or evaluates a dice formula and writes
// the outcome to w.
func Roll(w io.Writer, profile termenv.Profile, opts RollOptions) error {
	seed := randomSeed()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	roller := dice.NewRoller(seed)

	if opts.Formula != "" {
		f, err := dice.ParseFormula(opts.Formula)
		if err != nil {
			return err
		}
		res := f.Roll(roller)
		rolls := make([]string, len(res.Rolls))
		for i, v := range res.Rolls {
			rolls[i] = fmt.Sprint(v)
		}
		fmt.Fprintf(w, "%s = %d", res.Formula, res.Total)
		if len(rolls) > 0 {
			fmt.Fprintf(w, "  [%s]", strings.Join(rolls, " "))
		}
		fmt.Fprintf(w, "  range %d-%d  (seed %d)\n", f.Min(), f.Max(), seed)
		return nil
	}

	difficulty, err := dice.ParseDifficulty(opts.Difficulty)
	if err != nil {
		return err
	}
	req := dice.CheckRequest{
		SkillValue: opts.Skill,
		BonusDice:  opts.Bonus,
		Difficulty: difficulty,
	}
	if opts.Against != nil {
		out, err := dice.Opposed(roller, req, dice.CheckRequest{SkillValue: *opts.Against, Difficulty: dice.Regular})
		if err != nil {
			return err
		}
		winner := "defender"
		if out.ActiveWins {
			winner = "attacker"
		}
		fmt.Fprintf(w, "attacker d100 %d (%d) %s  defender d100 %d (%d) %s  %s wins  (seed %d)\n",
			out.Active.Roll, out.Active.SkillValue, tui.Tier(profile, out.Active.Tier.String()),
			out.Passive.Roll, out.Passive.SkillValue, tui.Tier(profile, out.Passive.Tier.String()),
			winner, seed)
		return nil
	}

	res, err := roller.Check(req)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "d100 %d vs %d (%s %d)  %s  (seed %d)\n",
		res.Roll, res.Target, res.Difficulty, res.SkillValue, tui.Tier(profile, res.Tier.String()), seed)
	return nil
}

func randomSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1)
}
