package main

import (
	"github.com/aretw0/keeper/internal/cli"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var rollCmd = &cobra.Command{
	Use:   "roll",
	Short: "Roll a percentile check or a dice formula",
	Example: `  keeper roll --skill 60 --difficulty hard --bonus 1
  keeper roll --skill 70 --against 45
  keeper roll --formula 1d6+1d4 --seed 42`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts cli.RollOptions
		opts.Skill, _ = cmd.Flags().GetInt("skill")
		opts.Difficulty, _ = cmd.Flags().GetString("difficulty")
		opts.Bonus, _ = cmd.Flags().GetInt("bonus")
		opts.Formula, _ = cmd.Flags().GetString("formula")
		if cmd.Flags().Changed("against") {
			against, _ := cmd.Flags().GetInt("against")
			opts.Against = &against
		}
		if cmd.Flags().Changed("seed") {
			seed, _ := cmd.Flags().GetInt64("seed")
			opts.Seed = &seed
		}
		return cli.Roll(cmd.OutOrStdout(), termenv.ColorProfile(), opts)
	},
}

func init() {
	rootCmd.AddCommand(rollCmd)
	rollCmd.Flags().Int("skill", 50, "Skill value (0-99)")
	rollCmd.Flags().String("difficulty", "regular", "regular, hard or extreme")
	rollCmd.Flags().Int("bonus", 0, "Bonus dice (negative for penalty dice, max 2)")
	rollCmd.Flags().Int("against", 0, "Opposing skill value for an opposed check")
	rollCmd.Flags().String("formula", "", "Dice formula such as 2d6+1 instead of a check")
	rollCmd.Flags().Int64("seed", 0, "Seed for a reproducible roll")
}
