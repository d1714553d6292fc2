package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/keeper"
	"github.com/aretw0/keeper/internal/cli"
	"github.com/aretw0/keeper/internal/presentation/tui"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [session-id]",
	Short: "Play a session in the terminal",
	Long: `Starts or resumes a session and reads actions from stdin.
A new session takes its investigators from --roster, or from
investigators.yaml next to the scenario.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		sessionID := "default"
		if len(args) == 1 {
			sessionID = args[0]
		}
		rosterPath, _ := cmd.Flags().GetString("roster")
		if rosterPath == "" {
			rosterPath = filepath.Join(app.Config.Scenario.Dir, app.Config.Scenario.ID, "investigators.yaml")
		}
		actorID, _ := cmd.Flags().GetString("as")
		plain, _ := cmd.Flags().GetBool("plain")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		var roster []*domain.Actor
		if data, err := os.ReadFile(rosterPath); err == nil {
			if roster, err = cli.LoadRoster(data); err != nil {
				return err
			}
		}
		id, loaded, err := cli.LoadOrCreate(sigCtx, app.Sessions, sessionID, app.Config.Scenario.ID, roster)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		runner := &cli.Runner{
			Input:    cli.NewInterruptibleReader(os.Stdin, sigCtx.Done()),
			Output:   out,
			Renderer: tui.Plain,
			Profile:  termenv.Ascii,
			Sessions: app.Sessions,
		}
		if !plain {
			tui.PrintBanner(out, keeper.Version)
			runner.Renderer = tui.NewRenderer(80)
			runner.Profile = termenv.ColorProfile()
		}
		if loaded {
			fmt.Fprintln(out, tui.System("Resuming session '%s'.", id))
		} else {
			fmt.Fprintln(out, tui.System("Session '%s' created.", id))
		}

		err = runner.Run(sigCtx, id, actorID)
		if sigCtx.Signal() != nil {
			fmt.Fprintln(out, "[CTRL+C]")
			fmt.Fprintln(out, tui.System("Session '%s' saved.", id))
		}
		return cli.HandleExecutionError(err)
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().String("roster", "", "Investigators file (JSON or YAML) for a new session")
	playCmd.Flags().String("as", "", "Character to play first")
	playCmd.Flags().Bool("plain", false, "Disable markdown rendering and colors")
}
