package main

import (
	"fmt"
	"os"

	"github.com/aretw0/keeper/internal/cli"
	"github.com/aretw0/keeper/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Keeper runs tabletop horror investigations",
	Long: `Keeper is a rules engine for investigative horror sessions. A narrative
generator plays the Keeper of Arcane Lore while the engine rolls the dice,
tracks sanity and keeps combat turns honest.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("dir", "", "Scenario directory (overrides scenario.dir)")
	rootCmd.PersistentFlags().String("store", "", "Store driver: memory, file, redis or sqlite (overrides store.driver)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// loadApp reads configuration, applies flag overrides and wires the app.
func loadApp(cmd *cobra.Command) (*cli.App, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Scenario.Dir = dir
	}
	if driver, _ := cmd.Flags().GetString("store"); driver != "" {
		cfg.Store.Driver = driver
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug, _ := cmd.Flags().GetBool("debug")
	logger, err := cli.NewLogger(cfg.Log, debug)
	if err != nil {
		return nil, err
	}
	return cli.NewApp(cfg, logger)
}
