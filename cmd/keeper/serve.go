package main

import (
	"context"

	"github.com/aretw0/keeper"
	"github.com/aretw0/keeper/internal/cli"
	httpAdapter "github.com/aretw0/keeper/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Serves sessions as a JSON API with server-sent events and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			app.Config.Server.Addr = addr
		}

		handler := httpAdapter.NewHandler(app.Sessions,
			httpAdapter.WithLogger(app.Logger),
			httpAdapter.WithMetrics(app.Metrics.Handler()),
			httpAdapter.WithVersion(keeper.Version),
		)

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		err = httpAdapter.ListenAndServe(sigCtx, app.Config.Server.Addr, handler, app.Config.Server.ShutdownTimeout, app.Logger)
		if sig := sigCtx.Signal(); sig != nil {
			app.Logger.Info("server stopped", "signal", sig.String())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (overrides server.addr)")
}
