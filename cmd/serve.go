package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/psds-microservice/citizen-desk/internal/application"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat bot and the operator HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := application.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
