package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psds-microservice/citizen-desk/internal/config"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:          "citizen-desk",
	Short:        "Citizen complaint desk: chat bot intake, routing, operator API",
	SilenceUsage: true,
	RunE:         runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(republishEventsCmd)
}

// setup loads and validates config and installs the global logger.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	logger.SetGlobal(log)
	return cfg, log, nil
}
