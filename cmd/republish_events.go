package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/application"
	"github.com/psds-microservice/citizen-desk/internal/database"
	"github.com/psds-microservice/citizen-desk/internal/repository"
	"github.com/psds-microservice/citizen-desk/internal/searchindex"
	"github.com/psds-microservice/citizen-desk/internal/service"
)

var republishEventsCmd = &cobra.Command{
	Use:   "republish-events",
	Short: "Replay every stored ticket as a snapshot event and reindex it in search",
	RunE:  runRepublishEvents,
}

var republishBatch int

func init() {
	republishEventsCmd.Flags().IntVar(&republishBatch, "batch", 100, "tickets loaded per batch")
}

func runRepublishEvents(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	db, err := database.Prepare(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	bus, err := application.Events(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	svc := service.NewTicketService(service.Deps{
		Tickets:   repository.NewTicketRepository(db),
		Directory: repository.NewDirectoryRepository(db),
		Events:    bus,
		Search:    searchindex.NewClient(cfg.SearchServiceURL, log),
		Logger:    log,
	})
	n, err := svc.Republish(ctx, republishBatch)
	if err != nil {
		return fmt.Errorf("republish-events: after %d tickets: %w", n, err)
	}
	log.Info("republish-events: done", zap.Int("tickets", n))
	return nil
}
