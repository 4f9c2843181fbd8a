package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/database"
	"github.com/psds-microservice/citizen-desk/internal/export"
	"github.com/psds-microservice/citizen-desk/internal/repository"
	"github.com/psds-microservice/citizen-desk/internal/service"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write tickets created in a date range to a CSV or TXT file",
	RunE:  runExport,
}

var exportOpts struct {
	format string
	from   string
	to     string
	out    string
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportOpts.format, "format", "csv", "csv or txt")
	f.StringVar(&exportOpts.from, "from", "", "first day, YYYY-MM-DD (required)")
	f.StringVar(&exportOpts.to, "to", "", "last day, YYYY-MM-DD (required)")
	f.StringVar(&exportOpts.out, "out", "", "output file (default tickets_<from>_<to>.<format>)")
	_ = exportCmd.MarkFlagRequired("from")
	_ = exportCmd.MarkFlagRequired("to")
}

func runExport(cmd *cobra.Command, args []string) error {
	p, err := export.ParseParams([]string{exportOpts.format, exportOpts.from, exportOpts.to})
	if err != nil {
		return err
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	db, err := database.Prepare(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	svc := service.NewTicketService(service.Deps{
		Tickets:   repository.NewTicketRepository(db),
		Directory: repository.NewDirectoryRepository(db),
		Logger:    log,
	})
	tickets, err := svc.Export(cmd.Context(), service.System, p.Start, p.End)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	data, err := export.Render(p.Format, tickets)
	if err != nil {
		return err
	}
	out := exportOpts.out
	if out == "" {
		out = export.FileName(p.Format, p.Start, p.End)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	log.Info("export written", zap.String("file", out), zap.Int("tickets", len(tickets)))
	return nil
}
