package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/rescue/internal/control"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archived error records",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of records to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging)

	archive, err := control.OpenArchive(cfg.Archive)
	if err != nil {
		slog.Error("Failed to open archive", "error", err)
		os.Exit(1)
	}
	if archive == nil {
		slog.Error("Archive is disabled, set archive.driver in the config")
		os.Exit(1)
	}
	defer func() {
		_ = archive.Close()
	}()

	ctx := context.Background()
	total, err := archive.Count(ctx)
	if err != nil {
		slog.Error("Failed to count archived records", "error", err)
		os.Exit(1)
	}
	records, err := archive.Recent(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to query archived records", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintf(w, "ARCHIVED: %d\n", total)
	_, _ = fmt.Fprintln(w, "CREATED\tJOB\tPHASE\tCATEGORY\tSEVERITY\tRESOLVED\tATTEMPTS")

	for _, rec := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%d\n",
			rec.CreatedAt.Format(time.RFC3339),
			rec.Context.JobID,
			rec.Context.Phase,
			rec.Category,
			rec.Severity,
			rec.Resolved,
			len(rec.Attempts),
		)
	}
	_ = w.Flush()
}
