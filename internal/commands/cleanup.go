package commands

import (
	"context"
	"fmt"

	"github.com/aixgo-dev/nutrilog/pkg/retention"
	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Archive records past the retention window once",
		Long: `Runs one retention sweep against the configured store and prints
how many records were archived per collection. Suitable for an
external scheduler such as a cron job.`,
		RunE: runCleanup,
	}
	cmd.Flags().Int("days", 0, "Retention window in days (default from config)")
	return cmd
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if days, _ := cmd.Flags().GetInt("days"); days > 0 {
		cfg.Retention.Days = days
	}
	if err := cfg.ValidateStore(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Retention.Timeout)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sweeper := retention.NewSweeper(store, collections(cfg),
		retention.WithDays(cfg.Retention.Days),
		retention.WithLogger(log),
	)
	report, err := sweeper.Run(ctx)
	printReport(cmd, sweeper.Days(), report)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

func printReport(cmd *cobra.Command, days int, report retention.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cutoff: %s (%d days)\n", report.Cutoff.Format("2006-01-02 15:04"), days)
	for _, res := range report.Results {
		fmt.Fprintf(out, "  [%s] %-20s found=%d archived=%d failed=%d\n",
			res.Label, res.Collection, res.Found, res.Archived, res.Failed)
	}
	fmt.Fprintf(out, "Archived %d records\n", report.Archived())
}
