package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"uniloader/internal/artifacts"
	"uniloader/internal/config"
	"uniloader/internal/ledger"
	"uniloader/internal/logging"
)

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	artifactsCmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect and reclaim stored artifacts",
	}
	artifactsCmd.AddCommand(newArtifactsListCommand(ctx))
	artifactsCmd.AddCommand(newArtifactsPurgeCommand(ctx))
	return artifactsCmd
}

func openLedger(cfg *config.Config) (*ledger.Store, error) {
	if !cfg.Retention.PersistSchedule {
		return nil, errors.New("retention.persist_schedule is disabled; no ledger is kept")
	}
	return ledger.Open(cfg)
}

func newArtifactsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent artifacts from the retention ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openLedger(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No artifacts recorded")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.JobID,
					rec.Kind.String(),
					formatBytes(rec.SizeBytes),
					rec.CreatedAt.Local().Format(time.DateTime),
					recordState(rec),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Kind", "Size", "Created", "State"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")
	return cmd
}

func recordState(rec ledger.Record) string {
	if rec.ExpiredAt != nil {
		return "reclaimed " + rec.ExpiredAt.Local().Format(time.DateTime)
	}
	if time.Now().After(rec.ExpiresAt) {
		return "overdue"
	}
	return "expires " + rec.ExpiresAt.Local().Format(time.DateTime)
}

func newArtifactsPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Reclaim every stored artifact now (daemon must be stopped)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := artifacts.Options{
				Root:      cfg.Paths.StorageDir,
				Retention: cfg.RetentionWindow(),
				Logger:    logging.NewNop(),
			}
			if cfg.Retention.PersistSchedule {
				store, err := ledger.Open(cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				opts.Ledger = store
			}

			mgr, err := artifacts.Open(opts)
			if err != nil {
				if errors.Is(err, artifacts.ErrLocked) {
					return errors.New("the daemon owns the storage root; stop it before purging")
				}
				return err
			}
			defer mgr.Close()

			summary, err := mgr.Restore(cmd.Context())
			if err != nil {
				return err
			}
			reclaimed := summary.Expired
			for _, art := range mgr.List() {
				if err := mgr.Expire(cmd.Context(), art.JobID); err != nil {
					return fmt.Errorf("reclaim %s: %w", art.JobID, err)
				}
				reclaimed++
			}
			orphans, err := mgr.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d artifact(s); removed %d orphaned file(s)\n", reclaimed, orphans)
			return nil
		},
	}
}
