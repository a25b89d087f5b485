package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"uniloader/internal/api"
	"uniloader/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show dependency checks and daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range checkLines(preflight.RunAll(cmd.Context(), cfg), colorize) {
				fmt.Fprintln(stdout, line)
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			addr, err := ctx.apiAddress()
			if err != nil {
				return err
			}
			client, err := api.NewClient(addr, nil)
			if err != nil {
				return err
			}
			healthCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			health, err := client.Health(healthCtx)
			if err != nil {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("not reachable at %s", addr), colorize))
				return nil
			}
			kind := statusOK
			if health.Status != "ok" {
				kind = statusWarn
			}
			fmt.Fprintln(stdout, renderStatusLine("Daemon", kind, fmt.Sprintf("%s at %s", health.Status, addr), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Active jobs", statusInfo, fmt.Sprintf("%d", health.ActiveJobs), colorize))
			free := int64(health.Storage.FreeBytes) //nolint:gosec // free bytes fit in int64
			storage := fmt.Sprintf("%d stored (%s), %s free", health.Storage.Artifacts, formatBytes(health.Storage.TotalBytes), formatBytes(free))
			fmt.Fprintln(stdout, renderStatusLine("Artifacts", statusInfo, storage, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Persisted schedule", statusInfo, yesNo(cfg.Retention.PersistSchedule), colorize))
			return nil
		},
	}
}

func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}
