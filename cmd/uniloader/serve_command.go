package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"uniloader/internal/daemon"
	"uniloader/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr := ctx.addrFlagValue(); addr != "" {
				cfg.Paths.APIBind = addr
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}
			if err := d.Start(runCtx); err != nil {
				return err
			}
			defer d.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "uniloader listening on %s (Ctrl+C to stop)\n", d.Addr())
			<-runCtx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "uniloader shutting down")
			return nil
		},
	}
}
