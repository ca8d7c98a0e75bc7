package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"soulverse/internal/app"
	logx "soulverse/pkg/logx"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and admin API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			a, err := app.New(*cfgPath, app.Options{Version: Version})
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				a.Close()
				return err
			}

			var (
				reason = app.StopSignal
				runErr error
			)
			select {
			case <-ctx.Done():
			case runErr = <-a.Fatal():
				reason = app.StopFatalError
				a.Logger().Error("fatal error", logx.Err(runErr))
			}

			limit := stopTimeout
			if limit <= 0 {
				limit = a.DrainTimeout() + 15*time.Second
			}
			stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), limit)
			defer stopCancel()
			if err := a.Stop(stopCtx, reason); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 0, "how long to wait for running jobs on shutdown (0 derives it from dispatch.unit_timeout)")
	return cmd
}
