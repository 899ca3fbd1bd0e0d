package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"adsposter/internal/app"
	logx "adsposter/pkg/logx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the service: chat commands, HTTP control and autorun",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := app.New(cfgPath, app.Options{})
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			_ = a.Stop(context.Background(), app.StopFatalError)
			return err
		}
		log := a.Logger()
		if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			log.Warn("sd_notify ready failed", logx.Err(err))
		} else if ok {
			log.Debug("sd_notify ready sent")
		}

		reason := app.StopSignal
		select {
		case <-ctx.Done():
		case <-a.Done():
			reason = app.StopFatalError
		}
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		sctx, scancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer scancel()
		fatal := a.Err()
		if err := a.Stop(sctx, reason); err != nil {
			log.Warn("stop finished with errors", logx.Err(err))
		}
		if reason == app.StopFatalError {
			return fatal
		}
		return nil
	},
}
