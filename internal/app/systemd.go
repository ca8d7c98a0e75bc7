package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "soulverse/pkg/logx"
)

// sdNotify sends state to systemd when running under a Type=notify unit. It is
// a no-op otherwise.
func (a *App) sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// watchdogLoop pings the systemd watchdog at half its interval while the
// supervisor runs. It returns immediately when the watchdog is disabled.
func (a *App) watchdogLoop(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			a.sdNotify(daemon.SdNotifyWatchdog)
		}
	}
}
