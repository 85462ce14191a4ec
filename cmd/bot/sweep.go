package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/unity-vault/vaultbot/pkg/logging"
)

// startStateSweeper periodically removes expired interaction state rows.
// Reads already ignore expired rows, so a failed sweep costs storage, not
// correctness; failures are logged and the next tick tries again.
func (a *App) startStateSweeper() {
	t := time.NewTicker(stateSweepInterval)
	defer t.Stop()

	for {
		select {
		case <-a.sweepStop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			removed, err := a.stateDal.DeleteExpired(ctx, time.Now().UTC())
			cancel()
			if err != nil {
				a.Error("Error sweeping expired interaction state", slog.String(logging.KeyError, err.Error()))
				continue
			}
			if removed > 0 {
				StateRowsSwept.Add(float64(removed))
				a.Debug("Swept expired interaction state", slog.Int64("removed", removed))
			}
		}
	}
}
