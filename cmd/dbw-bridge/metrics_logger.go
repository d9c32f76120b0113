package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cartlab/go-dbw-bridge/internal/metrics"
)

// startMetricsLogger emits a periodic counter snapshot so a plain log
// tail shows whether frames are actually moving, without scraping the
// Prometheus endpoint.
func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	start := time.Now()
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			snap := metrics.Snap()
			l.Info("metrics_snapshot",
				"uptime_s", int64(time.Since(start).Seconds()),
				"control_tx", snap.ControlTx,
				"bus_rx", snap.BusRx,
				"telemetry_lines", snap.Lines,
				"malformed", snap.Malformed,
				"feedback", snap.Feedback,
				"mode_changes", snap.ModeChanges,
				"ws_rx", snap.WSRx,
				"ws_tx", snap.WSTx,
				"clients", snap.HubClients,
				"hub_drops", snap.HubDrops,
				"hub_kicks", snap.HubKicks,
				"errors", snap.Errors,
			)
		}
	}()
}
