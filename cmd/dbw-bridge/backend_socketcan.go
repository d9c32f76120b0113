//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cartlab/go-dbw-bridge/internal/metrics"
	"github.com/cartlab/go-dbw-bridge/internal/socketcan"
	"github.com/cartlab/go-dbw-bridge/internal/telemetry"
	"github.com/cartlab/go-dbw-bridge/internal/transport"
)

// openSocketCANDevice is a hook for tests (overridden in unit tests).
var openSocketCANDevice = func(ctx context.Context, iface string) (socketcan.Dev, error) {
	return socketcan.Dial(ctx, iface)
}

// initSocketCANBackend binds the kernel CAN interface and launches the
// RX loop.
func initSocketCANBackend(ctx context.Context, cfg *appConfig, rd *telemetry.Reader, l *slog.Logger, wg *sync.WaitGroup) (transport.Sink, func(), error) {
	dev, err := openSocketCANDevice(ctx, cfg.canIf)
	if err != nil {
		return nil, func() {}, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
	}
	l.Info("socketcan_open", "if", cfg.canIf)
	tw := socketcan.NewTXWriter(ctx, dev, txQueueSize)
	wg.Add(1)
	go runSocketCANRx(ctx, dev, rd, l, wg)
	// Closing the device is what unblocks a pending Receive; the loop
	// then exits through the ctx check.
	cleanup := func() { _ = dev.Close(); tw.Close() }
	return tw.SendFrame, cleanup, nil
}

// runSocketCANRx pulls frames off the interface into the telemetry
// reader. Receive has no timeout, so errors back off and shutdown
// relies on the device being closed underneath the loop.
func runSocketCANRx(ctx context.Context, dev socketcan.Dev, rd *telemetry.Reader, l *slog.Logger, wg *sync.WaitGroup) {
	defer wg.Done()
	defer l.Info("socketcan_rx_end")
	delay := rxBackoffMin
	for ctx.Err() == nil {
		fr, err := dev.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.IncError(metrics.ErrSocketCANRead)
			l.Warn("socketcan_read_error", "error", err, "backoff", delay)
			sleepFn(delay)
			delay *= 2
			if delay > rxBackoffMax {
				delay = rxBackoffMax
			}
			continue
		}
		if fr.IsRemote {
			continue
		}
		metrics.IncBusRx()
		rd.HandleFrame(fr.ID, fr.Data[:fr.Length])
		delay = rxBackoffMin
	}
}
