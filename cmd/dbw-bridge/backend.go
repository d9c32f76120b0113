package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cartlab/go-dbw-bridge/internal/telemetry"
	"github.com/cartlab/go-dbw-bridge/internal/transport"
)

// backendInit wires one bus flavor: open the device, start its RX
// loop, hand back a frame sender plus a cleanup that closes the device
// (which is what unblocks a pending read).
type backendInit = func(context.Context, *appConfig, *telemetry.Reader, *slog.Logger, *sync.WaitGroup) (transport.Sink, func(), error)

var backends = map[string]backendInit{
	"socketcan": initSocketCANBackend,
	"slcan":     initSLCANBackend,
	"dump":      initDumpBackend,
}

// initBackend dispatches on the configured backend name. It returns an
// error instead of exiting so the caller decides how to die.
func initBackend(ctx context.Context, cfg *appConfig, rd *telemetry.Reader, l *slog.Logger, wg *sync.WaitGroup) (transport.Sink, func(), error) {
	mk, ok := backends[cfg.backend]
	if !ok {
		return nil, func() {}, fmt.Errorf("unknown backend %q (use socketcan|slcan|dump)", cfg.backend)
	}
	return mk(ctx, cfg, rd, l, wg)
}
