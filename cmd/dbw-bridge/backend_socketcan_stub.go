//go:build !linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cartlab/go-dbw-bridge/internal/telemetry"
	"github.com/cartlab/go-dbw-bridge/internal/transport"
)

// SocketCAN is a Linux kernel facility; off-target this backend can
// only report that it is unavailable.
func initSocketCANBackend(ctx context.Context, cfg *appConfig, rd *telemetry.Reader, l *slog.Logger, wg *sync.WaitGroup) (transport.Sink, func(), error) {
	return nil, func() {}, fmt.Errorf("socketcan backend requires linux")
}
