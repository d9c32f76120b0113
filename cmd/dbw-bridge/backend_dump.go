package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"go.einride.tech/can"

	"github.com/cartlab/go-dbw-bridge/internal/metrics"
	"github.com/cartlab/go-dbw-bridge/internal/telemetry"
	"github.com/cartlab/go-dbw-bridge/internal/transport"
)

// errDumpTxOverflow indicates the cansend queue was full.
var errDumpTxOverflow = errors.New("dump tx overflow")

// initDumpBackend bridges the bus through the can-utils binaries: candump
// supplies telemetry lines on stdout and each control frame is handed to
// cansend. Useful on hosts where the process cannot open a raw CAN socket.
func initDumpBackend(ctx context.Context, cfg *appConfig, rd *telemetry.Reader, l *slog.Logger, wg *sync.WaitGroup) (transport.Sink, func(), error) {
	cmd := exec.CommandContext(ctx, "candump", cfg.canIf)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, func() {}, fmt.Errorf("candump pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, func() {}, fmt.Errorf("candump start: %w", err)
	}
	l.Info("dump_open", "if", cfg.canIf, "pid", cmd.Process.Pid)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("dump_rx_end")
		rerr := rd.Run(ctx, out)
		werr := cmd.Wait()
		if ctx.Err() != nil {
			return
		}
		if rerr != nil {
			metrics.IncError(metrics.ErrDumpRead)
			l.Warn("dump_read_error", "error", rerr)
		} else {
			// candump exited on its own; telemetry is gone until restart.
			l.Warn("dump_stream_closed", "exit", werr)
		}
	}()
	tx := transport.NewAsyncTx(ctx, txQueueSize, func(fr can.Frame) error {
		return exec.CommandContext(ctx, "cansend", cfg.canIf, cansendArg(fr)).Run()
	}, transport.Hooks{
		OnError: func(error) { metrics.IncError(metrics.ErrDumpWrite) },
		OnAfter: metrics.IncControlTx,
		OnDrop: func() error {
			metrics.IncError(metrics.ErrDumpOver)
			return errDumpTxOverflow
		},
	})
	return tx.SendFrame, func() { tx.Close() }, nil
}

// cansendArg renders fr in the can-utils "ID#DATA" notation.
func cansendArg(fr can.Frame) string {
	if fr.IsExtended {
		return fmt.Sprintf("%08X#%X", fr.ID, fr.Data[:fr.Length])
	}
	return fmt.Sprintf("%03X#%X", fr.ID, fr.Data[:fr.Length])
}
