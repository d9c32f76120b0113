package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.einride.tech/can"

	"github.com/cartlab/go-dbw-bridge/internal/metrics"
	"github.com/cartlab/go-dbw-bridge/internal/slcan"
	"github.com/cartlab/go-dbw-bridge/internal/telemetry"
	"github.com/cartlab/go-dbw-bridge/internal/transport"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// openSerialPort is a hook for tests (overridden in unit tests).
var openSerialPort = slcan.OpenPort

// initSLCANBackend opens the serial adapter, configures the CAN
// channel and launches the RX loop.
func initSLCANBackend(ctx context.Context, cfg *appConfig, rd *telemetry.Reader, l *slog.Logger, wg *sync.WaitGroup) (transport.Sink, func(), error) {
	sp, err := openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open serial: %w", err)
	}
	if _, err := sp.Write(slcan.SetupSequence(cfg.slcanBitrate)); err != nil {
		_ = sp.Close()
		return nil, func() {}, fmt.Errorf("slcan setup: %w", err)
	}
	l.Info("slcan_open", "device", cfg.serialDev, "baud", cfg.baud, "bitrate_code", cfg.slcanBitrate)
	w := slcan.NewTXWriter(ctx, sp, txQueueSize)
	wg.Add(1)
	go runSLCANRx(ctx, sp, rd, l, wg)
	cleanup := func() {
		_, _ = sp.Write(slcan.CloseSequence())
		_ = sp.Close()
		w.Close()
	}
	return w.SendFrame, cleanup, nil
}

// runSLCANRx drains the adapter and feeds decoded frames to the
// telemetry reader. An EOF is the idle adapter hitting its read
// timeout; real read errors back off exponentially.
func runSLCANRx(ctx context.Context, sp slcan.Port, rd *telemetry.Reader, l *slog.Logger, wg *sync.WaitGroup) {
	defer wg.Done()
	defer l.Info("slcan_rx_end")
	raw := make([]byte, slcanReadBufSize)
	acc := bytes.NewBuffer(nil)
	delay := rxBackoffMin
	for ctx.Err() == nil {
		n, err := sp.Read(raw)
		if n > 0 {
			acc.Write(raw[:n])
			slcan.DecodeStream(acc, func(fr can.Frame) {
				metrics.IncBusRx()
				rd.HandleFrame(fr.ID, fr.Data[:fr.Length])
			})
			if acc.Len() == 0 && cap(acc.Bytes()) > largeBufferReclaimThreshold {
				acc = bytes.NewBuffer(nil)
			}
			delay = rxBackoffMin
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		var perr *os.PathError
		switch {
		case errors.As(err, &perr):
			// The device node went away; nothing to retry against.
			return
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			// Idle adapter, nothing arrived before the timeout.
		default:
			metrics.IncError(metrics.ErrSLCANRead)
			l.Warn("slcan_read_error", "error", err, "backoff", delay)
			sleepFn(delay)
			delay *= 2
			if delay > rxBackoffMax {
				delay = rxBackoffMax
			}
		}
	}
}
