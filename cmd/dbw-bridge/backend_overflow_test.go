package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cartlab/go-dbw-bridge/internal/command"
	"github.com/cartlab/go-dbw-bridge/internal/g30"
	"github.com/cartlab/go-dbw-bridge/internal/metrics"
	"github.com/cartlab/go-dbw-bridge/internal/slcan"
	"github.com/cartlab/go-dbw-bridge/internal/telemetry"
)

// stuckPort lets the adapter setup sequence through, then parks every
// write on a channel so the TX queue fills behind the worker.
type stuckPort struct {
	park  chan struct{}
	setup atomic.Bool
}

func (p *stuckPort) Read(b []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, io.EOF
}

func (p *stuckPort) Write(b []byte) (int, error) {
	if p.setup.CompareAndSwap(false, true) {
		return len(b), nil
	}
	<-p.park
	return len(b), nil
}

func (p *stuckPort) Close() error { return nil }

func TestSLCANBackendTxOverflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	port := &stuckPort{park: make(chan struct{})}
	openSerialPort = func(string, int, time.Duration) (slcan.Port, error) { return port, nil }
	defer func() { openSerialPort = slcan.OpenPort }()
	beforeErrs := metrics.Snap().Errors

	arb := command.NewArbiter(2.4, g30.ModeDrive)
	rd := telemetry.NewReader(arb, nil, testLogger())
	cfg := &appConfig{backend: "slcan", serialDev: "fake", baud: 115200, serialReadTO: 10 * time.Millisecond, slcanBitrate: 6}
	var wg sync.WaitGroup
	send, cleanup, err := initSLCANBackend(ctx, cfg, rd, testLogger(), &wg)
	if err != nil {
		t.Fatalf("initSLCANBackend: %v", err)
	}

	// The worker takes one frame and parks inside Write; the queue
	// holds txQueueSize more. Everything past that must overflow.
	var overflows int
	var firstOther error
	for i := 0; i < txQueueSize+8; i++ {
		fr := g30.EncodeControl(g30.Command{Mode: g30.ModeDrive, Heartbeat: uint8(i % 256)})
		switch err := send(fr); {
		case err == nil:
		case errors.Is(err, slcan.ErrTxOverflow):
			overflows++
		default:
			if firstOther == nil {
				firstOther = err
			}
		}
	}
	if firstOther != nil {
		t.Fatalf("unexpected send error: %v", firstOther)
	}
	if overflows == 0 {
		t.Fatal("queue never overflowed")
	}
	if got := int(metrics.Snap().Errors - beforeErrs); got != overflows {
		t.Fatalf("error metric moved by %d, want %d", got, overflows)
	}

	// Unpark the writer so cleanup's close sequence can go out.
	close(port.park)
	cancel()
	cleanup()
	wg.Wait()
}
