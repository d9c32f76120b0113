// Package control runs the periodic transmit loop that keeps the cart
// commanded.
package control

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cartlab/go-dbw-bridge/internal/command"
	"github.com/cartlab/go-dbw-bridge/internal/g30"
	"github.com/cartlab/go-dbw-bridge/internal/transport"
)

// Loop transmits one control frame per tick. The cart expects a steady
// stream; a stalled heartbeat latches its failsafe.
type Loop struct {
	arb       *command.Arbiter
	send      transport.Sink
	period    time.Duration
	heartbeat uint8
	log       *slog.Logger
}

// New creates a Loop transmitting at rateHz.
func New(arb *command.Arbiter, send transport.Sink, rateHz int, log *slog.Logger) *Loop {
	if rateHz <= 0 {
		rateHz = 100
	}
	return &Loop{
		arb:    arb,
		send:   send,
		period: time.Second / time.Duration(rateHz),
		log:    log,
	}
}

// Run ticks until ctx is cancelled or the transmitter closes under it.
func (l *Loop) Run(ctx context.Context) {
	t := time.NewTicker(l.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !l.tick() {
				l.log.Info("control_tx_closed")
				return
			}
		}
	}
}

// tick assembles and transmits one control frame, reporting false once
// the transmitter has been closed. The heartbeat advances before
// encoding so consecutive frames always differ.
func (l *Loop) tick() bool {
	s := l.arb.Select()
	l.heartbeat++
	fr := g30.EncodeControl(g30.Command{
		Mode:        l.arb.Mode(),
		Shift:       s.Shift,
		VelocityX10: s.VelocityX10,
		SteeringX10: s.SteeringX10,
		Brake:       s.Brake,
		Heartbeat:   l.heartbeat,
	})
	if err := l.send(fr); err != nil {
		if errors.Is(err, transport.ErrAsyncTxClosed) {
			return false
		}
		// Overflow and write errors are already counted by the backend
		// writer hooks; the next tick replaces the frame anyway.
		l.log.Debug("control_tx_error", "error", err)
	}
	return true
}
