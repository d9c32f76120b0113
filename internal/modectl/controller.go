// Package modectl switches the drive mode from operator key presses.
package modectl

import (
	"context"
	"log/slog"
	"time"

	"github.com/cartlab/go-dbw-bridge/internal/command"
	"github.com/cartlab/go-dbw-bridge/internal/g30"
	"github.com/cartlab/go-dbw-bridge/internal/metrics"
)

// KeySource yields single key presses without blocking.
type KeySource interface {
	ReadKey() (byte, bool)
}

// pollInterval paces the key poll; key presses are human-speed.
const pollInterval = 20 * time.Millisecond

// sleepFn indirection for tests.
var sleepFn = time.Sleep

// Controller polls a key source and applies mode switches.
type Controller struct {
	arb  *command.Arbiter
	keys KeySource
	log  *slog.Logger
}

// New creates a Controller over the given key source.
func New(arb *command.Arbiter, keys KeySource, log *slog.Logger) *Controller {
	return &Controller{arb: arb, keys: keys, log: log}
}

// Run polls until ctx is cancelled. Space drops the cart into the
// emergency mode, 's' returns it to drive.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if key, ok := c.keys.ReadKey(); ok {
			c.Apply(key)
		}
		sleepFn(pollInterval)
	}
}

// Apply performs the mode switch for one key press. Keys without a
// binding are ignored.
func (c *Controller) Apply(key byte) {
	var m g30.Mode
	switch key {
	case ' ':
		m = g30.ModeEmergency
	case 's':
		m = g30.ModeDrive
	default:
		return
	}
	if prev := c.arb.SetMode(m); prev != m {
		metrics.IncModeChange()
		c.log.Info("mode_change", "from", prev, "to", m, "source", "keyboard")
	}
}
