//go:build linux

package socketcan

import (
	"context"
	"errors"

	"go.einride.tech/can"

	"github.com/cartlab/go-dbw-bridge/internal/metrics"
	"github.com/cartlab/go-dbw-bridge/internal/transport"
)

// ErrTxOverflow indicates the async transmit buffer was full.
var ErrTxOverflow = errors.New("socketcan tx overflow")

// Dev is the bus surface the backend needs. *Bus implements it; tests
// substitute fakes.
type Dev interface {
	TransmitFrame(context.Context, can.Frame) error
	Receive() (can.Frame, error)
	Close() error
}

// TXWriter funnels control frames through a single writer goroutine so
// the transmit loop never blocks on a congested interface.
type TXWriter struct {
	base *transport.AsyncTx
}

// NewTXWriter creates the writer over an open interface.
func NewTXWriter(parent context.Context, dev Dev, buf int) *TXWriter {
	a := transport.NewAsyncTx(parent, buf, func(fr can.Frame) error {
		return dev.TransmitFrame(parent, fr)
	}, transport.Hooks{
		OnError: func(error) { metrics.IncError(metrics.ErrSocketCANWrite) },
		OnAfter: metrics.IncControlTx,
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSocketCANOver)
			return ErrTxOverflow
		},
	})
	return &TXWriter{base: a}
}

// SendFrame enqueues fr for transmission.
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer goroutine.
func (w *TXWriter) Close() { w.base.Close() }
