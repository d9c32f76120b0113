package slcan

import (
	"context"
	"errors"

	"go.einride.tech/can"

	"github.com/cartlab/go-dbw-bridge/internal/metrics"
	"github.com/cartlab/go-dbw-bridge/internal/transport"
)

// ErrTxOverflow indicates the async transmit buffer was full.
var ErrTxOverflow = errors.New("slcan tx overflow")

// TXWriter funnels control frames through a single writer goroutine so
// the transmit loop never blocks on a slow adapter.
type TXWriter struct {
	base *transport.AsyncTx
}

// NewTXWriter creates the writer over an open adapter port.
func NewTXWriter(parent context.Context, port Port, buf int) *TXWriter {
	a := transport.NewAsyncTx(parent, buf, func(fr can.Frame) error {
		_, err := port.Write(Encode(fr))
		return err
	}, transport.Hooks{
		OnError: func(error) { metrics.IncError(metrics.ErrSLCANWrite) },
		OnAfter: metrics.IncControlTx,
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSLCANOver)
			return ErrTxOverflow
		},
	})
	return &TXWriter{base: a}
}

// SendFrame enqueues fr for transmission.
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer goroutine.
func (w *TXWriter) Close() { w.base.Close() }
