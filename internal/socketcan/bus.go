//go:build linux

// Package socketcan reaches the cart bus through the kernel CAN stack.
package socketcan

import (
	"context"
	"io"
	"net"

	"go.einride.tech/can"
	einride "go.einride.tech/can/pkg/socketcan"
)

// Bus is an open SocketCAN interface.
type Bus struct {
	conn net.Conn
	tx   *einride.Transmitter
	rx   *einride.Receiver
}

// Dial opens the named interface ("can0", "vcan0").
func Dial(ctx context.Context, iface string) (*Bus, error) {
	conn, err := einride.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, err
	}
	return &Bus{
		conn: conn,
		tx:   einride.NewTransmitter(conn),
		rx:   einride.NewReceiver(conn),
	}, nil
}

// TransmitFrame writes one frame to the bus.
func (b *Bus) TransmitFrame(ctx context.Context, fr can.Frame) error {
	return b.tx.TransmitFrame(ctx, fr)
}

// Receive blocks until the next frame arrives. It returns io.EOF once
// the underlying socket is closed.
func (b *Bus) Receive() (can.Frame, error) {
	if !b.rx.Receive() {
		if err := b.rx.Err(); err != nil {
			return can.Frame{}, err
		}
		return can.Frame{}, io.EOF
	}
	return b.rx.Frame(), nil
}

// Close closes the socket, unblocking any pending Receive.
func (b *Bus) Close() error { return b.conn.Close() }
