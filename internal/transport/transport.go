// Package transport owns the asynchronous write path between the
// control loop and whichever bus adapter the backend opened.
package transport

import "go.einride.tech/can"

// Sink is the frame transmission function a CAN backend exposes to the
// transmit loop.
type Sink = func(can.Frame) error

// FrameSink is anything that accepts a frame for transmission.
type FrameSink interface {
	SendFrame(can.Frame) error
}

var _ FrameSink = (*AsyncTx)(nil)
