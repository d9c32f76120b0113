//go:build !linux

// Package keyboard reads single key presses from the controlling
// terminal without line buffering. Only implemented on Linux.
package keyboard

import "errors"

// Raw is unavailable on this platform.
type Raw struct{}

// Open always fails off Linux.
func Open() (*Raw, error) { return nil, errors.New("keyboard: raw terminal input requires linux") }

// ReadKey never yields a key.
func (r *Raw) ReadKey() (byte, bool) { return 0, false }

// Close is a no-op.
func (r *Raw) Close() error { return nil }
