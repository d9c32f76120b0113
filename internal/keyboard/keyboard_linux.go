//go:build linux

// Package keyboard reads single key presses from the controlling
// terminal without line buffering, for the operator mode switch.
package keyboard

import (
	"os"

	"golang.org/x/sys/unix"
)

// Raw holds a terminal switched into non-canonical mode.
type Raw struct {
	f     *os.File
	saved unix.Termios
}

// Open switches stdin into non-canonical, non-blocking mode. It fails
// when stdin is not a terminal (e.g. under a service manager), in
// which case the caller runs without the keyboard switch.
func Open() (*Raw, error) {
	f := os.Stdin
	t, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	if err != nil {
		return nil, err
	}
	saved := *t
	t.Lflag &^= unix.ICANON | unix.ECHO
	// VMIN=0 VTIME=0: reads return immediately, with or without a byte.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(int(f.Fd()), unix.TCSETS, t); err != nil {
		return nil, err
	}
	return &Raw{f: f, saved: saved}, nil
}

// ReadKey returns one pending key press, if any.
func (r *Raw) ReadKey() (byte, bool) {
	var buf [1]byte
	n, err := r.f.Read(buf[:])
	if err != nil || n == 0 {
		return 0, false
	}
	return buf[0], true
}

// Close restores the saved terminal state.
func (r *Raw) Close() error {
	return unix.IoctlSetTermios(int(r.f.Fd()), unix.TCSETS, &r.saved)
}
