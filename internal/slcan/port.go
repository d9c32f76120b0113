package slcan

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port abstracts the serial device behind the adapter (swap in tests).
type Port = io.ReadWriteCloser

// OpenPort opens the serial device of an slcan adapter. The read
// timeout keeps the RX loop responsive to shutdown.
func OpenPort(name string, baud int, readTimeout time.Duration) (Port, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout})
}
