package teleop

import (
	"errors"

	"github.com/cartlab/go-dbw-bridge/internal/metrics"
)

// Sentinel error kinds, matched with errors.Is for supervision and
// metric labels.
var (
	ErrListen    = errors.New("teleop: listen failed")
	ErrAuth      = errors.New("teleop: authentication rejected")
	ErrUpgrade   = errors.New("teleop: websocket upgrade failed")
	ErrConnRead  = errors.New("teleop: connection read failed")
	ErrConnWrite = errors.New("teleop: connection write failed")
)

// mapErrToMetric folds an error chain onto a bounded metric label.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return metrics.ErrWSAuth
	case errors.Is(err, ErrUpgrade):
		return metrics.ErrWSUpgrade
	case errors.Is(err, ErrConnWrite):
		return metrics.ErrWSWrite
	default:
		return metrics.ErrWSRead
	}
}
