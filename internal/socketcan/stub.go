//go:build !linux

package socketcan

import "errors"

// ErrTxOverflow mirrors the linux declaration so shared code compiles
// off-target.
var ErrTxOverflow = errors.New("socketcan tx overflow")
