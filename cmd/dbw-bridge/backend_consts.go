package main

import "time"

const (
	txQueueSize      = 256  // two+ seconds of control frames at 100 Hz
	slcanReadBufSize = 4096 // single read() buffer for the slcan backend
	// Once the slcan RX accumulator drains, drop its backing array if a
	// noise burst grew it past this, so junk on the line cannot pin
	// memory for the life of the process.
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond
)
