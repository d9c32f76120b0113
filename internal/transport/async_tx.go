package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.einride.tech/can"
)

// ErrAsyncTxClosed is what SendFrame returns once Close has run. The
// control loop treats it as its stop signal.
var ErrAsyncTxClosed = errors.New("async tx closed")

// Hooks give each backend its own bookkeeping around the shared queue
// plumbing.
type Hooks struct {
	// OnDrop runs when the queue is full; SendFrame returns its result.
	// Nil means overflow is silent.
	OnDrop func() error
	// OnError runs when the underlying send fails. The frame is gone;
	// the next control tick supersedes it anyway.
	OnError func(error)
	// OnAfter runs after each successful send.
	OnAfter func()
}

// AsyncTx funnels control frames through one writer goroutine so the
// periodic transmit loop never blocks on a wedged adapter. Enqueue is
// non-blocking: a full queue invokes OnDrop instead of stalling, which
// is the right trade for frames that are superseded a hundred times a
// second.
type AsyncTx struct {
	q      chan can.Frame
	send   func(can.Frame) error
	hooks  Hooks
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex // serializes enqueue against Close
	closed atomic.Bool
}

// NewAsyncTx starts the writer goroutine with a queue of size buf.
func NewAsyncTx(parent context.Context, buf int, send func(can.Frame) error, hooks Hooks) *AsyncTx {
	ctx, cancel := context.WithCancel(parent)
	t := &AsyncTx{
		q:      make(chan can.Frame, buf),
		send:   send,
		hooks:  hooks,
		ctx:    ctx,
		cancel: cancel,
	}
	t.wg.Add(1)
	go t.run()
	return t
}

func (t *AsyncTx) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case f, ok := <-t.q:
			if !ok {
				return
			}
			err := t.send(f)
			switch {
			case err != nil && t.hooks.OnError != nil:
				t.hooks.OnError(err)
			case err == nil && t.hooks.OnAfter != nil:
				t.hooks.OnAfter()
			}
		}
	}
}

// SendFrame enqueues f without blocking. On overflow it returns
// whatever OnDrop decides.
func (t *AsyncTx) SendFrame(f can.Frame) error {
	// Cheap first check keeps the steady state off the lock once shut
	// down.
	if t.closed.Load() {
		return ErrAsyncTxClosed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case t.q <- f:
		return nil
	default:
	}
	if t.hooks.OnDrop != nil {
		return t.hooks.OnDrop()
	}
	return nil
}

// Close stops the writer and waits for it. The closed flag flips
// before the queue is closed, and SendFrame re-checks it under the
// enqueue lock, so no send can race the close.
func (t *AsyncTx) Close() {
	if t.closed.Swap(true) {
		return
	}
	t.cancel()
	t.mu.Lock()
	close(t.q)
	t.mu.Unlock()
	t.wg.Wait()
}
