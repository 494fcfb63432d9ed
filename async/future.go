// Package async provides a one-shot completion value that can be awaited,
// polled or subscribed to.
package async

import (
	"context"
	"sync"
)

// Future is an async value that will eventually hold an error (nil on success).
// It is similar to a Promise which resolves to an error.
// The value is supplied by calling SetValue; only the first call has any effect.
// Once the value is supplied the Future is considered completed and its
// value can be retrieved via TryGetValue or Wait.
type Future struct {
	mu        sync.Mutex
	doneCh    chan struct{}
	val       error
	completed bool
	callbacks []func(error)
}

func NewFuture() *Future {
	return &Future{
		doneCh: make(chan struct{}),
	}
}

// Sets the value of the Future and marks it completed, then runs subscribed
// callbacks synchronously on the calling goroutine in subscription order.
// Returns false, leaving the Future untouched, if it was already completed.
func (f *Future) SetValue(err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.val = err
	f.completed = true
	cbs := f.callbacks
	f.callbacks = nil
	close(f.doneCh)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(err)
	}
	return true
}

// Returns the status of this Future: Completed(true) or Pending(false),
// and its value if it is completed. A pending Future returns a nil error.
func (f *Future) TryGetValue() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed, f.val
}

// Done is closed once the value is set.
func (f *Future) Done() <-chan struct{} {
	return f.doneCh
}

// Wait blocks until the Future completes or ctx is done, whichever comes first.
// The context error is returned in the latter case.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.doneCh:
		_, err := f.TryGetValue()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers cb to run with the value once the Future completes.
// If the Future is already completed cb runs immediately on the caller's goroutine.
func (f *Future) Subscribe(cb func(error)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	val := f.val
	f.mu.Unlock()
	cb(val)
}
