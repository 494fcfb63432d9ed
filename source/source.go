//go:generate mockgen -source=source.go -package=source -destination=source_mock.go

// Package source defines the narrow interface through which requests read
// events from a trace, plus wrappers shared by every implementation.
package source

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/twitter/tracereq/event"
)

// ErrEndOfStream is returned by Cursor.Next once no more events are available.
// It is not a failure.
var ErrEndOfStream = errors.New("end of event stream")

// Window is where a cursor should start reading.
// An Index > 0 seeks by rank, otherwise the cursor seeks to the first
// event at or after Range.Start.
type Window struct {
	Index int64
	Range event.TimeRange
}

func (w Window) String() string {
	return fmt.Sprintf("Window{Index: %d, Range: %s}", w.Index, w.Range)
}

// EventSource produces events for requests.
type EventSource interface {
	// ArmCursor positions a new cursor at the start of window.
	ArmCursor(ctx context.Context, window Window) (Cursor, error)
}

// Cursor reads events in non-decreasing rank order.
type Cursor interface {
	// Next blocks until the next event is available. It returns
	// ErrEndOfStream when the trace is exhausted.
	Next(ctx context.Context) (event.Event, error)
	// Rank of the event Next will return.
	Rank() int64
	Close() error
}

// FailureError is a source failure at a given rank.
// Temporary failures may be retried by the caller.
type FailureError struct {
	Rank      int64
	Transient bool
	Err       error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("source failure at rank %d: %v", e.Rank, e.Err)
}

func (e *FailureError) Cause() error    { return e.Err }
func (e *FailureError) Temporary() bool { return e.Transient }

type temporary interface {
	Temporary() bool
}

// IsTemporary reports whether err, or its cause, is marked temporary.
func IsTemporary(err error) bool {
	if t, ok := err.(temporary); ok && t.Temporary() {
		return true
	}
	if t, ok := errors.Cause(err).(temporary); ok {
		return t.Temporary()
	}
	return false
}
