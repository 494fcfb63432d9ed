// Package event defines the minimal view of a trace event that the request
// machinery needs: a rank within the trace, a timestamp and the trace it
// came from. Richer payloads are the concern of whoever produces events.
package event

import (
	"fmt"
	"reflect"
)

// TraceID names the trace an event was read from.
type TraceID string

// Event is the unit delivered to requests.
type Event interface {
	// Position of the event in its trace, starting at 0.
	Rank() int64
	Timestamp() Timestamp
	Trace() TraceID
}

// AnyType is the data type accepted by requests that want every event.
var AnyType = reflect.TypeOf((*Event)(nil)).Elem()

// Record is a plain Event with an optional payload, used by in-memory sources and tests.
type Record struct {
	RankVal  int64
	Time     Timestamp
	TraceVal TraceID
	Payload  interface{}
}

func (r *Record) Rank() int64          { return r.RankVal }
func (r *Record) Timestamp() Timestamp { return r.Time }
func (r *Record) Trace() TraceID       { return r.TraceVal }

func (r *Record) String() string {
	return fmt.Sprintf("Record(%s#%d@%d)", r.TraceVal, r.RankVal, r.Time)
}

// TypeName returns a short name for a data type, used in request renderings.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
