package event

import (
	"fmt"
	"math"
)

// Timestamp is a point in trace time, in nanoseconds.
type Timestamp int64

const (
	BigBang   Timestamp = math.MinInt64
	BigCrunch Timestamp = math.MaxInt64
)

// TimeRange is an inclusive interval of trace time.
type TimeRange struct {
	Start Timestamp
	End   Timestamp
}

// Eternity covers every possible timestamp.
var Eternity = TimeRange{Start: BigBang, End: BigCrunch}

// NewTimeRange orders its arguments so that Start <= End.
func NewTimeRange(a, b Timestamp) TimeRange {
	if b < a {
		a, b = b, a
	}
	return TimeRange{Start: a, End: b}
}

func (r TimeRange) IsEternity() bool {
	return r == Eternity
}

// Contains is inclusive on both bounds.
func (r TimeRange) Contains(t Timestamp) bool {
	return r.Start <= t && t <= r.End
}

func (r TimeRange) Intersects(o TimeRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// Union returns the convex hull of both ranges.
func (r TimeRange) Union(o TimeRange) TimeRange {
	u := r
	if o.Start < u.Start {
		u.Start = o.Start
	}
	if o.End > u.End {
		u.End = o.End
	}
	return u
}

func (r TimeRange) String() string {
	if r.IsEternity() {
		return "[Eternity]"
	}
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}
