package request

import (
	"fmt"
	"hash/fnv"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/twitter/tracereq/event"
)

// All is the sentinel for "no upper bound" in block filters and request sizes.
const All int64 = math.MaxInt64

// A Filter decides whether an event belongs to a request.
// Filters are immutable values and never modify the events they inspect.
type Filter interface {
	Matches(e event.Event) bool
	String() string
}

// saturating addition, anything reaching All stays All.
func addSat(a, b int64) int64 {
	if a == All || b == All || a > All-b {
		return All
	}
	return a + b
}

func hashOf(parts ...interface{}) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		fmt.Fprint(h, p, "|")
	}
	return h.Sum64()
}

// BlockFilter selects events by rank: start <= rank < end.
type BlockFilter struct {
	start int64
	end   int64
}

// AllEvents accepts every rank.
var AllEvents = NewBlockFilter(0, All)

// NewBlockFilter normalizes a negative start to 0 and a negative count to All.
func NewBlockFilter(start, nbRequested int64) BlockFilter {
	if start < 0 {
		start = 0
	}
	if nbRequested < 0 {
		nbRequested = All
	}
	return BlockFilter{start: start, end: addSat(start, nbRequested)}
}

func (f BlockFilter) Start() int64 { return f.start }

// End is exclusive, All when the filter is unbounded.
func (f BlockFilter) End() int64 { return f.end }

func (f BlockFilter) NbRequested() int64 {
	if f.end == All {
		return All
	}
	return f.end - f.start
}

func (f BlockFilter) Matches(e event.Event) bool {
	r := e.Rank()
	return f.start <= r && r < f.end
}

// Union spans both filters, saturating at All.
func (f BlockFilter) Union(o BlockFilter) BlockFilter {
	u := f
	if o.start < u.start {
		u.start = o.start
	}
	if o.end > u.end {
		u.end = o.end
	}
	return u
}

func (f BlockFilter) Equal(o BlockFilter) bool { return f == o }
func (f BlockFilter) Hash() uint64             { return hashOf("block", f.start, f.end) }

func (f BlockFilter) String() string {
	if f.end == All {
		return fmt.Sprintf("BlockFilter[%d, ALL]", f.start)
	}
	return fmt.Sprintf("BlockFilter[%d, %d]", f.start, f.end)
}

// RangeFilter selects events whose timestamp is inside an inclusive time range.
type RangeFilter struct {
	r event.TimeRange
}

// AllTime accepts every timestamp.
var AllTime = NewRangeFilter(event.Eternity)

func NewRangeFilter(r event.TimeRange) RangeFilter {
	return RangeFilter{r: event.NewTimeRange(r.Start, r.End)}
}

func (f RangeFilter) Range() event.TimeRange { return f.r }

func (f RangeFilter) Matches(e event.Event) bool {
	return f.r.Contains(e.Timestamp())
}

func (f RangeFilter) Equal(o RangeFilter) bool { return f.r == o.r }
func (f RangeFilter) Hash() uint64             { return hashOf("range", f.r.Start, f.r.End) }
func (f RangeFilter) String() string           { return "RangeFilter" + f.r.String() }

// EventTypeFilter selects events assignable to a data type.
type EventTypeFilter struct {
	t reflect.Type
}

// AnyEventType accepts every Event.
var AnyEventType = NewEventTypeFilter(event.AnyType)

// NewEventTypeFilter treats a nil type as event.AnyType.
func NewEventTypeFilter(t reflect.Type) EventTypeFilter {
	if t == nil {
		t = event.AnyType
	}
	return EventTypeFilter{t: t}
}

func (f EventTypeFilter) Type() reflect.Type { return f.t }

func (f EventTypeFilter) Matches(e event.Event) bool {
	if e == nil {
		return false
	}
	return reflect.TypeOf(e).AssignableTo(f.t)
}

func (f EventTypeFilter) Equal(o EventTypeFilter) bool { return f.t == o.t }
func (f EventTypeFilter) Hash() uint64                 { return hashOf("type", f.t.String()) }
func (f EventTypeFilter) String() string {
	return fmt.Sprintf("EventTypeFilter[%s]", event.TypeName(f.t))
}

// TraceFilter selects events coming from a set of traces. An empty set accepts any trace.
type TraceFilter struct {
	traces []event.TraceID
}

// AnyTrace accepts events from every trace.
var AnyTrace = NewTraceFilter()

// NewTraceFilter keeps a sorted, de-duplicated copy of traces.
func NewTraceFilter(traces ...event.TraceID) TraceFilter {
	set := make(map[event.TraceID]bool, len(traces))
	sorted := make([]event.TraceID, 0, len(traces))
	for _, t := range traces {
		if !set[t] {
			set[t] = true
			sorted = append(sorted, t)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return TraceFilter{traces: sorted}
}

func (f TraceFilter) Traces() []event.TraceID {
	return append([]event.TraceID(nil), f.traces...)
}

func (f TraceFilter) Matches(e event.Event) bool {
	if len(f.traces) == 0 {
		return true
	}
	id := e.Trace()
	i := sort.Search(len(f.traces), func(i int) bool { return f.traces[i] >= id })
	return i < len(f.traces) && f.traces[i] == id
}

func (f TraceFilter) Equal(o TraceFilter) bool {
	if len(f.traces) != len(o.traces) {
		return false
	}
	for i := range f.traces {
		if f.traces[i] != o.traces[i] {
			return false
		}
	}
	return true
}

func (f TraceFilter) Hash() uint64 { return hashOf("trace", f.String()) }

func (f TraceFilter) String() string {
	if len(f.traces) == 0 {
		return "TraceFilter[*]"
	}
	names := make([]string, len(f.traces))
	for i, t := range f.traces {
		names[i] = string(t)
	}
	return "TraceFilter[" + strings.Join(names, ",") + "]"
}
