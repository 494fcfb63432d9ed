package request

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/twitter/tracereq/event"
)

func TestBlockFilterProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("Union matches every rank either filter matches", prop.ForAll(
		func(s1, n1, s2, n2, rank int64) bool {
			a, b := NewBlockFilter(s1, n1), NewBlockFilter(s2, n2)
			u := a.Union(b)
			e := rec(rank, 0)
			if (a.Matches(e) || b.Matches(e)) && !u.Matches(e) {
				return false
			}
			return u.Equal(b.Union(a))
		},
		gen.Int64Range(0, 1000), gen.Int64Range(0, 200),
		gen.Int64Range(0, 1000), gen.Int64Range(0, 200),
		gen.Int64Range(0, 1400)))

	properties.Property("A block filter matches exactly NbRequested ranks", prop.ForAll(
		func(start, n int64) bool {
			f := NewBlockFilter(start, n)
			matched := int64(0)
			for r := start - 5; r < start+n+5; r++ {
				if f.Matches(rec(r, 0)) {
					matched++
				}
			}
			return matched == n && f.NbRequested() == n
		},
		gen.Int64Range(0, 1000), gen.Int64Range(0, 100)))

	properties.Property("Negative counts mean All", prop.ForAll(
		func(start, n int64) bool {
			f := NewBlockFilter(start, -n)
			return f.NbRequested() == All && f.Matches(rec(All-1, 0))
		},
		gen.Int64Range(0, 1000), gen.Int64Range(1, 1000)))

	properties.TestingRun(t)
}

func TestRangeFilterProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("Union contains both ranges", prop.ForAll(
		func(a, b, c, d, ts int64) bool {
			r1 := event.NewTimeRange(event.Timestamp(a), event.Timestamp(b))
			r2 := event.NewTimeRange(event.Timestamp(c), event.Timestamp(d))
			u := r1.Union(r2)
			when := event.Timestamp(ts)
			if (r1.Contains(when) || r2.Contains(when)) && !u.Contains(when) {
				return false
			}
			return r1.Intersects(r2) == r2.Intersects(r1)
		},
		gen.Int64Range(-500, 500), gen.Int64Range(-500, 500),
		gen.Int64Range(-500, 500), gen.Int64Range(-500, 500),
		gen.Int64Range(-600, 600)))

	properties.TestingRun(t)
}

func TestRequestEqualityProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	ids := NewIDCounter()

	properties.Property("Requests with the same filters are equal and hash alike", prop.ForAll(
		func(index, n int64, bg bool) bool {
			p := Foreground
			if bg {
				p = Background
			}
			a := New(ids, WithBlock(index, n), WithPriority(p))
			b := New(ids, WithBlock(index, n), WithPriority(p))
			c := New(ids, WithBlock(index+1, n), WithPriority(p))
			return a.ID() != b.ID() && a.Equal(b) && a.Hash() == b.Hash() && !a.Equal(c)
		},
		gen.Int64Range(0, 10000), gen.Int64Range(1, 10000), gen.Bool()))

	properties.TestingRun(t)
}

func TestCoalescingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)
	ids := NewIDCounter()

	properties.Property("A coalesced request covers the window of every child", prop.ForAll(
		func(i1, n1, i2, n2 int64) bool {
			a := New(ids, WithBlock(i1, n1))
			b := New(ids, WithBlock(i2, n2))
			c, err := NewCoalescedFrom(ids, a)
			if err != nil {
				return false
			}
			if !c.IsCompatible(b) {
				// incompatible windows are more than the tolerance apart
				return i2 > i1+n1+c.Tolerance || i2+n2 < i1-c.Tolerance
			}
			if c.AddRequest(b) != nil {
				return false
			}
			lo, hi := i1, i1+n1
			if i2 < lo {
				lo = i2
			}
			if i2+n2 > hi {
				hi = i2 + n2
			}
			return c.Index() == lo && c.NbRequested() == hi-lo && b.Parent() == c
		},
		gen.Int64Range(0, 500), gen.Int64Range(1, 100),
		gen.Int64Range(0, 500), gen.Int64Range(1, 100)))

	properties.TestingRun(t)
}
