// Package memory implements an EventSource over events held in memory.
// It backs the demo binary and the tests, and can simulate a slow or
// failing trace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/twitter/tracereq/event"
	"github.com/twitter/tracereq/source"
)

// ErrInjected is the cause of failures produced by Config.FailAtRank.
var ErrInjected = errors.New("injected read failure")

// Config tunes how a Trace behaves when read.
//
// EventsPerSecond - if > 0, reads are rate limited to simulate a slow disk.
//
// FailAtRank - if > 0, reading the event at this rank fails permanently.
//
// TransientArmFailures - the first N ArmCursor calls fail with a temporary error.
type Config struct {
	EventsPerSecond      float64
	FailAtRank           int64
	TransientArmFailures int
}

func (c Config) String() string {
	return fmt.Sprintf("memory.Config: EventsPerSecond: %g, FailAtRank: %d, TransientArmFailures: %d",
		c.EventsPerSecond, c.FailAtRank, c.TransientArmFailures)
}

// Trace is an ordered, immutable list of events. Event i must have rank i.
type Trace struct {
	id      event.TraceID
	events  []event.Event
	config  Config
	limiter *rate.Limiter

	mu          sync.Mutex
	armAttempts int
}

func NewTrace(id event.TraceID, events []event.Event, config Config) *Trace {
	t := &Trace{
		id:     id,
		events: events,
		config: config,
	}
	if config.EventsPerSecond > 0 {
		burst := int(config.EventsPerSecond)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(config.EventsPerSecond), burst)
	}
	return t
}

// Synthetic builds a trace of n events with timestamps start, start+step, ...
func Synthetic(id event.TraceID, n int64, start, step event.Timestamp, config Config) *Trace {
	events := make([]event.Event, n)
	for i := int64(0); i < n; i++ {
		events[i] = &event.Record{RankVal: i, Time: start + event.Timestamp(i)*step, TraceVal: id}
	}
	return NewTrace(id, events, config)
}

// Merge interleaves several traces by timestamp into a single ranked trace.
// Each merged event is a Record whose Payload is the original event.
func Merge(id event.TraceID, config Config, traces ...*Trace) *Trace {
	var all []event.Event
	for _, t := range traces {
		all = append(all, t.events...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp() < all[j].Timestamp() })
	events := make([]event.Event, len(all))
	for i, e := range all {
		events[i] = &event.Record{RankVal: int64(i), Time: e.Timestamp(), TraceVal: e.Trace(), Payload: e}
	}
	return NewTrace(id, events, config)
}

func (t *Trace) ID() event.TraceID { return t.id }
func (t *Trace) Len() int64        { return int64(len(t.events)) }

// TimeRange spans the first and last event, Eternity when empty.
func (t *Trace) TimeRange() event.TimeRange {
	if len(t.events) == 0 {
		return event.Eternity
	}
	return event.NewTimeRange(t.events[0].Timestamp(), t.events[len(t.events)-1].Timestamp())
}

// ArmCursor seeks by rank when window.Index > 0, otherwise to the first
// event at or after window.Range.Start.
func (t *Trace) ArmCursor(ctx context.Context, window source.Window) (source.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.armAttempts++
	attempt := t.armAttempts
	t.mu.Unlock()
	if attempt <= t.config.TransientArmFailures {
		return nil, &source.FailureError{Rank: window.Index, Transient: true, Err: errors.New("trace busy")}
	}

	pos := window.Index
	if pos <= 0 {
		start := window.Range.Start
		pos = int64(sort.Search(len(t.events), func(i int) bool {
			return t.events[i].Timestamp() >= start
		}))
	}
	log.WithFields(
		log.Fields{
			"trace":  t.id,
			"window": window,
			"rank":   pos,
		}).Debug("Cursor armed")
	return &cursor{trace: t, pos: pos}, nil
}

type cursor struct {
	trace  *Trace
	pos    int64
	closed bool
}

func (c *cursor) Rank() int64 { return c.pos }

func (c *cursor) Next(ctx context.Context) (event.Event, error) {
	if c.closed {
		return nil, errors.New("cursor closed")
	}
	if c.pos >= c.trace.Len() {
		return nil, source.ErrEndOfStream
	}
	if c.trace.limiter != nil {
		if err := c.trace.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "waiting for read budget")
		}
	}
	if c.trace.config.FailAtRank > 0 && c.pos == c.trace.config.FailAtRank {
		return nil, &source.FailureError{Rank: c.pos, Err: ErrInjected}
	}
	e := c.trace.events[c.pos]
	c.pos++
	return e, nil
}

func (c *cursor) Close() error {
	c.closed = true
	return nil
}
