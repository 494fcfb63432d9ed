// Package request models asynchronous requests for trace events: their
// filters, their lifecycle and the coalescing of compatible requests into a
// single pass over the trace.
package request

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/tracereq/async"
	"github.com/twitter/tracereq/event"
)

// Priority classes. Foreground work always runs before background work.
type Priority int

const (
	Foreground Priority = iota
	Background
)

func (p Priority) String() string {
	switch p {
	case Foreground:
		return "FOREGROUND"
	case Background:
		return "BACKGROUND"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

type State int

const (
	Pending State = iota
	Running
	Completed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is None until the request completes.
type Outcome int

const (
	None Outcome = iota
	OK
	Failed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case None:
		return "NONE"
	case OK:
		return "OK"
	case Failed:
		return "FAILED"
	case Cancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

var (
	// The value a cancelled request's completion resolves to.
	ErrCancelled = errors.New("request cancelled")
	// Returned when a request cannot be merged into a coalesced request.
	ErrIncompatibleMerge = errors.New("incompatible merge")
	// Returned when a request already belongs to a coalesced request.
	ErrAlreadyCoalesced = errors.New("request already coalesced")
	// Returned when a completed request is offered for coalescing.
	ErrAlreadyCompleted = errors.New("request already completed")
	// Recorded when Fail is called without a cause.
	ErrUnknownFailure = errors.New("request failed")
)

// Hooks are the caller supplied callbacks of a request. Every field is optional.
//
// OnData is invoked once per delivered event; returning an error fails this
// request only. On completion the outcome hook (OnSuccess, OnFailure or
// OnCancel) runs first, then OnCompleted, each exactly once.
// Hooks run without any request lock held and may call back into the request.
type Hooks struct {
	OnStarted   func(r *Request)
	OnData      func(r *Request, e event.Event) error
	OnSuccess   func(r *Request)
	OnFailure   func(r *Request, cause error)
	OnCancel    func(r *Request)
	OnCompleted func(r *Request)
}

// IDCounter hands out request ids. Each dispatcher owns one so ids are unique
// within it without any process global state.
type IDCounter struct {
	next int64
}

func NewIDCounter() *IDCounter {
	return &IDCounter{}
}

func (c *IDCounter) Next() int64 {
	return atomic.AddInt64(&c.next, 1) - 1
}

// Reset restarts numbering at 0. Tests only.
func (c *IDCounter) Reset() {
	atomic.StoreInt64(&c.next, 0)
}

// Request is a request for a window of events.
// Create with New; the zero value is not usable.
type Request struct {
	id         int64
	dataType   EventTypeFilter
	traces     TraceFilter
	priority   Priority
	dependency int
	hooks      Hooks

	mu        sync.Mutex
	index     BlockFilter
	rng       RangeFilter
	blockSize int
	state     State
	outcome   Outcome
	cause     error
	nbRead    int64
	parent    *Coalesced

	started   *async.Future
	completed *async.Future
}

// Option customizes a request at construction.
type Option func(r *Request)

// WithBlock requests nbRequested events starting at rank index.
// Negative values are normalized as NewBlockFilter does.
func WithBlock(index, nbRequested int64) Option {
	return func(r *Request) { r.index = NewBlockFilter(index, nbRequested) }
}

func WithRange(tr event.TimeRange) Option {
	return func(r *Request) { r.rng = NewRangeFilter(tr) }
}

func WithPriority(p Priority) Option {
	return func(r *Request) { r.priority = p }
}

// WithDataType restricts delivery to events assignable to t.
func WithDataType(t reflect.Type) Option {
	return func(r *Request) { r.dataType = NewEventTypeFilter(t) }
}

// WithBlockSize sets how many events are read per scheduling slice, 0 means the scheduler default.
func WithBlockSize(n int) Option {
	return func(r *Request) {
		if n < 0 {
			n = 0
		}
		r.blockSize = n
	}
}

// WithDependency sets the dependency level; only requests at the same level coalesce.
func WithDependency(level int) Option {
	return func(r *Request) { r.dependency = level }
}

func WithTraces(traces ...event.TraceID) Option {
	return func(r *Request) { r.traces = NewTraceFilter(traces...) }
}

func WithHooks(h Hooks) Option {
	return func(r *Request) { r.hooks = h }
}

// New creates a pending request. Defaults: every event type, every rank,
// eternity, foreground priority and the scheduler's default block size.
func New(ids *IDCounter, opts ...Option) *Request {
	r := &Request{
		id:        ids.Next(),
		dataType:  AnyEventType,
		traces:    AnyTrace,
		priority:  Foreground,
		index:     AllEvents,
		rng:       AllTime,
		started:   async.NewFuture(),
		completed: async.NewFuture(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Request) ID() int64                   { return r.id }
func (r *Request) DataType() reflect.Type      { return r.dataType.Type() }
func (r *Request) Priority() Priority          { return r.priority }
func (r *Request) Dependency() int             { return r.dependency }
func (r *Request) TraceFilter() TraceFilter    { return r.traces }
func (r *Request) TypeFilter() EventTypeFilter { return r.dataType }

func (r *Request) BlockFilter() BlockFilter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

func (r *Request) RangeFilter() RangeFilter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng
}

func (r *Request) Index() int64           { return r.BlockFilter().Start() }
func (r *Request) NbRequested() int64     { return r.BlockFilter().NbRequested() }
func (r *Request) Range() event.TimeRange { return r.RangeFilter().Range() }

func (r *Request) BlockSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blockSize
}

func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Request) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// Cause is the failure cause, nil unless the request failed.
func (r *Request) Cause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cause
}

func (r *Request) NbRead() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nbRead
}

// Parent is the coalesced request this request was merged into, if any.
func (r *Request) Parent() *Coalesced {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parent
}

func (r *Request) IsRunning() bool   { return r.State() == Running }
func (r *Request) IsCompleted() bool { return r.State() == Completed }
func (r *Request) IsFailed() bool    { return r.Outcome() == Failed }
func (r *Request) IsCancelled() bool { return r.Outcome() == Cancelled }

// Completion resolves when the request completes: nil on success,
// the failure cause, or ErrCancelled.
func (r *Request) Completion() *async.Future {
	return r.completed
}

// WaitForStart blocks until the request has started or completed, or ctx is done.
func (r *Request) WaitForStart(ctx context.Context) error {
	return r.started.Wait(ctx)
}

// WaitForCompletion blocks until the request completes or ctx is done.
// It returns the completion value, or the context error.
func (r *Request) WaitForCompletion(ctx context.Context) error {
	return r.completed.Wait(ctx)
}

// Matches applies every filter of the request to e.
func (r *Request) Matches(e event.Event) bool {
	if e == nil || !r.dataType.Matches(e) || !r.traces.Matches(e) {
		return false
	}
	r.mu.Lock()
	index, rng := r.index, r.rng
	r.mu.Unlock()
	return index.Matches(e) && rng.Matches(e)
}

// Start moves a pending request to running. A no-op in any other state.
func (r *Request) Start() {
	r.mu.Lock()
	if r.state != Pending {
		r.mu.Unlock()
		return
	}
	r.state = Running
	r.mu.Unlock()

	log.WithFields(
		log.Fields{
			"requestID": r.id,
			"priority":  r.priority,
		}).Debug("Request started")
	if r.hooks.OnStarted != nil {
		r.hooks.OnStarted(r)
	}
	r.started.SetValue(nil)
}

// HandleData delivers one event to a running request. Events offered in any
// other state are dropped. An error or panic from OnData fails this request.
func (r *Request) HandleData(e event.Event) {
	r.mu.Lock()
	if r.state != Running {
		r.mu.Unlock()
		return
	}
	r.nbRead++
	r.mu.Unlock()

	if r.hooks.OnData == nil {
		return
	}
	if err := r.deliver(e); err != nil {
		r.Fail(errors.Wrapf(err, "request %d failed handling event at rank %d", r.id, e.Rank()))
	}
}

func (r *Request) deliver(e event.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic in data callback: %v", p)
		}
	}()
	return r.hooks.OnData(r, e)
}

// Done completes the request successfully. A no-op once completed.
func (r *Request) Done() {
	r.complete(OK, nil)
}

// Fail completes the request with the given cause. A no-op once completed.
func (r *Request) Fail(cause error) {
	if cause == nil {
		cause = ErrUnknownFailure
	}
	r.complete(Failed, cause)
}

// Cancel completes the request as cancelled. A no-op once completed.
func (r *Request) Cancel() {
	r.complete(Cancelled, nil)
}

// Performs the single terminal transition, then runs hooks, resolves the
// completion and notifies the parent, in that order, with no lock held.
func (r *Request) complete(outcome Outcome, cause error) bool {
	r.mu.Lock()
	if r.state == Completed {
		r.mu.Unlock()
		return false
	}
	r.state = Completed
	r.outcome = outcome
	r.cause = cause
	parent := r.parent
	nbRead := r.nbRead
	r.mu.Unlock()

	fields := log.Fields{
		"requestID": r.id,
		"priority":  r.priority,
		"outcome":   outcome,
		"nbRead":    nbRead,
	}
	if cause != nil {
		fields["cause"] = cause
	}
	log.WithFields(fields).Debug("Request completed")

	switch outcome {
	case OK:
		if r.hooks.OnSuccess != nil {
			r.hooks.OnSuccess(r)
		}
	case Failed:
		if r.hooks.OnFailure != nil {
			r.hooks.OnFailure(r, cause)
		}
	case Cancelled:
		if r.hooks.OnCancel != nil {
			r.hooks.OnCancel(r)
		}
	}
	if r.hooks.OnCompleted != nil {
		r.hooks.OnCompleted(r)
	}

	// a request that never ran must not leave WaitForStart hanging
	r.started.SetValue(nil)
	switch outcome {
	case Failed:
		r.completed.SetValue(cause)
	case Cancelled:
		r.completed.SetValue(ErrCancelled)
	default:
		r.completed.SetValue(nil)
	}

	if parent != nil {
		parent.childCompleted(r)
	}
	return true
}

// Equal compares data type, priority, block filter and range filter. Ids are ignored.
func (r *Request) Equal(o *Request) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil {
		return false
	}
	return r.dataType.Equal(o.dataType) &&
		r.priority == o.priority &&
		r.BlockFilter().Equal(o.BlockFilter()) &&
		r.RangeFilter().Equal(o.RangeFilter())
}

// Hash is consistent with Equal.
func (r *Request) Hash() uint64 {
	return hashOf(r.dataType.Hash(), int(r.priority), r.BlockFilter().Hash(), r.RangeFilter().Hash())
}

func (r *Request) String() string {
	return fmt.Sprintf("[Request(%d,%s,%s,%s,%d,%s)]",
		r.id, event.TypeName(r.DataType()), r.priority, r.Range(), r.Index(), nbString(r.NbRequested()))
}

func nbString(n int64) string {
	if n == All {
		return "ALL"
	}
	return fmt.Sprintf("%d", n)
}
