package request

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/tracereq/event"
)

// DefaultContiguityTolerance is how far apart, in ranks, two index windows may
// be and still be served by one pass.
const DefaultContiguityTolerance int64 = 1

// Coalesced is a request that serves several compatible child requests with a
// single pass over the trace. Its filters are the union of its children's.
//
// Completion flows both ways: completing the coalesced request drives every
// unfinished child to the same outcome, and the coalesced request completes
// by itself once every child has completed.
type Coalesced struct {
	*Request

	// Tolerance is the contiguity tolerance used by IsCompatible.
	Tolerance int64

	cmu      sync.Mutex
	children []*Request
	closing  bool
}

// NewCoalesced creates an empty coalesced request seeded with its own window and priority.
func NewCoalesced(ids *IDCounter, opts ...Option) *Coalesced {
	return &Coalesced{
		Request:   New(ids, opts...),
		Tolerance: DefaultContiguityTolerance,
	}
}

// NewCoalescedFrom creates a coalesced request with the filters of r and r as its first child.
func NewCoalescedFrom(ids *IDCounter, r *Request) (*Coalesced, error) {
	bf, rf := r.BlockFilter(), r.RangeFilter()
	c := NewCoalesced(ids,
		WithDataType(r.DataType()),
		WithPriority(r.Priority()),
		WithDependency(r.Dependency()),
		WithBlockSize(r.BlockSize()),
		WithRange(rf.Range()),
		WithBlock(bf.Start(), bf.NbRequested()),
	)
	if err := c.AddRequest(r); err != nil {
		return nil, err
	}
	return c, nil
}

// IsCompatible reports whether other can be served by the same pass: same data
// type, priority and dependency level, overlapping time ranges, and index
// windows that touch within the tolerance.
func (c *Coalesced) IsCompatible(other *Request) bool {
	if other == nil || other == c.Request {
		return false
	}
	if !c.dataType.Equal(other.dataType) ||
		c.priority != other.priority ||
		c.dependency != other.dependency {
		return false
	}

	cr, or := c.Range(), other.Range()
	if !(cr.IsEternity() && or.IsEternity()) && !cr.Intersects(or) {
		return false
	}

	cb, ob := c.BlockFilter(), other.BlockFilter()
	tol := c.Tolerance
	if tol < 0 {
		tol = 0
	}
	return ob.Start() <= addSat(cb.End(), tol) && ob.End() >= cb.Start()-tol
}

// AddRequest merges other into this request. Only a pending coalesced request
// that is not already completing accepts children; the union filters are
// recomputed on every addition.
func (c *Coalesced) AddRequest(other *Request) error {
	if other == nil || other == c.Request {
		return errors.Wrap(ErrIncompatibleMerge, "cannot merge a request into itself")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Pending {
		return errors.Wrapf(ErrIncompatibleMerge, "coalesced request %d is %s", c.id, c.state)
	}

	other.mu.Lock()
	defer other.mu.Unlock()
	if other.parent != nil {
		return errors.Wrapf(ErrAlreadyCoalesced, "request %d belongs to %d", other.id, other.parent.id)
	}
	if other.state == Completed {
		return errors.Wrapf(ErrAlreadyCompleted, "request %d", other.id)
	}

	// closing is set while the state is still pending, the children it saw are final
	c.cmu.Lock()
	if c.closing {
		c.cmu.Unlock()
		return errors.Wrapf(ErrIncompatibleMerge, "coalesced request %d is completing", c.id)
	}
	other.parent = c
	c.children = append(c.children, other)
	c.cmu.Unlock()

	c.index = c.index.Union(other.index)
	c.rng = NewRangeFilter(c.rng.Range().Union(other.rng.Range()))
	if other.blockSize > c.blockSize {
		c.blockSize = other.blockSize
	}

	log.WithFields(
		log.Fields{
			"coalescedID": c.id,
			"requestID":   other.id,
			"index":       c.index.Start(),
			"nbRequested": nbString(c.index.NbRequested()),
		}).Debug("Request coalesced")
	return nil
}

// SubRequests returns the children in insertion order.
func (c *Coalesced) SubRequests() []*Request {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	return append([]*Request(nil), c.children...)
}

// SubRequestIDs returns the children ids in insertion order.
func (c *Coalesced) SubRequestIDs() []int64 {
	children := c.SubRequests()
	ids := make([]int64, len(children))
	for i, child := range children {
		ids[i] = child.id
	}
	return ids
}

// Children are only appended while pending and not closing, the returned slice is never written to.
func (c *Coalesced) snapshot() []*Request {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	return c.children[:len(c.children):len(c.children)]
}

// Start starts the coalesced request and then every child still pending.
func (c *Coalesced) Start() {
	if c.State() != Pending {
		return
	}
	c.Request.Start()
	for _, child := range c.snapshot() {
		child.Start()
	}
}

// HandleData counts the event for the coalesced request and forwards it to
// every running child whose filters match and which still wants events.
// A child that has read all it asked for is completed.
func (c *Coalesced) HandleData(e event.Event) {
	if !c.IsRunning() {
		return
	}
	c.Request.HandleData(e)
	for _, child := range c.snapshot() {
		if !child.IsRunning() || !child.Matches(e) {
			continue
		}
		nb := child.NbRequested()
		if child.NbRead() >= nb {
			continue
		}
		child.HandleData(e)
		if child.NbRead() >= nb {
			child.Done()
		}
	}
}

func (c *Coalesced) Done() {
	c.closeWith(OK, nil)
}

func (c *Coalesced) Fail(cause error) {
	if cause == nil {
		cause = ErrUnknownFailure
	}
	c.closeWith(Failed, cause)
}

func (c *Coalesced) Cancel() {
	c.closeWith(Cancelled, nil)
}

// Drives every unfinished child through the outcome in insertion order, then completes itself.
func (c *Coalesced) closeWith(outcome Outcome, cause error) {
	c.cmu.Lock()
	if c.closing {
		c.cmu.Unlock()
		return
	}
	c.closing = true
	children := c.children[:len(c.children):len(c.children)]
	c.cmu.Unlock()

	for _, child := range children {
		switch outcome {
		case OK:
			child.Done()
		case Failed:
			child.Fail(cause)
		case Cancelled:
			child.Cancel()
		}
	}
	c.complete(outcome, cause)
}

// Called by a child after it completed. Once every child is complete the
// coalesced request completes: cancelled if every child was cancelled,
// failed if any child failed, successful otherwise.
func (c *Coalesced) childCompleted(child *Request) {
	c.cmu.Lock()
	if c.closing {
		c.cmu.Unlock()
		return
	}
	outcome := Cancelled
	var cause error
	for _, ch := range c.children {
		switch ch.Outcome() {
		case None:
			c.cmu.Unlock()
			return
		case Failed:
			if outcome != Failed {
				outcome = Failed
				cause = ch.Cause()
			}
		case OK:
			if outcome == Cancelled {
				outcome = OK
			}
		}
	}
	c.closing = true
	c.cmu.Unlock()

	log.WithFields(
		log.Fields{
			"coalescedID": c.id,
			"lastChildID": child.id,
			"outcome":     outcome,
		}).Debug("All sub-requests completed")
	c.complete(outcome, cause)
}

// Equal compares the merged filters, as Request.Equal does.
func (c *Coalesced) Equal(o *Coalesced) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Request.Equal(o.Request)
}

func (c *Coalesced) String() string {
	ids := make([]string, 0)
	for _, id := range c.SubRequestIDs() {
		ids = append(ids, fmt.Sprintf("%d", id))
	}
	return fmt.Sprintf("[CoalescedRequest(%d,%s,%s,%s,%d,%s,%d,[%s])]",
		c.id, event.TypeName(c.DataType()), c.priority, c.Range(), c.Index(), nbString(c.NbRequested()),
		c.BlockSize(), strings.Join(ids, " "))
}
