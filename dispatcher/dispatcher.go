// Package dispatcher is the entry point for callers: it merges compatible
// requests into coalesced passes, decides when those passes are handed to
// the scheduler, and exposes cancellation and completion waiting.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/tracereq/common"
	"github.com/twitter/tracereq/common/stats"
	"github.com/twitter/tracereq/request"
	"github.com/twitter/tracereq/scheduler"
	"github.com/twitter/tracereq/source"
	"github.com/twitter/tracereq/worker"
)

// How long background requests are held for coalescing after the latest background submission.
const DefaultBackgroundDelay = time.Second

// ErrAlreadySubmitted is returned when a request is submitted twice.
var ErrAlreadySubmitted = errors.New("request already submitted")

// Scheduler is the part of scheduler.Scheduler the dispatcher uses.
type Scheduler interface {
	Submit(w scheduler.Worker) error
	Shutdown()
}

// Dispatcher configuration.
//
// BackgroundDelay - how long background requests wait for compatible
// requests to coalesce with. Defaults to DefaultBackgroundDelay.
//
// DisableBackgroundDelay - queue background requests right away.
//
// ContiguityTolerance - the index gap allowed between coalesced requests.
// Values <= 0 select request.DefaultContiguityTolerance.
//
// Clock - drives the background delay. Defaults to the wall clock.
type Config struct {
	BackgroundDelay        time.Duration
	DisableBackgroundDelay bool
	ContiguityTolerance    int64
	Clock                  clock.Clock
}

func (c Config) String() string {
	return fmt.Sprintf("dispatcher.Config: BackgroundDelay: %s, DisableBackgroundDelay: %t, ContiguityTolerance: %d",
		c.BackgroundDelay, c.DisableBackgroundDelay, c.ContiguityTolerance)
}

// Dispatcher owns the request ids, the coalesced requests held back for
// coalescing, and the coalesced requests queued but not started yet, which
// can still absorb compatible requests.
type Dispatcher struct {
	id     string
	config Config
	src    source.EventSource
	sched  Scheduler
	stat   stats.StatsReceiver
	ids    *request.IDCounter

	mu             sync.Mutex
	held           []*request.Coalesced
	queued         []*request.Coalesced
	syncDepth      int
	pendingCounter int
	bgTimer        clock.Timer
	shutdown       bool
}

func NewDispatcher(config Config, src source.EventSource, sched Scheduler, stat stats.StatsReceiver) *Dispatcher {
	if config.BackgroundDelay <= 0 {
		config.BackgroundDelay = DefaultBackgroundDelay
	}
	if config.ContiguityTolerance <= 0 {
		config.ContiguityTolerance = request.DefaultContiguityTolerance
	}
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	d := &Dispatcher{
		id:     common.GenUUID(),
		config: config,
		src:    src,
		sched:  sched,
		stat:   stat,
		ids:    request.NewIDCounter(),
	}
	log.WithFields(
		log.Fields{
			"dispatcher": common.ShortID(d.id),
			"config":     config,
		}).Info("Created dispatcher")
	return d
}

// IDs is the counter requests submitted to this dispatcher should be created with.
func (d *Dispatcher) IDs() *request.IDCounter {
	return d.ids
}

// NewRequest is a shorthand for request.New(d.IDs(), opts...).
func (d *Dispatcher) NewRequest(opts ...request.Option) *request.Request {
	return request.New(d.ids, opts...)
}

// Submit hands r over for execution. It is merged into a compatible pending
// coalesced request when there is one, otherwise a new pass is created.
// A request submitted after Shutdown is cancelled.
func (d *Dispatcher) Submit(r *request.Request) error {
	if r.Parent() != nil {
		return errors.Wrapf(ErrAlreadySubmitted, "request %d", r.ID())
	}
	d.stat.Counter(stats.DispatcherSubmittedCounter).Inc(1)

	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		d.stat.Counter(stats.DispatcherRejectedCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"dispatcher": common.ShortID(d.id),
				"requestID":  r.ID(),
			}).Info("Dispatcher is shut down, cancelling request")
		r.Cancel()
		return errors.Wrapf(scheduler.ErrShutdown, "request %d", r.ID())
	}

	c, merged, err := d.coalesce(r)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.track(r)

	var toQueue []*request.Coalesced
	if !merged {
		if d.shouldHold(r.Priority()) {
			d.held = append(d.held, c)
		} else {
			toQueue = d.markQueued(c)
		}
	}
	if r.Priority() == request.Background && !d.config.DisableBackgroundDelay && d.isHeld(c) {
		d.resetTimer()
	}
	d.updateGauges()
	d.mu.Unlock()

	log.WithFields(
		log.Fields{
			"dispatcher":  common.ShortID(d.id),
			"requestID":   r.ID(),
			"coalescedID": c.ID(),
			"merged":      merged,
			"priority":    r.Priority(),
		}).Debug("Request submitted")
	d.queue(toQueue)
	return nil
}

// Finds a pending compatible coalesced request for r, or creates one. Must hold d.mu.
func (d *Dispatcher) coalesce(r *request.Request) (*request.Coalesced, bool, error) {
	d.held = pending(d.held)
	d.queued = pending(d.queued)
	for _, candidates := range [][]*request.Coalesced{d.held, d.queued} {
		for _, c := range candidates {
			if !c.IsCompatible(r) {
				continue
			}
			// the candidate may have started meanwhile, in which case keep looking
			if err := c.AddRequest(r); err == nil {
				d.stat.Counter(stats.DispatcherCoalescedCounter).Inc(1)
				return c, true, nil
			} else if errors.Cause(err) != request.ErrIncompatibleMerge {
				return nil, false, err
			}
		}
	}

	c, err := request.NewCoalescedFrom(d.ids, r)
	if err != nil {
		return nil, false, err
	}
	c.Tolerance = d.config.ContiguityTolerance
	d.stat.Counter(stats.DispatcherPassesCounter).Inc(1)
	return c, false, nil
}

// Drops coalesced requests that are no longer pending.
func pending(cs []*request.Coalesced) []*request.Coalesced {
	kept := cs[:0]
	for _, c := range cs {
		if c.State() == request.Pending {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(cs); i++ {
		cs[i] = nil
	}
	return kept
}

// Records end to end latency and outcome of a caller's request.
func (d *Dispatcher) track(r *request.Request) {
	latency := d.stat.Precision(time.Millisecond).Latency(stats.DispatcherRequestLatency_ms).Time()
	r.Completion().Subscribe(func(error) {
		latency.Stop()
		switch r.Outcome() {
		case request.OK:
			d.stat.Counter(stats.DispatcherCompletedOKCounter).Inc(1)
		case request.Failed:
			d.stat.Counter(stats.DispatcherCompletedFailedCounter).Inc(1)
		case request.Cancelled:
			d.stat.Counter(stats.DispatcherCompletedCancelledCounter).Inc(1)
		}
	})
}

// Must hold d.mu.
func (d *Dispatcher) shouldHold(p request.Priority) bool {
	if d.syncDepth > 0 || d.pendingCounter > 0 {
		return true
	}
	return p == request.Background && !d.config.DisableBackgroundDelay
}

// Must hold d.mu.
func (d *Dispatcher) isHeld(c *request.Coalesced) bool {
	for _, h := range d.held {
		if h == c {
			return true
		}
	}
	return false
}

// Must hold d.mu.
func (d *Dispatcher) markQueued(cs ...*request.Coalesced) []*request.Coalesced {
	d.queued = append(d.queued, cs...)
	return cs
}

// Hands coalesced requests to the scheduler. Must not hold d.mu since a
// rejected request is cancelled, which runs caller hooks.
func (d *Dispatcher) queue(cs []*request.Coalesced) {
	for _, c := range cs {
		w := worker.New(c, d.src, d.stat.Scope("worker"))
		if err := d.sched.Submit(w); err != nil {
			log.WithFields(
				log.Fields{
					"dispatcher":  common.ShortID(d.id),
					"coalescedID": c.ID(),
					"err":         err,
				}).Info("Scheduler rejected request, cancelling")
			d.stat.Counter(stats.DispatcherRejectedCounter).Inc(1)
			c.Cancel()
			continue
		}
		log.WithFields(
			log.Fields{
				"dispatcher":  common.ShortID(d.id),
				"coalescedID": c.ID(),
				"subRequests": c.SubRequestIDs(),
				"priority":    c.Priority(),
			}).Debug("Queued coalesced request")
	}
}

// Releases the held requests of the selected classes. Nothing is released
// while pending requests are announced. Must hold d.mu.
func (d *Dispatcher) release(foreground, background bool) []*request.Coalesced {
	if d.pendingCounter > 0 {
		return nil
	}
	d.held = pending(d.held)
	var out []*request.Coalesced
	kept := make([]*request.Coalesced, 0, len(d.held))
	for _, c := range d.held {
		fg := c.Priority() == request.Foreground
		if (fg && foreground) || (!fg && background) {
			out = append(out, c)
		} else {
			kept = append(kept, c)
		}
	}
	d.held = kept
	d.updateGauges()
	return d.markQueued(out...)
}

// Must hold d.mu.
func (d *Dispatcher) resetTimer() {
	if d.bgTimer != nil {
		d.bgTimer.Stop()
	}
	d.bgTimer = d.config.Clock.AfterFunc(d.config.BackgroundDelay, d.onBackgroundTimer)
}

// Releases background requests, and foreground ones unless a batching section is open.
func (d *Dispatcher) onBackgroundTimer() {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return
	}
	d.stat.Counter(stats.DispatcherBackgroundTimerCounter).Inc(1)
	toQueue := d.release(d.syncDepth == 0, true)
	d.mu.Unlock()
	d.queue(toQueue)
}

// Must hold d.mu.
func (d *Dispatcher) updateGauges() {
	d.stat.Gauge(stats.DispatcherHeldGauge).Update(int64(len(d.held)))
}

// StartSync opens a batching section: until the matching EndSync, every
// request is held so that requests submitted together coalesce. Sections nest.
func (d *Dispatcher) StartSync() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncDepth++
}

// EndSync closes a batching section. Leaving the outermost one releases the
// held foreground requests. Held background requests wait for their delay,
// unless it is disabled.
func (d *Dispatcher) EndSync() {
	d.mu.Lock()
	if d.syncDepth > 0 {
		d.syncDepth--
	}
	var toQueue []*request.Coalesced
	if d.syncDepth == 0 && !d.shutdown {
		toQueue = d.release(true, d.config.DisableBackgroundDelay)
	}
	d.mu.Unlock()
	d.queue(toQueue)
}

// NotifyPendingRequest announces (increment) or retracts a request that is
// about to be submitted. Nothing is released while announcements are
// outstanding. When the last one is retracted the held background requests
// are released, and the foreground ones too unless a batching section is open.
func (d *Dispatcher) NotifyPendingRequest(increment bool) {
	d.mu.Lock()
	var toQueue []*request.Coalesced
	if increment {
		d.pendingCounter++
	} else {
		if d.pendingCounter > 0 {
			d.pendingCounter--
		}
		if d.pendingCounter == 0 && !d.shutdown {
			toQueue = d.release(d.syncDepth == 0, true)
		}
	}
	d.mu.Unlock()
	d.queue(toQueue)
}

// Cancel cancels r. Its coalesced request keeps serving its other
// sub-requests and is cancelled only once all of them are.
func (d *Dispatcher) Cancel(r *request.Request) {
	log.WithFields(
		log.Fields{
			"dispatcher": common.ShortID(d.id),
			"requestID":  r.ID(),
		}).Debug("Cancelling request")
	r.Cancel()
}

// WaitForCompletion blocks until r completes or ctx is done. It returns nil
// on success, the failure cause, request.ErrCancelled, or the context error.
func (d *Dispatcher) WaitForCompletion(ctx context.Context, r *request.Request) error {
	return r.WaitForCompletion(ctx)
}

// Shutdown cancels held requests and shuts the scheduler down. Requests
// already queued run to completion. Safe to call more than once.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return
	}
	d.shutdown = true
	if d.bgTimer != nil {
		d.bgTimer.Stop()
	}
	held := d.held
	d.held = nil
	d.updateGauges()
	d.mu.Unlock()

	log.WithFields(
		log.Fields{
			"dispatcher": common.ShortID(d.id),
			"held":       len(held),
		}).Info("Shutting down dispatcher")
	for _, c := range held {
		c.Cancel()
	}
	d.sched.Shutdown()
}

func (d *Dispatcher) IsShutdown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown
}
