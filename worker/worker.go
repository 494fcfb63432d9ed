// Package worker pumps events from an EventSource into a coalesced request,
// a bounded slice at a time, so that a scheduler can interleave many passes
// over the trace.
package worker

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/tracereq/async"
	"github.com/twitter/tracereq/common/stats"
	"github.com/twitter/tracereq/request"
	"github.com/twitter/tracereq/source"
)

// RequestWorker is bound to one coalesced request for its whole life.
// It is not safe for concurrent use: the scheduler runs at most one slice
// of a worker at a time.
type RequestWorker struct {
	req    *request.Coalesced
	src    source.EventSource
	stat   stats.StatsReceiver
	cursor source.Cursor
	closed bool
}

func New(req *request.Coalesced, src source.EventSource, stat stats.StatsReceiver) *RequestWorker {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &RequestWorker{
		req:  req,
		src:  src,
		stat: stat,
	}
}

func (w *RequestWorker) ID() int64                   { return w.req.ID() }
func (w *RequestWorker) Request() *request.Coalesced { return w.req }
func (w *RequestWorker) Priority() request.Priority  { return w.req.Priority() }
func (w *RequestWorker) Completion() *async.Future   { return w.req.Completion() }
func (w *RequestWorker) IsFinished() bool            { return w.req.IsCompleted() }

// Start starts the underlying request. Called by the scheduler at first dispatch.
func (w *RequestWorker) Start() {
	w.req.Start()
}

// SliceSize is the request's block size when set, else def.
func (w *RequestWorker) SliceSize(def int) int {
	if bs := w.req.BlockSize(); bs > 0 {
		return bs
	}
	return def
}

// RunSlice reads at most max events and reports whether the worker is finished.
//
// The request is completed when the source is exhausted, when an event past
// the end of its time range or of its index window is read, or once it has
// read all it asked for.
// Source failures and panics fail it. A request completed by someone else,
// typically a cancellation, is noticed before each event.
func (w *RequestWorker) RunSlice(ctx context.Context, max int) (finished bool) {
	defer func() {
		if p := recover(); p != nil {
			w.finish(errors.Errorf("panic while reading events for request %d: %v", w.req.ID(), p))
			finished = true
		}
	}()

	if !w.req.IsRunning() {
		w.close()
		return w.req.IsCompleted()
	}
	if w.cursor == nil {
		window := source.Window{Index: w.req.Index(), Range: w.req.Range()}
		c, err := w.src.ArmCursor(ctx, window)
		if err != nil {
			w.finish(errors.Wrapf(err, "arming cursor for request %d", w.req.ID()))
			return true
		}
		w.cursor = c
	}

	end := w.req.Range().End
	last := w.req.BlockFilter().End()
	nbRequested := w.req.NbRequested()
	for i := 0; i < max; i++ {
		if !w.req.IsRunning() {
			w.close()
			return true
		}
		e, err := w.cursor.Next(ctx)
		if errors.Cause(err) == source.ErrEndOfStream {
			w.finish(nil)
			return true
		} else if err != nil {
			if ctx.Err() != nil {
				log.WithFields(
					log.Fields{
						"requestID": w.req.ID(),
						"err":       ctx.Err(),
					}).Info("Slice interrupted, cancelling request")
				w.req.Cancel()
				w.close()
				return true
			}
			w.finish(err)
			return true
		}
		w.stat.Counter(stats.WorkerEventsReadCounter).Inc(1)
		if e.Timestamp() > end || e.Rank() >= last {
			w.finish(nil)
			return true
		}
		if w.req.Matches(e) {
			w.stat.Counter(stats.WorkerEventsDeliveredCounter).Inc(1)
			w.req.HandleData(e)
		}
		if w.req.NbRead() >= nbRequested {
			w.finish(nil)
			return true
		}
	}

	if !w.req.IsRunning() {
		w.close()
		return true
	}
	return false
}

// Completes the request, nil meaning success, and releases the cursor.
func (w *RequestWorker) finish(err error) {
	w.close()
	if err == nil {
		w.req.Done()
		return
	}
	w.stat.Counter(stats.WorkerFailedCounter).Inc(1)
	log.WithFields(
		log.Fields{
			"requestID": w.req.ID(),
			"err":       err,
		}).Error("Request worker failed")
	w.req.Fail(err)
}

func (w *RequestWorker) close() {
	if w.closed {
		return
	}
	w.closed = true
	if w.cursor != nil {
		if err := w.cursor.Close(); err != nil {
			log.WithFields(
				log.Fields{
					"requestID": w.req.ID(),
					"err":       err,
				}).Info("Failed to close cursor")
		}
	}
}

func (w *RequestWorker) String() string {
	return fmt.Sprintf("RequestWorker%s", w.req)
}
