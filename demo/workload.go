// Package demo drives a dispatcher with a synthetic mix of foreground and
// background requests and exposes it as a command line tool.
package demo

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/tracereq/dispatcher"
	"github.com/twitter/tracereq/event"
	"github.com/twitter/tracereq/request"
)

// Workload describes the requests submitted by Run.
//
// Foreground, Background - number of requests of each priority. Foreground
// requests are submitted together in one batching section.
//
// Block - events asked for by each request.
//
// Span - requests start at a random index in [0, Span).
//
// CancelEvery - every Nth request cancels itself halfway, 0 disables.
type Workload struct {
	Foreground  int
	Background  int
	Block       int64
	Span        int64
	CancelEvery int
	Seed        int64
}

func (w Workload) String() string {
	return fmt.Sprintf("demo.Workload: Foreground: %d, Background: %d, Block: %d, Span: %d, CancelEvery: %d, Seed: %d",
		w.Foreground, w.Background, w.Block, w.Span, w.CancelEvery, w.Seed)
}

// Result tallies the outcomes of a workload.
type Result struct {
	OK        int
	Failed    int
	Cancelled int
	Events    int64
	Passes    int
	// cause of the first failed request
	FirstFailure error
}

func (r Result) String() string {
	return fmt.Sprintf("ok: %d, failed: %d, cancelled: %d, events: %d, passes: %d",
		r.OK, r.Failed, r.Cancelled, r.Events, r.Passes)
}

// Run submits the workload to d and waits for every request to complete.
// If ctx is done first, the outstanding requests are cancelled and ctx's
// error is returned along with the partial result.
func Run(ctx context.Context, d *dispatcher.Dispatcher, w Workload) (Result, error) {
	if w.Block <= 0 {
		w.Block = 1
	}
	if w.Span <= 0 {
		w.Span = 1
	}
	rng := rand.New(rand.NewSource(w.Seed))
	var events int64
	reqs := make([]*request.Request, 0, w.Foreground+w.Background)

	newRequest := func(p request.Priority) *request.Request {
		n := len(reqs) + 1
		selfCancel := w.CancelEvery > 0 && n%w.CancelEvery == 0
		hooks := request.Hooks{
			OnData: func(r *request.Request, e event.Event) error {
				atomic.AddInt64(&events, 1)
				if selfCancel && r.NbRead() >= w.Block/2 {
					r.Cancel()
				}
				return nil
			},
		}
		r := d.NewRequest(
			request.WithPriority(p),
			request.WithBlock(rng.Int63n(w.Span), w.Block),
			request.WithHooks(hooks))
		reqs = append(reqs, r)
		return r
	}

	d.StartSync()
	for i := 0; i < w.Foreground; i++ {
		if err := d.Submit(newRequest(request.Foreground)); err != nil {
			d.EndSync()
			return Result{}, err
		}
	}
	d.EndSync()

	for i := 0; i < w.Background; i++ {
		d.NotifyPendingRequest(true)
		err := d.Submit(newRequest(request.Background))
		d.NotifyPendingRequest(false)
		if err != nil {
			return Result{}, err
		}
	}
	log.WithFields(
		log.Fields{
			"requests": len(reqs),
			"workload": w,
		}).Info("Workload submitted")

	res := Result{}
	passes := make(map[*request.Coalesced]bool)
	for i, r := range reqs {
		if err := d.WaitForCompletion(ctx, r); err != nil && ctx.Err() != nil {
			for _, rest := range reqs[i:] {
				d.Cancel(rest)
			}
			res.Events = atomic.LoadInt64(&events)
			return res, ctx.Err()
		}
		passes[r.Parent()] = true
		switch r.Outcome() {
		case request.OK:
			res.OK++
		case request.Failed:
			res.Failed++
			if res.FirstFailure == nil {
				res.FirstFailure = r.Cause()
			}
		case request.Cancelled:
			res.Cancelled++
		}
	}
	res.Events = atomic.LoadInt64(&events)
	res.Passes = len(passes)
	return res, nil
}
