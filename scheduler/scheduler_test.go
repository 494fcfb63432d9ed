package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/twitter/tracereq/async"
	"github.com/twitter/tracereq/common/stats"
	"github.com/twitter/tracereq/event"
	"github.com/twitter/tracereq/request"
	"github.com/twitter/tracereq/source"
	"github.com/twitter/tracereq/source/memory"
	"github.com/twitter/tracereq/worker"
)

func makeDebugScheduler() (*Scheduler, stats.StatsRegistry) {
	reg := stats.NewFinagleStatsRegistry()
	stat := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return reg })
	return NewScheduler(Config{SliceSize: 100, DebugMode: true}, stat), reg
}

func makeWorker(t *testing.T, ids *request.IDCounter, src source.EventSource, r *request.Request) *worker.RequestWorker {
	c, err := request.NewCoalescedFrom(ids, r)
	assert.Nil(t, err)
	return worker.New(c, src, nil)
}

// steps a debug scheduler until it runs out of work.
func drain(s *Scheduler) int {
	steps := 0
	for s.step() {
		steps++
	}
	return steps
}

func TestForegroundPreemptsBackground(t *testing.T) {
	s, reg := makeDebugScheduler()
	ids := request.NewIDCounter()
	trace := memory.Synthetic("t", 10000, 0, 1, memory.Config{})

	var fg, bg *request.Request
	bgRunningWhenFgCompleted := false
	fg = request.New(ids, request.WithBlock(0, 10), request.WithHooks(request.Hooks{
		OnCompleted: func(r *request.Request) {
			bgRunningWhenFgCompleted = bg.State() == request.Running
		},
	}))
	bg = request.New(ids, request.WithPriority(request.Background), request.WithHooks(request.Hooks{
		OnData: func(r *request.Request, e event.Event) error {
			if r.NbRead() == 1 {
				assert.Nil(t, s.Submit(makeWorker(t, ids, trace, fg)))
			}
			return nil
		},
	}))

	assert.Nil(t, s.Submit(makeWorker(t, ids, trace, bg)))
	assert.True(t, s.step())
	assert.Equal(t, int64(100), bg.NbRead())
	state := s.State()
	assert.Len(t, state.Foreground, 1, spew.Sdump(state))
	assert.Len(t, state.Background, 1, spew.Sdump(state))

	// the foreground worker goes first and completes in one slice
	assert.True(t, s.step())
	assert.Equal(t, request.OK, fg.Outcome())
	assert.True(t, bgRunningWhenFgCompleted)
	assert.Equal(t, int64(100), bg.NbRead())

	assert.Equal(t, 100, drain(s))
	assert.Equal(t, request.OK, bg.Outcome())
	assert.Equal(t, int64(10000), bg.NbRead())

	stats.VerifyStats("preempt", reg, t, map[string]stats.Rule{
		stats.SchedAcceptedWorkersCounter:  {Checker: stats.Int64EqTest, Value: 2},
		stats.SchedForegroundSlicesCounter: {Checker: stats.Int64EqTest, Value: 1},
		stats.SchedBackgroundSlicesCounter: {Checker: stats.Int64EqTest, Value: 101},
		stats.SchedPreemptionsCounter:      {Checker: stats.Int64EqTest, Value: 1},
		stats.SchedForegroundQueueGauge:    {Checker: stats.Int64EqTest, Value: 0},
		stats.SchedBackgroundQueueGauge:    {Checker: stats.Int64EqTest, Value: 0},
	})
}

func expectWorker(ctrl *gomock.Controller, id int64, p request.Priority) (*MockWorker, *async.Future) {
	w := NewMockWorker(ctrl)
	f := async.NewFuture()
	w.EXPECT().ID().Return(id).AnyTimes()
	w.EXPECT().Priority().Return(p).AnyTimes()
	w.EXPECT().Completion().Return(f).AnyTimes()
	w.EXPECT().SliceSize(100).Return(100).AnyTimes()
	w.EXPECT().IsFinished().Return(false).AnyTimes()
	return w, f
}

func TestRoundRobinWithinClass(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	s, _ := makeDebugScheduler()
	a, _ := expectWorker(mockCtrl, 1, request.Background)
	b, _ := expectWorker(mockCtrl, 2, request.Background)

	gomock.InOrder(
		a.EXPECT().Start(),
		a.EXPECT().RunSlice(gomock.Any(), 100).Return(false),
		b.EXPECT().Start(),
		b.EXPECT().RunSlice(gomock.Any(), 100).Return(false),
		a.EXPECT().RunSlice(gomock.Any(), 100).Return(true),
		b.EXPECT().RunSlice(gomock.Any(), 100).Return(false),
		b.EXPECT().RunSlice(gomock.Any(), 100).Return(true),
	)

	assert.Nil(t, s.Submit(a))
	assert.Nil(t, s.Submit(b))
	assert.Equal(t, 5, drain(s))
	assert.Equal(t, QueueState{Running: -1, Foreground: []int64{}, Background: []int64{}}, s.State())
}

func TestCompletedWorkerIsEvicted(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	s, reg := makeDebugScheduler()
	a, fa := expectWorker(mockCtrl, 1, request.Foreground)
	b, _ := expectWorker(mockCtrl, 2, request.Foreground)
	b.EXPECT().Start()
	b.EXPECT().RunSlice(gomock.Any(), 100).Return(true)

	assert.Nil(t, s.Submit(a))
	assert.Nil(t, s.Submit(b))
	assert.Equal(t, []int64{1, 2}, s.State().Foreground)

	// a never starts nor runs
	fa.SetValue(request.ErrCancelled)
	assert.Equal(t, []int64{2}, s.State().Foreground)
	assert.Equal(t, 1, drain(s))

	stats.VerifyStats("evict", reg, t, map[string]stats.Rule{
		stats.SchedEvictedCounter: {Checker: stats.Int64EqTest, Value: 1},
	})
}

func TestCancelledRequestIsNotDispatched(t *testing.T) {
	s, _ := makeDebugScheduler()
	ids := request.NewIDCounter()
	started := false
	r := request.New(ids, request.WithHooks(request.Hooks{
		OnStarted: func(*request.Request) { started = true },
	}))
	assert.Nil(t, s.Submit(makeWorker(t, ids, memory.Synthetic("t", 10, 0, 1, memory.Config{}), r)))
	r.Cancel()
	assert.False(t, s.step())
	assert.False(t, started)
	assert.True(t, r.IsCancelled())
}

func TestShutdownDrainsQueuedWork(t *testing.T) {
	s, _ := makeDebugScheduler()
	ids := request.NewIDCounter()
	trace := memory.Synthetic("t", 250, 0, 1, memory.Config{})
	r := request.New(ids)

	assert.Nil(t, s.Submit(makeWorker(t, ids, trace, r)))
	s.Shutdown()
	s.Shutdown()
	assert.True(t, s.IsShutdown())
	assert.False(t, s.IsTerminated())

	late := request.New(ids)
	err := s.Submit(makeWorker(t, ids, trace, late))
	assert.Equal(t, ErrShutdown, errors.Cause(err))

	assert.Equal(t, 3, drain(s))
	assert.Equal(t, request.OK, r.Outcome())
	assert.True(t, s.IsTerminated())
	assert.Nil(t, s.AwaitTermination(context.Background()))
}

func TestShutdownWithNoWorkTerminates(t *testing.T) {
	s, _ := makeDebugScheduler()
	assert.False(t, s.IsShutdown())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, s.AwaitTermination(ctx))

	s.Shutdown()
	assert.True(t, s.IsTerminated())
}

func TestSchedulerLoop(t *testing.T) {
	s := NewScheduler(Config{SliceSize: 7}, nil)
	ids := request.NewIDCounter()
	trace := memory.Synthetic("t", 1000, 0, 1, memory.Config{})

	var reqs []*request.Request
	for i := 0; i < 4; i++ {
		p := request.Foreground
		if i%2 == 1 {
			p = request.Background
		}
		r := request.New(ids, request.WithPriority(p), request.WithBlock(int64(i*100), 300))
		reqs = append(reqs, r)
		assert.Nil(t, s.Submit(makeWorker(t, ids, trace, r)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range reqs {
		assert.Nil(t, r.WaitForCompletion(ctx))
		assert.Equal(t, int64(300), r.NbRead())
	}

	s.Shutdown()
	assert.Nil(t, s.AwaitTermination(ctx))
}
