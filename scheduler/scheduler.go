//go:generate mockgen -source=scheduler.go -package=scheduler -destination=scheduler_mock.go

// Package scheduler runs request workers one slice at a time, giving
// foreground work strict priority over background work and sharing each
// class round robin.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/tracereq/async"
	"github.com/twitter/tracereq/common/log/hooks"
	"github.com/twitter/tracereq/common/stats"
	"github.com/twitter/tracereq/request"
)

// Number of events a worker reads per slice when its request has no block size.
const DefaultSliceSize = 100

// ErrShutdown is returned by Submit once Shutdown has been called.
var ErrShutdown = errors.New("scheduler is shut down")

func init() {
	if loglevel := os.Getenv("TRACEREQ_LOGLEVEL"); loglevel != "" {
		level, err := log.ParseLevel(loglevel)
		if err != nil {
			log.Error(err)
			return
		}
		log.SetLevel(level)
		log.AddHook(hooks.NewContextHook())
	}
}

// Worker is a unit of sliceable work, see worker.RequestWorker.
type Worker interface {
	ID() int64
	Priority() request.Priority
	// Called once, right before the first slice.
	Start()
	// Runs at most max steps and reports whether the worker is finished.
	RunSlice(ctx context.Context, max int) bool
	SliceSize(def int) int
	// Resolves when the worker's request completes, however that happens.
	Completion() *async.Future
	IsFinished() bool
}

// Scheduler configuration.
//
// SliceSize - events per slice for workers without their own block size.
//
// DebugMode - if true, starts the scheduler up but does not start
// the loop. Instead the loop must be advanced manually by calling step().
type Config struct {
	SliceSize int
	DebugMode bool
}

func (c Config) String() string {
	return fmt.Sprintf("scheduler.Config: SliceSize: %d, DebugMode: %t", c.SliceSize, c.DebugMode)
}

type entry struct {
	w       Worker
	started bool
}

// Scheduler has a single execution slot. Foreground workers are always
// dispatched before background ones; within a class, a worker that did not
// finish its slice goes to the back of its queue.
type Scheduler struct {
	config Config
	stat   stats.StatsReceiver
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	queues     [2][]*entry
	current    *entry
	shutdown   bool
	terminated bool

	wakeCh       chan struct{}
	termCh       chan struct{}
	shutdownOnce sync.Once
}

// NewScheduler creates a scheduler and, unless config.DebugMode is set, starts its loop.
func NewScheduler(config Config, stat stats.StatsReceiver) *Scheduler {
	if config.SliceSize <= 0 {
		config.SliceSize = DefaultSliceSize
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		config: config,
		stat:   stat,
		ctx:    ctx,
		cancel: cancel,
		wakeCh: make(chan struct{}, 1),
		termCh: make(chan struct{}),
	}

	log.Infof("Creating scheduler with %s", config)
	if !config.DebugMode {
		log.Info("Starting scheduler loop")
		go s.loop()
	}
	return s
}

func classOf(p request.Priority) int {
	if p == request.Foreground {
		return 0
	}
	return 1
}

// Submit queues w at the tail of its priority class.
func (s *Scheduler) Submit(w Worker) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return errors.Wrapf(ErrShutdown, "rejecting worker %d", w.ID())
	}
	e := &entry{w: w}
	class := classOf(w.Priority())
	s.queues[class] = append(s.queues[class], e)
	s.updateGauges()
	s.mu.Unlock()

	s.stat.Counter(stats.SchedAcceptedWorkersCounter).Inc(1)
	log.WithFields(
		log.Fields{
			"workerID": w.ID(),
			"priority": w.Priority(),
		}).Debug("Worker queued")

	// Completed requests leave the queue right away.
	w.Completion().Subscribe(func(error) { s.evict(e) })
	s.wake()
	return nil
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) evict(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	class := classOf(e.w.Priority())
	q := s.queues[class]
	for i := range q {
		if q[i] == e {
			s.queues[class] = append(q[:i:i], q[i+1:]...)
			s.stat.Counter(stats.SchedEvictedCounter).Inc(1)
			log.WithFields(
				log.Fields{
					"workerID": e.w.ID(),
					"priority": e.w.Priority(),
				}).Debug("Evicted completed worker")
			break
		}
	}
	s.updateGauges()
	s.checkTerminated()
}

func (s *Scheduler) loop() {
	for {
		if s.step() {
			continue
		}
		select {
		case <-s.wakeCh:
		case <-s.termCh:
			log.Info("Scheduler loop exiting")
			return
		}
	}
}

// step runs one slice of the next worker and reports whether there was any work.
func (s *Scheduler) step() bool {
	s.mu.Lock()
	e := s.next()
	if e == nil {
		s.checkTerminated()
		s.mu.Unlock()
		return false
	}
	s.current = e
	s.mu.Unlock()

	if !e.started {
		e.started = true
		e.w.Start()
	}

	if classOf(e.w.Priority()) == 0 {
		s.stat.Counter(stats.SchedForegroundSlicesCounter).Inc(1)
	} else {
		s.stat.Counter(stats.SchedBackgroundSlicesCounter).Inc(1)
	}
	sliceLatency := s.stat.Latency(stats.SchedSliceLatency_ms).Time()
	finished := e.w.RunSlice(s.ctx, e.w.SliceSize(s.config.SliceSize))
	sliceLatency.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	if !finished && !e.w.IsFinished() {
		class := classOf(e.w.Priority())
		if class == 1 && len(s.queues[0]) > 0 {
			s.stat.Counter(stats.SchedPreemptionsCounter).Inc(1)
		}
		s.queues[class] = append(s.queues[class], e)
	} else {
		log.WithFields(
			log.Fields{
				"workerID": e.w.ID(),
				"priority": e.w.Priority(),
			}).Debug("Worker finished")
	}
	s.updateGauges()
	s.checkTerminated()
	return true
}

// Pops the head of the foreground queue, else of the background queue. Must hold s.mu.
func (s *Scheduler) next() *entry {
	for class := range s.queues {
		if q := s.queues[class]; len(q) > 0 {
			e := q[0]
			q[0] = nil
			s.queues[class] = q[1:]
			return e
		}
	}
	return nil
}

// Must hold s.mu.
func (s *Scheduler) updateGauges() {
	s.stat.Gauge(stats.SchedForegroundQueueGauge).Update(int64(len(s.queues[0])))
	s.stat.Gauge(stats.SchedBackgroundQueueGauge).Update(int64(len(s.queues[1])))
}

// Must hold s.mu.
func (s *Scheduler) checkTerminated() {
	if !s.shutdown || s.terminated || s.current != nil || len(s.queues[0])+len(s.queues[1]) > 0 {
		return
	}
	s.terminated = true
	s.cancel()
	close(s.termCh)
	log.Info("Scheduler terminated")
}

// Shutdown stops admitting workers. Queued workers still run to completion,
// after which the scheduler is terminated. Safe to call more than once.
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		log.Infof("Shutting down scheduler, remaining work:\n%s", spew.Sdump(s.queueState()))
		s.checkTerminated()
		s.mu.Unlock()
		s.wake()
	})
}

func (s *Scheduler) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Scheduler) IsTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// AwaitTermination blocks until the scheduler terminates or ctx is done.
func (s *Scheduler) AwaitTermination(ctx context.Context) error {
	select {
	case <-s.termCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueState is a point in time view of the scheduler, by worker id.
type QueueState struct {
	Running    int64
	Foreground []int64
	Background []int64
}

// State returns the current queues. Running is -1 when no slice is executing.
func (s *Scheduler) State() QueueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueState()
}

// Must hold s.mu.
func (s *Scheduler) queueState() QueueState {
	qs := QueueState{Running: -1, Foreground: []int64{}, Background: []int64{}}
	if s.current != nil {
		qs.Running = s.current.w.ID()
	}
	for _, e := range s.queues[0] {
		qs.Foreground = append(qs.Foreground, e.w.ID())
	}
	for _, e := range s.queues[1] {
		qs.Background = append(qs.Background, e.w.ID())
	}
	return qs
}
