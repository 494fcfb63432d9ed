package stats

/*
This file defines all the metrics being collected. As new metrics are added please follow this pattern.
*/

const (
	/************************* Dispatcher metrics **************************/
	/*
		number of requests handed to the dispatcher
	*/
	DispatcherSubmittedCounter = "submittedCounter"

	/*
		number of requests merged into an already pending coalesced request
	*/
	DispatcherCoalescedCounter = "coalescedCounter"

	/*
		number of coalesced requests created (one pass over the trace each)
	*/
	DispatcherPassesCounter = "passesCounter"

	/*
		number of requests cancelled because they were submitted after shutdown
	*/
	DispatcherRejectedCounter = "rejectedCounter"

	/*
		number of coalesced requests currently held back for coalescing
	*/
	DispatcherHeldGauge = "heldGauge"

	/*
		number of times the background coalescing delay fired
	*/
	DispatcherBackgroundTimerCounter = "backgroundTimerCounter"

	/*
		time from submission to completion of a caller's request
	*/
	DispatcherRequestLatency_ms = "requestLatency_ms"

	/*
		requests completed, by outcome
	*/
	DispatcherCompletedOKCounter        = "completedOKCounter"
	DispatcherCompletedFailedCounter    = "completedFailedCounter"
	DispatcherCompletedCancelledCounter = "completedCancelledCounter"

	/************************* Scheduler metrics **************************/
	/*
		number of workers accepted by the scheduler
	*/
	SchedAcceptedWorkersCounter = "acceptedWorkersCounter"

	/*
		number of slices run, by priority class
	*/
	SchedForegroundSlicesCounter = "foregroundSlicesCounter"
	SchedBackgroundSlicesCounter = "backgroundSlicesCounter"

	/*
		number of times a background worker was requeued while foreground work was waiting
	*/
	SchedPreemptionsCounter = "preemptionsCounter"

	/*
		number of queued workers removed because their request completed while waiting
	*/
	SchedEvictedCounter = "evictedCounter"

	/*
		queue depths, by priority class
	*/
	SchedForegroundQueueGauge = "foregroundQueueGauge"
	SchedBackgroundQueueGauge = "backgroundQueueGauge"

	/*
		time spent running one slice
	*/
	SchedSliceLatency_ms = "sliceLatency_ms"

	/************************* Worker metrics **************************/
	/*
		events read from the source, matching or not
	*/
	WorkerEventsReadCounter = "eventsReadCounter"

	/*
		events delivered to a coalesced request
	*/
	WorkerEventsDeliveredCounter = "eventsDeliveredCounter"

	/*
		number of workers that ended with a source or callback failure
	*/
	WorkerFailedCounter = "failedCounter"
)
