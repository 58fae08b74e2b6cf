// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sengine/sekernel/clock"
	"github.com/sengine/sekernel/internal/locker"
	"github.com/sengine/sekernel/internal/logger"
	"github.com/sengine/sekernel/metrics"
	"github.com/sengine/sekernel/tracing"
	"golang.org/x/sync/semaphore"
)

// ThreadState tells whether a worker goroutine is alive for a Thread.
type ThreadState int

const (
	Idle ThreadState = iota
	Active
)

func (s ThreadState) String() string {
	if s == Active {
		return "Active"
	}
	return "Idle"
}

// WaitResult is the outcome of WaitTimeout.
type WaitResult int

const (
	// WaitCompleted means the run reached Idle before the deadline.
	WaitCompleted WaitResult = iota
	// WaitTimedOut means the deadline passed first. The worker keeps running.
	WaitTimedOut
	// WaitNoneQueued means there was nothing to wait for: the thread was
	// never started or its latest run found no job to invoke.
	WaitNoneQueued
)

func (r WaitResult) String() string {
	switch r {
	case WaitCompleted:
		return "Completed"
	case WaitTimedOut:
		return "TimedOut"
	case WaitNoneQueued:
		return "NoneQueued"
	}
	return "Unknown"
}

const invokeSpanName = "workerpool.Invoke"

// Thread executes queued jobs one at a time, in submission order, on a single
// worker goroutine. The worker is spawned by Start and exits once the queue
// is empty or the run is cancelled.
//
// A job returning Continue stays at the head of the queue and is invoked
// again; Finished removes it. Stop only raises the run's
// CancellationObserver, so a job that never polls it keeps the worker alive.
type Thread struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	id           string
	name         string
	clock        clock.Clock
	metricHandle metrics.MetricHandle
	traceHandle  tracing.TraceHandle

	// Bounds the number of live workers across threads. May be nil.
	budget *semaphore.Weighted

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu locker.Locker

	// GUARDED_BY(mu)
	state ThreadState

	// GUARDED_BY(mu)
	queue jobQueue

	// The job being invoked, or kept for re-invocation after Continue. It has
	// already been popped from queue.
	//
	// GUARDED_BY(mu)
	current *queuedJob

	// INVARIANT: busy => current != nil
	//
	// GUARDED_BY(mu)
	busy bool

	// The latest run. nil until the first Start.
	//
	// GUARDED_BY(mu)
	latest *threadRun

	// Set once the worker of the latest run has decided to exit. The thread
	// stays Active until that goroutine has released its budget slot.
	//
	// GUARDED_BY(mu)
	exiting bool

	// Submission index handed to the next queued job.
	//
	// GUARDED_BY(mu)
	nextPosition uint64

	// Panics recovered from jobs, oldest first.
	//
	// GUARDED_BY(mu)
	errs []error
}

// threadRun is one lifetime of a worker goroutine, from Start until the
// queue is drained or the run is cancelled.
type threadRun struct {
	observer *CancellationObserver

	// Closed by the worker goroutine right before it returns.
	done chan struct{}

	// Number of jobs popped for invocation. Written by the worker under the
	// thread lock; final once done is closed.
	jobs uint64
}

// NewThread returns an Idle thread with an empty queue.
func NewThread(opts ...Option) *Thread {
	o := newOptions(opts)
	t := &Thread{
		id:           o.id,
		name:         o.name,
		clock:        o.clock,
		metricHandle: o.metricHandle,
		traceHandle:  o.traceHandle,
		budget:       o.budget,
	}
	t.mu = locker.New("workerpool.Thread."+t.name, t.checkInvariants)
	return t
}

// LOCKS_REQUIRED(t.mu)
func (t *Thread) checkInvariants() {
	// INVARIANT: busy => current != nil
	if t.busy && t.current == nil {
		panic("busy thread without an in-flight job")
	}

	// INVARIANT: state == Idle => !busy && current == nil
	if t.state == Idle && (t.busy || t.current != nil) {
		panic(fmt.Sprintf("idle thread %s still holds a job (busy: %t)", t.name, t.busy))
	}

	// INVARIANT: state == Active => latest != nil
	if t.state == Active && t.latest == nil {
		panic("active thread without a run")
	}

	// INVARIANT: exiting => state == Active && !busy && current == nil
	if t.exiting && (t.state != Active || t.busy || t.current != nil) {
		panic(fmt.Sprintf("exiting worker of thread %s still holds a job", t.name))
	}
}

// ID returns the unique identifier of the thread.
func (t *Thread) ID() string {
	return t.id
}

func (t *Thread) Name() string {
	return t.name
}

////////////////////////////////////////////////////////////////////////
// Control
////////////////////////////////////////////////////////////////////////

// Queue appends jobs in argument order. nil jobs are ignored. Jobs queued on
// an Active thread are picked up by the running worker.
func (t *Thread) Queue(jobs ...Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, j := range jobs {
		if j == nil {
			continue
		}
		t.queue.push(queuedJob{job: j, position: t.nextPosition})
		t.nextPosition++
	}
}

// Start spawns the worker goroutine. It is a no-op on an Active thread whose
// worker is still taking jobs; if that worker is already on its way out,
// Start waits for it to exit and spawns a new one. The error wraps
// ErrWorkerBudgetExhausted when the worker budget is full.
func (t *Thread) Start() error {
	for {
		t.mu.Lock()
		if t.state == Active && t.exiting {
			done := t.latest.done
			t.mu.Unlock()
			<-done
			continue
		}

		err := t.startLocked()
		t.mu.Unlock()
		return err
	}
}

// LOCKS_REQUIRED(t.mu)
func (t *Thread) startLocked() error {
	if t.state == Active {
		return nil
	}

	if t.budget != nil && !t.budget.TryAcquire(1) {
		return fmt.Errorf("start thread %s: %w", t.name, ErrWorkerBudgetExhausted)
	}

	r := &threadRun{
		observer: &CancellationObserver{},
		done:     make(chan struct{}),
	}
	t.state = Active
	t.latest = r
	t.metricHandle.ActiveWorkers(1)
	logger.Debugf("Thread %s (%s): starting with %d queued jobs", t.name, t.id, t.queue.len())

	go t.run(r)
	return nil
}

// Stop asks the current run to end. It never blocks; use Wait to join the
// worker.
func (t *Thread) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Active {
		t.latest.observer.Cancel()
	}
}

// Clear drops every pending job. On an Active thread it also cancels the run;
// the in-flight invocation still ends only when the job returns.
func (t *Thread) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := t.queue.clear(); n > 0 {
		t.metricHandle.JobsDrainedCount(int64(n))
	}
	if t.state == Active {
		t.latest.observer.Cancel()
	}
}

// Wait blocks until the latest run has ended and its worker goroutine has
// exited. It returns false when the thread was never started.
func (t *Thread) Wait() bool {
	r := t.latestRun()
	if r == nil {
		return false
	}
	<-r.done
	return true
}

// WaitTimeout is Wait bounded by d, measured on the thread's clock. On
// WaitTimedOut the worker keeps running.
func (t *Thread) WaitTimeout(d time.Duration) WaitResult {
	r := t.latestRun()
	if r == nil {
		return WaitNoneQueued
	}

	select {
	case <-r.done:
		return r.result()
	default:
	}

	select {
	case <-r.done:
		return r.result()
	case <-t.clock.After(d):
		return WaitTimedOut
	}
}

func (t *Thread) latestRun() *threadRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.latest
}

// REQUIRES: r.done is closed
func (r *threadRun) result() WaitResult {
	if r.jobs == 0 {
		return WaitNoneQueued
	}
	return WaitCompleted
}

// Close stops the thread and joins its worker.
func (t *Thread) Close() {
	t.Stop()
	t.Wait()
}

////////////////////////////////////////////////////////////////////////
// Introspection
////////////////////////////////////////////////////////////////////////

// Count returns the number of jobs not yet finished, the in-flight one
// included.
func (t *Thread) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.queue.len()
	if t.current != nil {
		n++
	}
	return n
}

// Busy reports whether the worker is inside a job invocation.
func (t *Thread) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.busy
}

func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Err joins the panics recovered from jobs since the thread was created. It
// is nil when no job panicked.
func (t *Thread) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return errors.Join(t.errs...)
}

////////////////////////////////////////////////////////////////////////
// Worker
////////////////////////////////////////////////////////////////////////

func (t *Thread) run(r *threadRun) {
	returned := false
	defer func() {
		if !returned {
			// A job called runtime.Goexit.
			t.mu.Lock()
			t.busy = false
			t.current = nil
			t.drainLocked()
			t.exiting = true
			t.mu.Unlock()
		}
		t.exit(r)
	}()

	for {
		qj, ok := t.next(r)
		if !ok {
			returned = true
			return
		}

		result, err := t.invoke(qj, r.observer)
		t.complete(r.observer, result, err)
	}
}

// next returns the job to invoke, or false once the run is over. The thread
// is exiting when it returns false.
func (t *Thread) next(r *threadRun) (queuedJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.observer.Cancelled() {
		t.drainLocked()
		t.exiting = true
		return queuedJob{}, false
	}

	if t.current == nil {
		qj, ok := t.queue.pop()
		if !ok {
			t.exiting = true
			return queuedJob{}, false
		}
		t.current = &qj
		r.jobs++
	}

	t.busy = true
	return *t.current, true
}

// invoke runs the job outside the lock. A panic is converted into a
// *JobPanicError and the job is reported Finished.
func (t *Thread) invoke(qj queuedJob, obs *CancellationObserver) (result Result, err error) {
	ctx, span := t.traceHandle.StartSpan(context.Background(), invokeSpanName)
	defer t.traceHandle.EndSpan(span)
	t.traceHandle.SetJobAttributes(span, t.id, t.name, qj.position)

	start := t.clock.Now()
	defer func() {
		t.metricHandle.JobInvocationLatency(ctx, t.clock.Now().Sub(start))

		if r := recover(); r != nil {
			perr := &JobPanicError{
				ThreadID:   t.id,
				ThreadName: t.name,
				Position:   qj.position,
				Value:      r,
				Stack:      debug.Stack(),
			}
			logger.Errorf("%v\n%s", perr, perr.Stack)
			t.traceHandle.RecordError(span, perr)
			result, err = Finished, perr
		}
	}()

	return qj.job.Invoke(obs), nil
}

func (t *Thread) complete(obs *CancellationObserver, result Result, err error) {
	var outcome string
	switch {
	case err != nil:
		outcome = metrics.OutcomePanic
	case result == Continue && obs.Cancelled():
		outcome = metrics.OutcomeCancelled
	case result == Continue:
		outcome = metrics.OutcomeContinue
	default:
		outcome = metrics.OutcomeFinished
	}
	t.metricHandle.JobInvocationCount(1, outcome)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.busy = false
	if err != nil {
		t.errs = append(t.errs, err)
	}
	if outcome != metrics.OutcomeContinue {
		t.current = nil
	}
}

// LOCKS_REQUIRED(t.mu)
func (t *Thread) drainLocked() {
	n := t.queue.clear()
	if t.current != nil {
		t.current = nil
		n++
	}
	if n > 0 {
		t.metricHandle.JobsDrainedCount(int64(n))
		logger.Debugf("Thread %s (%s): dropped %d jobs after cancellation", t.name, t.id, n)
	}
}

// exit gives the budget slot back, then marks the thread Idle and publishes
// the end of the run. Nothing runs on the goroutine after done is closed.
func (t *Thread) exit(r *threadRun) {
	if t.budget != nil {
		t.budget.Release(1)
	}
	t.metricHandle.ActiveWorkers(-1)

	t.mu.Lock()
	t.state = Idle
	t.exiting = false
	logger.Debugf("Thread %s (%s): idle after %d jobs", t.name, t.id, r.jobs)
	t.mu.Unlock()

	close(r.done)
}
