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
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sengine/sekernel/clock"
	"github.com/sengine/sekernel/metrics"
	"github.com/sengine/sekernel/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/semaphore"
)

const (
	eventually = 5 * time.Second
	tick       = time.Millisecond
)

// blockingJob returns a job that signals started when invoked and then
// blocks until release is closed or its run is cancelled.
func blockingJob(started chan<- struct{}, release <-chan struct{}) Job {
	return Once(func(obs *CancellationObserver) {
		close(started)
		for !obs.Cancelled() {
			select {
			case <-release:
				return
			case <-time.After(tick):
			}
		}
	})
}

func adder(counter *atomic.Int64, n int64) Job {
	return Once(func(*CancellationObserver) { counter.Add(n) })
}

func TestThread_SingleJob(t *testing.T) {
	th := NewThread()
	var executed atomic.Bool
	th.Queue(Once(func(*CancellationObserver) { executed.Store(true) }))

	require.NoError(t, th.Start())
	assert.True(t, th.Wait())

	assert.True(t, executed.Load())
	assert.Equal(t, 0, th.Count())
	assert.Equal(t, Idle, th.State())
}

func TestThread_JobsRunOnceInSubmissionOrder(t *testing.T) {
	const n = 50
	th := NewThread()
	var order []int
	invocations := make([]int, n)
	for i := range n {
		th.Queue(Once(func(*CancellationObserver) {
			order = append(order, i)
			invocations[i]++
		}))
	}
	require.Equal(t, n, th.Count())

	require.NoError(t, th.Start())
	th.Wait()

	require.Len(t, order, n)
	for i := range n {
		assert.Equal(t, i, order[i])
		assert.Equal(t, 1, invocations[i])
	}
	assert.Equal(t, 0, th.Count())
}

func TestThread_CounterScenario(t *testing.T) {
	th := NewThread()
	counter := 0
	var results [3]int
	for i, inc := range []int{1, 2, 3} {
		th.Queue(Once(func(*CancellationObserver) {
			counter += inc
			results[i] = inc
		}))
	}

	require.NoError(t, th.Start())
	th.Wait()

	assert.Equal(t, 6, counter)
	assert.Equal(t, [3]int{1, 2, 3}, results)
}

func TestThread_QueueIgnoresNilJobs(t *testing.T) {
	th := NewThread()
	var counter atomic.Int64

	th.Queue(nil, adder(&counter, 1), nil)

	assert.Equal(t, 1, th.Count())
	require.NoError(t, th.Start())
	th.Wait()
	assert.EqualValues(t, 1, counter.Load())
}

func TestThread_ClearBeforeStart(t *testing.T) {
	th := NewThread()
	var counter atomic.Int64
	th.Queue(adder(&counter, 1), adder(&counter, 2), adder(&counter, 3))

	th.Clear()
	require.NoError(t, th.Start())
	assert.True(t, th.Wait())

	assert.EqualValues(t, 0, counter.Load())
	assert.Equal(t, 0, th.Count())
	assert.Equal(t, WaitNoneQueued, th.WaitTimeout(time.Second))
}

func TestThread_JobCancellingItsOwnRun(t *testing.T) {
	th := NewThread()
	var counter atomic.Int64
	th.Queue(Repeat(func(obs *CancellationObserver) {
		if counter.Add(1) == 5 {
			obs.Cancel()
		}
	}))

	require.NoError(t, th.Start())
	th.Wait()

	assert.EqualValues(t, 5, counter.Load())
	assert.Equal(t, 0, th.Count())
}

func TestThread_ContinueUntilFinished(t *testing.T) {
	th := NewThread()
	counter := 0
	var next atomic.Int64
	th.Queue(JobFunc(func(*CancellationObserver) Result {
		counter++
		if counter < 5 {
			return Continue
		}
		return Finished
	}), adder(&next, 1))

	require.NoError(t, th.Start())
	th.Wait()

	assert.Equal(t, 5, counter)
	assert.EqualValues(t, 1, next.Load())
	assert.Equal(t, 0, th.Count())
}

func TestThread_RepeatRunsUntilStop(t *testing.T) {
	th := NewThread()
	var counter atomic.Int64
	th.Queue(Repeat(func(*CancellationObserver) {
		counter.Add(1)
		time.Sleep(tick)
	}))

	require.NoError(t, th.Start())
	require.Eventually(t, func() bool { return counter.Load() >= 3 }, eventually, tick)
	assert.Equal(t, 1, th.Count())
	th.Stop()
	th.Wait()

	stopped := counter.Load()
	assert.False(t, th.Busy())
	assert.Equal(t, 0, th.Count())
	assert.Equal(t, Idle, th.State())
	time.Sleep(5 * tick)
	assert.Equal(t, stopped, counter.Load())
}

func TestThread_StopDropsPendingJobs(t *testing.T) {
	th := NewThread()
	started := make(chan struct{})
	var counter atomic.Int64
	th.Queue(blockingJob(started, nil), adder(&counter, 1), adder(&counter, 1))

	require.NoError(t, th.Start())
	<-started
	th.Stop()
	th.Wait()

	assert.EqualValues(t, 0, counter.Load())
	assert.Equal(t, 0, th.Count())
}

func TestThread_ClearWhileActiveCancelsRun(t *testing.T) {
	th := NewThread()
	started := make(chan struct{})
	var counter atomic.Int64
	th.Queue(blockingJob(started, nil), adder(&counter, 1))

	require.NoError(t, th.Start())
	<-started
	th.Clear()
	assert.Equal(t, 1, th.Count())
	th.Wait()

	assert.EqualValues(t, 0, counter.Load())
	assert.Equal(t, 0, th.Count())
}

func TestThread_BusyTransitions(t *testing.T) {
	th := NewThread()
	started := make(chan struct{})
	release := make(chan struct{})
	th.Queue(blockingJob(started, release))

	assert.False(t, th.Busy())
	require.NoError(t, th.Start())
	<-started
	assert.True(t, th.Busy())
	assert.Equal(t, Active, th.State())
	close(release)
	th.Wait()

	assert.False(t, th.Busy())
}

func TestThread_QueueWhileActive(t *testing.T) {
	th := NewThread()
	started := make(chan struct{})
	release := make(chan struct{})
	var counter atomic.Int64
	th.Queue(blockingJob(started, release))
	require.NoError(t, th.Start())
	<-started

	th.Queue(adder(&counter, 10))
	assert.Equal(t, 2, th.Count())
	close(release)
	th.Wait()

	assert.EqualValues(t, 10, counter.Load())
}

func TestThread_StartIsNoopWhenActive(t *testing.T) {
	th := NewThread()
	started := make(chan struct{})
	release := make(chan struct{})
	var counter atomic.Int64
	th.Queue(blockingJob(started, release), adder(&counter, 1))
	require.NoError(t, th.Start())
	<-started

	assert.NoError(t, th.Start())
	close(release)
	th.Wait()

	assert.EqualValues(t, 1, counter.Load())
}

func TestThread_RestartAfterStop(t *testing.T) {
	th := NewThread()
	th.Queue(Repeat(func(*CancellationObserver) { time.Sleep(tick) }))
	require.NoError(t, th.Start())
	th.Stop()
	th.Wait()

	var counter atomic.Int64
	th.Queue(adder(&counter, 1))
	require.NoError(t, th.Start())
	assert.True(t, th.Wait())

	assert.EqualValues(t, 1, counter.Load())
}

func TestThread_IdleControlCallsAreNoops(t *testing.T) {
	th := NewThread()

	th.Stop()
	th.Clear()

	assert.False(t, th.Wait())
	assert.Equal(t, WaitNoneQueued, th.WaitTimeout(time.Second))
	assert.Equal(t, Idle, th.State())
	assert.NoError(t, th.Err())
}

func TestThread_WaitTimeoutAfterEmptyRun(t *testing.T) {
	th := NewThread()

	require.NoError(t, th.Start())
	assert.True(t, th.Wait())

	assert.Equal(t, WaitNoneQueued, th.WaitTimeout(time.Second))
}

func TestThread_WaitTimeoutCompleted(t *testing.T) {
	th := NewThread()
	var counter atomic.Int64
	th.Queue(adder(&counter, 1))
	require.NoError(t, th.Start())

	assert.Equal(t, WaitCompleted, th.WaitTimeout(eventually))
	assert.EqualValues(t, 1, counter.Load())
}

func TestThread_WaitTimeoutTimesOutOnFakeClock(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	th := NewThread(WithClock(fc))
	started := make(chan struct{})
	release := make(chan struct{})
	th.Queue(blockingJob(started, release))
	require.NoError(t, th.Start())
	<-started

	result := make(chan WaitResult, 1)
	go func() { result <- th.WaitTimeout(time.Second) }()
	require.Eventually(t, func() bool { return fc.WaiterCount() == 1 }, eventually, tick)
	fc.AdvanceTime(time.Second)

	assert.Equal(t, WaitTimedOut, <-result)
	assert.Equal(t, Active, th.State())
	assert.True(t, th.Busy())

	close(release)
	th.Wait()
	assert.Equal(t, WaitCompleted, th.WaitTimeout(time.Second))
}

func TestThread_WaitTimeoutReturnsPromptly(t *testing.T) {
	th := NewThread()
	th.Queue(Repeat(func(*CancellationObserver) { time.Sleep(tick) }))
	require.NoError(t, th.Start())
	defer th.Close()

	begin := time.Now()
	result := th.WaitTimeout(50 * time.Millisecond)

	assert.Equal(t, WaitTimedOut, result)
	assert.Less(t, time.Since(begin), time.Second)
}

func TestThread_PanicIsRecordedAndQueueProceeds(t *testing.T) {
	th := NewThread(WithName("panicky"))
	var counter atomic.Int64
	sentinel := errors.New("job failed")
	th.Queue(
		adder(&counter, 1),
		Once(func(*CancellationObserver) { panic("boom") }),
		Once(func(*CancellationObserver) { panic(sentinel) }),
		adder(&counter, 1),
	)

	require.NoError(t, th.Start())
	th.Wait()

	assert.EqualValues(t, 2, counter.Load())
	assert.Equal(t, 0, th.Count())
	err := th.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	var perr *JobPanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, uint64(1), perr.Position)
	assert.Equal(t, "boom", perr.Value)
	assert.Equal(t, "panicky", perr.ThreadName)
	assert.Equal(t, th.ID(), perr.ThreadID)
	assert.NotEmpty(t, perr.Stack)
	assert.Contains(t, perr.Error(), "panicked: boom")
}

func TestThread_GoexitEndsRun(t *testing.T) {
	th := NewThread()
	var counter atomic.Int64
	th.Queue(Once(func(*CancellationObserver) { runtime.Goexit() }), adder(&counter, 1))

	require.NoError(t, th.Start())
	th.Wait()

	assert.Equal(t, Idle, th.State())
	assert.False(t, th.Busy())
	assert.Equal(t, 0, th.Count())
	assert.EqualValues(t, 0, counter.Load())
}

func TestThread_WorkerBudget(t *testing.T) {
	budget := semaphore.NewWeighted(1)
	first := NewThread(WithWorkerBudget(budget))
	second := NewThread(WithWorkerBudget(budget))
	started := make(chan struct{})
	release := make(chan struct{})
	first.Queue(blockingJob(started, release))
	require.NoError(t, first.Start())
	<-started

	err := second.Start()

	assert.ErrorIs(t, err, ErrWorkerBudgetExhausted)
	assert.Equal(t, Idle, second.State())
	close(release)
	first.Wait()
	require.NoError(t, second.Start())
	second.Wait()
}

func TestThread_RestartWaitsForExitingWorker(t *testing.T) {
	const restarts = 200
	th := NewThread(WithWorkerBudget(semaphore.NewWeighted(1)))
	var counter atomic.Int64

	for i := range restarts {
		prev := th.latestRun()
		th.Queue(adder(&counter, 1))
		require.NoError(t, th.Start(), "restart %d", i)

		if cur := th.latestRun(); prev != nil && cur != prev {
			select {
			case <-prev.done:
			default:
				t.Fatalf("restart %d spawned a worker while the previous one was still alive", i)
			}
		}
	}
	th.Wait()

	assert.EqualValues(t, restarts, counter.Load())
	assert.Equal(t, Idle, th.State())
}

func TestThread_WaitResultBelongsToItsRun(t *testing.T) {
	th := NewThread()
	var counter atomic.Int64
	th.Queue(adder(&counter, 1))
	require.NoError(t, th.Start())
	first := th.latestRun()
	th.Wait()

	// An empty run started afterwards does not rewrite the first one.
	require.NoError(t, th.Start())
	th.Wait()

	assert.Equal(t, WaitCompleted, first.result())
	assert.Equal(t, WaitNoneQueued, th.WaitTimeout(time.Second))
}

func TestThread_Close(t *testing.T) {
	th := NewThread()
	th.Queue(Repeat(func(*CancellationObserver) { time.Sleep(tick) }))
	require.NoError(t, th.Start())

	th.Close()

	assert.Equal(t, Idle, th.State())
	assert.Equal(t, 0, th.Count())
}

func TestNewThread_Names(t *testing.T) {
	named := NewThread(WithName("loader"))
	anonymous := NewThread()

	assert.Equal(t, "loader", named.Name())
	assert.NotEqual(t, named.ID(), anonymous.ID())
	assert.Equal(t, "thread-"+anonymous.ID()[:8], anonymous.Name())
}

func TestThread_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	mh, err := metrics.NewOTelMetrics(ctx, 1, 16)
	require.NoError(t, err)
	th := NewThread(WithMetricHandle(mh))
	var counter atomic.Int64
	th.Queue(adder(&counter, 1), adder(&counter, 1), Once(func(*CancellationObserver) { panic("boom") }))

	require.NoError(t, th.Start())
	th.Wait()
	mh.Close()

	finished := attribute.NewSet(attribute.String("outcome", metrics.OutcomeFinished))
	panicked := attribute.NewSet(attribute.String("outcome", metrics.OutcomePanic))
	metrics.VerifyCounterMetric(t, ctx, reader, "workerpool/job_invocation_count", finished, 2)
	metrics.VerifyCounterMetric(t, ctx, reader, "workerpool/job_invocation_count", panicked, 1)
	metrics.VerifyHistogramMetric(t, ctx, reader, "workerpool/job_invocation_latency", attribute.NewSet(), 3)
}

func TestThread_RecordsSpanPerInvocation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	th := NewThread(WithTraceHandle(tracing.NewOTelTracer()))
	th.Queue(Once(func(*CancellationObserver) {}), Once(func(*CancellationObserver) { panic("boom") }))

	require.NoError(t, th.Start())
	th.Wait()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, invokeSpanName, ended[0].Name())
	assert.Len(t, ended[1].Events(), 1)
}
