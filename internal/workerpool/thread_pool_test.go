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
	"sync/atomic"
	"testing"
	"time"

	"github.com/sengine/sekernel/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/semaphore"
)

type ThreadPoolTest struct {
	suite.Suite
	pool    *ThreadPool
	counter atomic.Int64
}

func TestThreadPoolSuite(t *testing.T) {
	suite.Run(t, new(ThreadPoolTest))
}

func (ts *ThreadPoolTest) SetupTest() {
	ts.pool = NewThreadPool(4)
	ts.counter.Store(0)
}

func (ts *ThreadPoolTest) TearDownTest() {
	ts.pool.Close()
}

func (ts *ThreadPoolTest) TestParallelExecution() {
	ts.pool.Queue(adder(&ts.counter, 1), adder(&ts.counter, 2), adder(&ts.counter, 3))

	ts.Require().NoError(ts.pool.Start())
	ts.True(ts.pool.Wait())

	ts.EqualValues(6, ts.counter.Load())
	ts.Equal(0, ts.pool.Count())
}

func (ts *ThreadPoolTest) TestJobsOfOneCallGoToDistinctWorkers() {
	ts.pool.Queue(adder(&ts.counter, 1), adder(&ts.counter, 1), adder(&ts.counter, 1))

	for i, th := range ts.pool.Threads() {
		if i < 3 {
			ts.Equal(1, th.Count(), "thread %d", i)
		} else {
			ts.Equal(0, th.Count(), "thread %d", i)
		}
	}
}

func (ts *ThreadPoolTest) TestOverflowGoesToLeastLoadedWorker() {
	jobs := make([]Job, 6)
	for i := range jobs {
		jobs[i] = adder(&ts.counter, 1)
	}

	ts.pool.Queue(jobs...)

	var loads []int
	for _, th := range ts.pool.Threads() {
		loads = append(loads, th.Count())
	}
	ts.Equal([]int{2, 2, 1, 1}, loads)
	ts.Equal(6, ts.pool.Count())
}

func (ts *ThreadPoolTest) TestDispatchContinuesFromCursor() {
	ts.pool.Queue(adder(&ts.counter, 1))
	ts.pool.Queue(adder(&ts.counter, 1))

	threads := ts.pool.Threads()
	ts.Equal(1, threads[0].Count())
	ts.Equal(1, threads[1].Count())
}

func (ts *ThreadPoolTest) TestClearJobs() {
	ts.pool.Queue(adder(&ts.counter, 1), adder(&ts.counter, 2), adder(&ts.counter, 3))

	ts.pool.Clear()
	ts.Require().NoError(ts.pool.Start())
	ts.pool.Wait()

	ts.EqualValues(0, ts.counter.Load())
	ts.Equal(0, ts.pool.Count())
	ts.Equal(WaitNoneQueued, ts.pool.WaitTimeout(time.Second))
}

func (ts *ThreadPoolTest) TestStop() {
	for range 2 {
		ts.pool.Queue(Repeat(func(*CancellationObserver) {
			ts.counter.Add(1)
			time.Sleep(tick)
		}))
	}
	ts.Require().NoError(ts.pool.Start())
	ts.Require().Eventually(func() bool { return ts.counter.Load() > 0 }, eventually, tick)

	ts.pool.Stop()
	ts.pool.Wait()

	ts.False(ts.pool.Busy())
	ts.Equal(0, ts.pool.Count())
}

func (ts *ThreadPoolTest) TestWaitTimeoutCompleted() {
	ts.pool.Queue(adder(&ts.counter, 1), adder(&ts.counter, 1))
	ts.Require().NoError(ts.pool.Start())

	ts.Equal(WaitCompleted, ts.pool.WaitTimeout(eventually))
	ts.EqualValues(2, ts.counter.Load())
}

func (ts *ThreadPoolTest) TestWaitTimeoutTimedOutKeepsWorkersRunning() {
	ts.pool.Queue(adder(&ts.counter, 1), Repeat(func(*CancellationObserver) {
		ts.counter.Add(1)
		time.Sleep(tick)
	}))
	ts.Require().NoError(ts.pool.Start())

	ts.Equal(WaitTimedOut, ts.pool.WaitTimeout(20*time.Millisecond))

	ts.Equal(Active, ts.pool.Threads()[1].State())
	seen := ts.counter.Load()
	ts.Eventually(func() bool { return ts.counter.Load() > seen }, eventually, tick)
	ts.pool.Stop()
	ts.True(ts.pool.Wait())
}

func (ts *ThreadPoolTest) TestBusyStatus() {
	started := make(chan struct{})
	release := make(chan struct{})
	ts.pool.Queue(blockingJob(started, release))

	ts.False(ts.pool.Busy())
	ts.Require().NoError(ts.pool.Start())
	<-started
	ts.True(ts.pool.Busy())
	close(release)
	ts.pool.Wait()

	ts.False(ts.pool.Busy())
}

func (ts *ThreadPoolTest) TestPanicsAreJoined() {
	ts.pool.Queue(
		Once(func(*CancellationObserver) { panic("first") }),
		Once(func(*CancellationObserver) { panic("second") }),
		adder(&ts.counter, 1),
	)

	ts.Require().NoError(ts.pool.Start())
	ts.pool.Wait()

	err := ts.pool.Err()
	ts.Require().Error(err)
	ts.Contains(err.Error(), "panicked: first")
	ts.Contains(err.Error(), "panicked: second")
	ts.EqualValues(1, ts.counter.Load())
}

func TestThreadPool_RunsConcurrently(t *testing.T) {
	const jobDuration = 200 * time.Millisecond
	pool := NewThreadPool(3)
	defer pool.Close()
	sleep := Once(func(*CancellationObserver) { time.Sleep(jobDuration) })
	pool.Queue(sleep, sleep, sleep)

	begin := time.Now()
	require.NoError(t, pool.Start())
	pool.Wait()
	elapsed := time.Since(begin)

	assert.GreaterOrEqual(t, elapsed, jobDuration)
	assert.Less(t, elapsed, 2*jobDuration)
}

func TestThreadPool_DefaultSizeIsNumCPU(t *testing.T) {
	pool := NewThreadPool(0)

	assert.Greater(t, pool.Size(), 0)
	assert.Equal(t, "pool-0", pool.Threads()[0].Name())
}

func TestThreadPool_ThreadNamesUsePoolName(t *testing.T) {
	pool := NewThreadPool(2, WithName("io"))

	threads := pool.Threads()
	assert.Equal(t, "io-0", threads[0].Name())
	assert.Equal(t, "io-1", threads[1].Name())
	assert.NotEqual(t, threads[0].ID(), threads[1].ID())
}

func TestThreadPool_NeverStarted(t *testing.T) {
	pool := NewThreadPool(2)

	pool.Stop()

	assert.False(t, pool.Wait())
	assert.Equal(t, WaitNoneQueued, pool.WaitTimeout(time.Second))
	assert.NoError(t, pool.Err())
}

func TestThreadPool_StartReportsExhaustedBudget(t *testing.T) {
	pool := NewThreadPool(3, WithWorkerBudget(semaphore.NewWeighted(2)))
	defer pool.Close()
	started := make(chan struct{})
	release := make(chan struct{})
	otherStarted := make(chan struct{})
	pool.Queue(blockingJob(started, release), blockingJob(otherStarted, release))

	err := pool.Start()

	assert.ErrorIs(t, err, ErrWorkerBudgetExhausted)
	<-started
	<-otherStarted
	close(release)
	pool.Wait()
}

func TestThreadPool_WaitTimeoutSharesDeadlineOnFakeClock(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	pool := NewThreadPool(2, WithClock(fc))
	started := make(chan struct{})
	otherStarted := make(chan struct{})
	release := make(chan struct{})
	pool.Queue(blockingJob(started, release), blockingJob(otherStarted, release))
	require.NoError(t, pool.Start())
	<-started
	<-otherStarted

	result := make(chan WaitResult, 1)
	go func() { result <- pool.WaitTimeout(time.Second) }()
	require.Eventually(t, func() bool { return fc.WaiterCount() == 2 }, eventually, tick)
	fc.AdvanceTime(time.Second)

	assert.Equal(t, WaitTimedOut, <-result)
	assert.True(t, pool.Busy())
	close(release)
	assert.True(t, pool.Wait())
	assert.Equal(t, WaitCompleted, pool.WaitTimeout(time.Second))
}
