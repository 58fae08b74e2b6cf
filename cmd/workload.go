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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/sengine/sekernel/cfg"
	"github.com/sengine/sekernel/internal/kernel"
	"github.com/sengine/sekernel/internal/logger"
	"github.com/sengine/sekernel/internal/ratelimit"
	"github.com/sengine/sekernel/internal/util"
	"github.com/sengine/sekernel/internal/workerpool"
	"golang.org/x/sys/unix"
)

// Upper bound on how long a synthetic job sleeps before polling its
// observer again.
const sleepSlice = 5 * time.Millisecond

var (
	errJobsPanicked = errors.New("jobs panicked")
	errTimedOut     = errors.New("thread pool did not drain before the wait timeout")
	errInterrupted  = errors.New("workload interrupted")
)

// Report summarizes a workload run.
type Report struct {
	Workers     int           `yaml:"workers"`
	Jobs        int64         `yaml:"jobs"`
	Submitted   int64         `yaml:"submitted"`
	Invocations int64         `yaml:"invocations"`
	Finished    int64         `yaml:"finished"`
	Panicked    int64         `yaml:"panicked"`
	Unfinished  int64         `yaml:"unfinished"`
	Wait        string        `yaml:"wait"`
	Elapsed     time.Duration `yaml:"elapsed"`
}

type workload struct {
	config   cfg.WorkloadConfig
	throttle ratelimit.Throttle

	invocations atomic.Int64
	finished    atomic.Int64
	panicked    atomic.Int64
}

func newWorkload(c cfg.WorkloadConfig) *workload {
	throttle := ratelimit.NewThrottle(0, 1)
	if c.SubmitRate > 0 {
		var err error
		if throttle, err = ratelimit.NewWindowedThrottle(c.SubmitRate, time.Second); err != nil {
			logger.Debugf("Submit rate %v is too low for a one second window (%v), using a burst of 1", c.SubmitRate, err)
			throttle = ratelimit.NewThrottle(c.SubmitRate, 1)
		}
	}

	return &workload{config: c, throttle: throttle}
}

// job returns the index-th synthetic job. It sleeps for the job duration on
// every invocation and reports Finished after config.Repeat invocations.
func (w *workload) job(index int64) workerpool.Job {
	remaining := w.config.Repeat
	return workerpool.JobFunc(func(obs *workerpool.CancellationObserver) workerpool.Result {
		w.invocations.Add(1)
		if w.config.PanicEvery > 0 && (index+1)%w.config.PanicEvery == 0 {
			w.panicked.Add(1)
			panic(fmt.Sprintf("synthetic failure in job %d", index))
		}

		sleepCooperatively(obs, w.config.JobDuration)
		if obs.Cancelled() {
			return workerpool.Finished
		}
		if remaining--; remaining > 0 {
			return workerpool.Continue
		}
		w.finished.Add(1)
		return workerpool.Finished
	})
}

func sleepCooperatively(obs *workerpool.CancellationObserver, d time.Duration) {
	deadline := time.Now().Add(d)
	for !obs.Cancelled() {
		left := time.Until(deadline)
		if left <= 0 {
			return
		}
		time.Sleep(min(left, sleepSlice))
	}
}

// run queues the jobs at the configured rate and waits for the pool to drain.
// A pool still busy after waitTimeout is stopped. waitTimeout <= 0 waits
// forever. Cancelling ctx stops the pool and ends submission; the report then
// covers the jobs submitted so far.
func (w *workload) run(ctx context.Context, pool *workerpool.ThreadPool, waitTimeout time.Duration) (Report, error) {
	begin := time.Now()
	stopOnCancel := context.AfterFunc(ctx, pool.Stop)
	defer stopOnCancel()

	var startErr, interruptErr error
	var submitted int64
	for i := range w.config.Jobs {
		err := w.throttle.Wait(ctx, 1)
		if ctx.Err() != nil {
			err = cancellation(ctx)
		}
		if err != nil {
			interruptErr = fmt.Errorf("submit job %d: %w", i, err)
			break
		}

		// Workers go Idle once their queue is empty, so every submission
		// restarts the idle ones.
		pool.Queue(w.job(i))
		submitted++
		if err := pool.Start(); err != nil && startErr == nil {
			startErr = err
			logger.Warnf("Not every worker could be started: %v", err)
		}
		// A cancellation that raced with Start may have stopped the pool
		// before Start restarted it.
		if ctx.Err() != nil {
			pool.Stop()
		}
	}

	result := workerpool.WaitCompleted
	switch {
	case interruptErr != nil:
		pool.Stop()
		pool.Wait()
	case waitTimeout > 0:
		result = pool.WaitTimeout(waitTimeout)
	default:
		pool.Wait()
	}
	if result == workerpool.WaitTimedOut {
		logger.Warnf("Thread pool still busy after %v, stopping it", waitTimeout)
		pool.Stop()
		pool.Wait()
	}
	if interruptErr == nil && ctx.Err() != nil {
		interruptErr = fmt.Errorf("wait for jobs: %w", cancellation(ctx))
	}

	report := Report{
		Workers:     pool.Size(),
		Jobs:        w.config.Jobs,
		Submitted:   submitted,
		Invocations: w.invocations.Load(),
		Finished:    w.finished.Load(),
		Panicked:    w.panicked.Load(),
		Wait:        result.String(),
		Elapsed:     time.Since(begin),
	}
	report.Unfinished = report.Jobs - report.Finished - report.Panicked
	if interruptErr != nil {
		report.Wait = "Interrupted"
	}

	err := interruptErr
	if report.Panicked > 0 {
		err = errors.Join(err, fmt.Errorf("%w: %d of %d", errJobsPanicked, report.Panicked, report.Jobs))
	}
	if result == workerpool.WaitTimedOut {
		err = errors.Join(err, errTimedOut)
	}
	if report.Unfinished > 0 && startErr != nil {
		err = errors.Join(err, startErr)
	}
	return report, err
}

// cancellation returns ctx.Err() wrapped with the cancel cause when the
// cause says more than ctx.Err() does.
func cancellation(ctx context.Context) error {
	err := ctx.Err()
	if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
		return fmt.Errorf("%w: %w", err, cause)
	}
	return err
}

// registerTerminatingSignalHandler derives a context from parent that is
// cancelled on SIGINT or SIGTERM, with errInterrupted naming the signal as
// its cause. The returned function unregisters the handler and releases the
// context.
func registerTerminatingSignalHandler(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, unix.SIGTERM)

	go func() {
		select {
		case sig := <-signalChan:
			sigName := "SIGINT"
			if sig == unix.SIGTERM {
				sigName = "SIGTERM"
			}
			logger.Infof("Received %s, stopping the thread pool...", sigName)
			cancel(fmt.Errorf("%w by %s", errInterrupted, sigName))
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(signalChan)
		cancel(nil)
	}
}

// runWorkload initializes the kernel from c, runs the synthetic workload on
// its default pool and writes the report to out.
func runWorkload(ctx context.Context, c *cfg.Config, out io.Writer) error {
	k, err := kernel.Init(ctx, c)
	if err != nil {
		return fmt.Errorf("init kernel: %w", err)
	}
	defer k.Clean()

	if s, err := util.YAMLStringify(c); err == nil {
		logger.Debugf("Running with config:\n%s", s)
	}

	ctx, unregister := registerTerminatingSignalHandler(ctx)
	defer unregister()

	report, runErr := newWorkload(c.Workload).run(ctx, k.Pool(), c.ThreadPool.WaitTimeout)

	s, err := util.YAMLStringify(report)
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("stringify report: %w", err))
	}
	if _, err = fmt.Fprint(out, s); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}
