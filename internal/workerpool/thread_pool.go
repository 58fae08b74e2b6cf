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
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sengine/sekernel/internal/logger"
	"github.com/sengine/sekernel/roundrobinslice"
	"golang.org/x/sync/errgroup"
)

const defaultPoolName = "pool"

// ThreadPool owns a fixed set of Threads and broadcasts control calls to
// them. Jobs handed to a single Queue call are spread over distinct workers,
// so they may run concurrently and in any relative order.
type ThreadPool struct {
	threads []*Thread
	rr      *roundrobinslice.RoundRobin[*Thread]

	// Serializes dispatch so that concurrent Queue calls see consistent loads.
	dispatchMu sync.Mutex
}

// NewThreadPool creates size Idle threads. size <= 0 uses runtime.NumCPU().
// opts apply to every thread; the worker index is appended to the name.
func NewThreadPool(size int, opts ...Option) *ThreadPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	base := o.name
	if base == "" {
		base = defaultPoolName
	}

	threads := make([]*Thread, size)
	for i := range threads {
		threadOpts := append(append([]Option{}, opts...), WithName(fmt.Sprintf("%s-%d", base, i)))
		threads[i] = NewThread(threadOpts...)
	}
	logger.Debugf("ThreadPool %s: created %d threads", base, size)

	return &ThreadPool{
		threads: threads,
		rr:      roundrobinslice.New(threads),
	}
}

func (p *ThreadPool) Size() int {
	return len(p.threads)
}

// Threads returns the workers in index order.
func (p *ThreadPool) Threads() []*Thread {
	return append([]*Thread(nil), p.threads...)
}

// Queue hands every job to a different worker: the next idle worker after
// the round-robin cursor that this call has not used yet, else the least
// loaded one. Ties between equally loaded workers go to the cursor order.
func (p *ThreadPool) Queue(jobs ...Job) {
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()

	used := make(map[*Thread]bool, len(jobs))
	for _, j := range jobs {
		if j == nil {
			continue
		}

		t, ok := p.rr.Next(func(t *Thread) bool {
			return !used[t] && t.Count() == 0
		})
		if !ok {
			t = p.leastLoaded()
			p.rr.Next(func(c *Thread) bool { return c == t })
		}

		used[t] = true
		t.Queue(j)
	}
}

func (p *ThreadPool) leastLoaded() *Thread {
	var (
		best     *Thread
		bestLoad int
	)
	for _, t := range p.rr.Ordered() {
		if load := t.Count(); best == nil || load < bestLoad {
			best, bestLoad = t, load
		}
	}
	return best
}

// Start starts every worker. Workers that fail to start are reported in the
// joined error; the others keep running.
func (p *ThreadPool) Start() error {
	var errs []error
	for _, t := range p.threads {
		if err := t.Start(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *ThreadPool) Stop() {
	for _, t := range p.threads {
		t.Stop()
	}
}

func (p *ThreadPool) Clear() {
	for _, t := range p.threads {
		t.Clear()
	}
}

// Wait blocks until every worker has gone Idle. It returns true only if every
// worker had a run to wait for.
func (p *ThreadPool) Wait() bool {
	ok := true
	for _, t := range p.threads {
		if !t.Wait() {
			ok = false
		}
	}
	return ok
}

// WaitTimeout waits for all workers concurrently against the same deadline.
// Workers still running when it returns WaitTimedOut are left running.
func (p *ThreadPool) WaitTimeout(d time.Duration) WaitResult {
	results := make([]WaitResult, len(p.threads))

	var g errgroup.Group
	for i, t := range p.threads {
		g.Go(func() error {
			results[i] = t.WaitTimeout(d)
			return nil
		})
	}
	_ = g.Wait()

	noneQueued := true
	for _, r := range results {
		switch r {
		case WaitTimedOut:
			return WaitTimedOut
		case WaitCompleted:
			noneQueued = false
		}
	}
	if noneQueued {
		return WaitNoneQueued
	}
	return WaitCompleted
}

// Close stops every worker and joins them.
func (p *ThreadPool) Close() {
	p.Stop()
	p.Wait()
}

// Count sums the unfinished jobs of every worker.
func (p *ThreadPool) Count() int {
	n := 0
	for _, t := range p.threads {
		n += t.Count()
	}
	return n
}

// Busy reports whether any worker is inside a job invocation.
func (p *ThreadPool) Busy() bool {
	for _, t := range p.threads {
		if t.Busy() {
			return true
		}
	}
	return false
}

// Err joins the recovered job panics of every worker.
func (p *ThreadPool) Err() error {
	var errs []error
	for _, t := range p.threads {
		if err := t.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
