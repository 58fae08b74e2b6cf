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

// Package workerpool runs cooperatively cancellable jobs on dedicated worker
// goroutines. A Thread owns one FIFO queue and one worker; a ThreadPool
// spreads jobs over a fixed set of Threads.
package workerpool

import "sync/atomic"

// Result is the verdict a job returns after each invocation.
type Result int

const (
	// Finished removes the job from the queue. The worker moves to the next
	// one.
	Finished Result = iota
	// Continue keeps the job at the head of the queue so that it is invoked
	// again on the next iteration.
	Continue
)

func (r Result) String() string {
	switch r {
	case Finished:
		return "Finished"
	case Continue:
		return "Continue"
	}
	return "Unknown"
}

// CancellationObserver is the flag a job polls to learn that its worker has
// been asked to stop. A fresh observer is created for every run.
type CancellationObserver struct {
	cancelled atomic.Bool
}

// Cancel raises the flag. Jobs may call it themselves to end the run.
func (o *CancellationObserver) Cancel() {
	o.cancelled.Store(true)
}

func (o *CancellationObserver) Cancelled() bool {
	return o.cancelled.Load()
}

// Job is a unit of work executed by a Thread. Invoke must poll obs when it
// runs for long and return promptly once obs.Cancelled() is true.
type Job interface {
	Invoke(obs *CancellationObserver) Result
}

// JobFunc adapts an ordinary function to the Job interface.
type JobFunc func(obs *CancellationObserver) Result

func (f JobFunc) Invoke(obs *CancellationObserver) Result {
	return f(obs)
}

// Once wraps fn in a job that runs a single time.
func Once(fn func(obs *CancellationObserver)) Job {
	return JobFunc(func(obs *CancellationObserver) Result {
		fn(obs)
		return Finished
	})
}

// Repeat wraps fn in a job that runs until its worker is stopped.
func Repeat(fn func(obs *CancellationObserver)) Job {
	return JobFunc(func(obs *CancellationObserver) Result {
		fn(obs)
		return Continue
	})
}
