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
	"github.com/google/uuid"
	"github.com/sengine/sekernel/clock"
	"github.com/sengine/sekernel/metrics"
	"github.com/sengine/sekernel/tracing"
	"golang.org/x/sync/semaphore"
)

// Option configures a Thread or, applied to every worker, a ThreadPool.
type Option func(*options)

type options struct {
	id           string
	name         string
	clock        clock.Clock
	metricHandle metrics.MetricHandle
	traceHandle  tracing.TraceHandle
	budget       *semaphore.Weighted
}

func newOptions(opts []Option) options {
	o := options{
		id:           uuid.NewString(),
		clock:        clock.NewRealClock(),
		metricHandle: metrics.NewNoopMetrics(),
		traceHandle:  tracing.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = "thread-" + o.id[:8]
	}
	return o
}

// WithName sets the name used in logs and spans. A ThreadPool appends the
// worker index to it.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithClock sets the clock that measures WaitTimeout deadlines and job
// latencies.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithMetricHandle(h metrics.MetricHandle) Option {
	return func(o *options) {
		if h != nil {
			o.metricHandle = h
		}
	}
}

func WithTraceHandle(h tracing.TraceHandle) Option {
	return func(o *options) {
		if h != nil {
			o.traceHandle = h
		}
	}
}

// WithWorkerBudget shares a semaphore bounding the number of live worker
// goroutines. Each run holds one unit from Start until the thread is Idle.
func WithWorkerBudget(budget *semaphore.Weighted) Option {
	return func(o *options) {
		o.budget = budget
	}
}
