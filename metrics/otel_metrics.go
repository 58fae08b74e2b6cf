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

package metrics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sengine/sekernel/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const logInterval = 5 * time.Minute

var (
	unrecognizedAttr                          atomic.Value
	jobInvocationCountOutcomeCancelledAttrSet = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", OutcomeCancelled)))
	jobInvocationCountOutcomeContinueAttrSet  = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", OutcomeContinue)))
	jobInvocationCountOutcomeFinishedAttrSet  = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", OutcomeFinished)))
	jobInvocationCountOutcomePanicAttrSet     = metric.WithAttributeSet(attribute.NewSet(attribute.String("outcome", OutcomePanic)))
)

type histogramRecord struct {
	ctx        context.Context
	instrument metric.Int64Histogram
	value      int64
	attributes metric.RecordOption
}

type otelMetrics struct {
	// chMu is held for reading while sending on ch and for writing while
	// closing it, so late recordings after Close are dropped instead of
	// panicking.
	chMu   sync.RWMutex
	ch     chan histogramRecord // GUARDED_BY(chMu)
	closed bool                 // GUARDED_BY(chMu)
	wg     *sync.WaitGroup
	cancel context.CancelFunc

	activeWorkersAtomic                      *atomic.Int64
	jobInvocationCountOutcomeCancelledAtomic *atomic.Int64
	jobInvocationCountOutcomeContinueAtomic  *atomic.Int64
	jobInvocationCountOutcomeFinishedAtomic  *atomic.Int64
	jobInvocationCountOutcomePanicAtomic     *atomic.Int64
	jobInvocationLatency                     metric.Int64Histogram
	jobsDrainedCountAtomic                   *atomic.Int64
}

func (o *otelMetrics) ActiveWorkers(
	inc int64) {
	o.activeWorkersAtomic.Add(inc)
}

func (o *otelMetrics) JobInvocationCount(
	inc int64, outcome string) {
	if inc < 0 {
		logger.Errorf("Counter metric workerpool/job_invocation_count received a negative increment: %d", inc)
		return
	}
	switch outcome {
	case OutcomeCancelled:
		o.jobInvocationCountOutcomeCancelledAtomic.Add(inc)
	case OutcomeContinue:
		o.jobInvocationCountOutcomeContinueAtomic.Add(inc)
	case OutcomeFinished:
		o.jobInvocationCountOutcomeFinishedAtomic.Add(inc)
	case OutcomePanic:
		o.jobInvocationCountOutcomePanicAtomic.Add(inc)
	default:
		updateUnrecognizedAttribute(outcome)
		return
	}
}

func (o *otelMetrics) JobInvocationLatency(
	ctx context.Context, latency time.Duration) {
	record := histogramRecord{ctx: ctx, instrument: o.jobInvocationLatency, value: latency.Microseconds()}

	o.chMu.RLock()
	defer o.chMu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- record: // Do nothing
	default: // Unblock writes to channel if it's full.
	}
}

func (o *otelMetrics) JobsDrainedCount(
	inc int64) {
	if inc < 0 {
		logger.Errorf("Counter metric workerpool/jobs_drained_count received a negative increment: %d", inc)
		return
	}
	o.jobsDrainedCountAtomic.Add(inc)
}

// NewOTelMetrics registers the job scheduling instruments on the global
// meter provider. Histogram records are handed to workers goroutines through
// a channel of bufferSize; records arriving while it is full are dropped.
func NewOTelMetrics(ctx context.Context, workers int, bufferSize int) (*otelMetrics, error) {
	ch := make(chan histogramRecord, bufferSize)
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	startSampledLogging(ctx)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range ch {
				if record.attributes != nil {
					record.instrument.Record(record.ctx, record.value, record.attributes)
				} else {
					record.instrument.Record(record.ctx, record.value)
				}
			}
		}()
	}
	meter := otel.Meter("sekernel")
	var activeWorkersAtomic atomic.Int64

	var jobInvocationCountOutcomeCancelledAtomic,
		jobInvocationCountOutcomeContinueAtomic,
		jobInvocationCountOutcomeFinishedAtomic,
		jobInvocationCountOutcomePanicAtomic atomic.Int64

	var jobsDrainedCountAtomic atomic.Int64

	_, err0 := meter.Int64ObservableUpDownCounter("workerpool/active_workers",
		metric.WithDescription("The number of worker goroutines currently running a control loop."),
		metric.WithUnit(""),
		metric.WithInt64Callback(func(_ context.Context, obsrv metric.Int64Observer) error {
			observeUpDownCounter(obsrv, &activeWorkersAtomic)
			return nil
		}))

	_, err1 := meter.Int64ObservableCounter("workerpool/job_invocation_count",
		metric.WithDescription("The cumulative number of job invocations along with their outcome: finished, continue, cancelled or panic."),
		metric.WithUnit(""),
		metric.WithInt64Callback(func(_ context.Context, obsrv metric.Int64Observer) error {
			conditionallyObserve(obsrv, &jobInvocationCountOutcomeCancelledAtomic, jobInvocationCountOutcomeCancelledAttrSet)
			conditionallyObserve(obsrv, &jobInvocationCountOutcomeContinueAtomic, jobInvocationCountOutcomeContinueAttrSet)
			conditionallyObserve(obsrv, &jobInvocationCountOutcomeFinishedAtomic, jobInvocationCountOutcomeFinishedAttrSet)
			conditionallyObserve(obsrv, &jobInvocationCountOutcomePanicAtomic, jobInvocationCountOutcomePanicAttrSet)
			return nil
		}))

	jobInvocationLatency, err2 := meter.Int64Histogram("workerpool/job_invocation_latency",
		metric.WithDescription("The cumulative distribution of job invocation latencies."),
		metric.WithUnit("us"),
		metric.WithExplicitBucketBoundaries(50, 100, 200, 400, 800, 1200, 2000, 5000, 10000, 20000, 50000, 100000, 200000, 500000, 1000000, 2000000, 5000000, 10000000, 50000000, 100000000, 300000000, 500000000))

	_, err3 := meter.Int64ObservableCounter("workerpool/jobs_drained_count",
		metric.WithDescription("The cumulative number of queued jobs discarded by a stop without being invoked."),
		metric.WithUnit(""),
		metric.WithInt64Callback(func(_ context.Context, obsrv metric.Int64Observer) error {
			conditionallyObserve(obsrv, &jobsDrainedCountAtomic)
			return nil
		}))

	errs := []error{err0, err1, err2, err3}
	if err := errors.Join(errs...); err != nil {
		cancel()
		close(ch)
		wg.Wait()
		return nil, err
	}

	return &otelMetrics{
		ch:                                       ch,
		wg:                                       &wg,
		cancel:                                   cancel,
		activeWorkersAtomic:                      &activeWorkersAtomic,
		jobInvocationCountOutcomeCancelledAtomic: &jobInvocationCountOutcomeCancelledAtomic,
		jobInvocationCountOutcomeContinueAtomic:  &jobInvocationCountOutcomeContinueAtomic,
		jobInvocationCountOutcomeFinishedAtomic:  &jobInvocationCountOutcomeFinishedAtomic,
		jobInvocationCountOutcomePanicAtomic:     &jobInvocationCountOutcomePanicAtomic,
		jobInvocationLatency:                     jobInvocationLatency,
		jobsDrainedCountAtomic:                   &jobsDrainedCountAtomic,
	}, nil
}

// Close flushes pending histogram records and stops the sampled logging.
// It is safe to call more than once.
func (o *otelMetrics) Close() {
	o.chMu.Lock()
	if o.closed {
		o.chMu.Unlock()
		return
	}
	o.closed = true
	close(o.ch)
	o.chMu.Unlock()

	o.wg.Wait()
	o.cancel()
}

func conditionallyObserve(obsrv metric.Int64Observer, counter *atomic.Int64, obsrvOptions ...metric.ObserveOption) {
	if val := counter.Load(); val > 0 {
		obsrv.Observe(val, obsrvOptions...)
	}
}

func observeUpDownCounter(obsrv metric.Int64Observer, counter *atomic.Int64, obsrvOptions ...metric.ObserveOption) {
	obsrv.Observe(counter.Load(), obsrvOptions...)
}

func updateUnrecognizedAttribute(newValue string) {
	unrecognizedAttr.CompareAndSwap("", newValue)
}

// startSampledLogging starts a goroutine that logs unrecognized attributes periodically.
func startSampledLogging(ctx context.Context) {
	unrecognizedAttr.Store("")

	go func() {
		ticker := time.NewTicker(logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logUnrecognizedAttribute()
			}
		}
	}()
}

// logUnrecognizedAttribute retrieves and logs any unrecognized attributes.
func logUnrecognizedAttribute() {
	// Atomically load and reset the attribute name, then generate a log
	// if an unrecognized attribute was encountered.
	if currentAttr := unrecognizedAttr.Swap("").(string); currentAttr != "" {
		logger.Tracef("Attribute %s is not declared", currentAttr)
	}
}
