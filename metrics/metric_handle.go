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
	"time"
)

// Constants for attribute Outcome
const (
	OutcomeCancelled = "cancelled"
	OutcomeContinue  = "continue"
	OutcomeFinished  = "finished"
	OutcomePanic     = "panic"
)

// MetricHandle provides an interface for recording metrics.
// The methods of this interface are called by the worker threads to record
// job scheduling metrics.
type MetricHandle interface {
	// ActiveWorkers - The number of worker goroutines currently running a control loop.
	ActiveWorkers(inc int64)

	// JobInvocationCount - The cumulative number of job invocations along with their outcome: finished, continue, cancelled or panic.
	JobInvocationCount(inc int64, outcome string)

	// JobInvocationLatency - The cumulative distribution of job invocation latencies.
	JobInvocationLatency(ctx context.Context, latency time.Duration)

	// JobsDrainedCount - The cumulative number of queued jobs discarded by a stop without being invoked.
	JobsDrainedCount(inc int64)
}
