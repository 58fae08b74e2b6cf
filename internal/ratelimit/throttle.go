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

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// A simple interface for limiting the rate of some event, such as queueing
// jobs on a thread pool.
//
// Safe for concurrent access.
type Throttle interface {
	// Return the maximum number of tokens that can be requested in a call to
	// Wait.
	Capacity() (c uint64)

	// Acquire the given number of tokens from the underlying token bucket, then
	// sleep until when it says to wake. If the context is cancelled before then,
	// return early with an error.
	//
	// REQUIRES: tokens <= capacity
	Wait(ctx context.Context, tokens uint64) (err error)
}

type limiter struct {
	*rate.Limiter
}

// NewThrottle returns a throttle admitting rateHz events per second on
// average with bursts of up to capacity. A non-positive rateHz never blocks.
func NewThrottle(
	rateHz float64,
	capacity int) (t Throttle) {
	limit := rate.Limit(rateHz)
	if rateHz <= 0 {
		limit = rate.Inf
	}
	typed := &limiter{rate.NewLimiter(limit, capacity)}
	t = typed
	return
}

// NewWindowedThrottle returns a throttle limiting events to rateHz averaged
// over window, with a capacity chosen by ChooseLimiterCapacity.
func NewWindowedThrottle(rateHz float64, window time.Duration) (Throttle, error) {
	capacity, err := ChooseLimiterCapacity(rateHz, window)
	if err != nil {
		return nil, fmt.Errorf("choose limiter capacity: %w", err)
	}
	return NewThrottle(rateHz, int(capacity)), nil
}

func (l *limiter) Capacity() (c uint64) {
	return uint64(l.Burst())
}

func (l *limiter) Wait(
	ctx context.Context,
	tokens uint64) (err error) {
	return l.WaitN(ctx, int(tokens))
}
