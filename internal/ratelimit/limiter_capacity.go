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
	"fmt"
	"math"
	"time"
)

// The bucket capacity is the window's budget divided by this, which bounds
// the overshoot in any window to 2%.
const excessDivisor = 50

// ChooseLimiterCapacity returns the token bucket capacity that keeps the
// number of events in any window of the given length within a few percent
// of rateHz * window.
//
// A full bucket can be emptied at the start of a window and then refilled
// and emptied again just before every refill, so the excess is bounded by
// the capacity itself, hence rateHz * window / excessDivisor, rounded down.
// Rates and windows too small for a capacity of at least one are rejected.
func ChooseLimiterCapacity(
	rateHz float64,
	window time.Duration) (capacity uint64, err error) {
	if rateHz <= 0 || rateHz >= math.MaxFloat64 {
		err = fmt.Errorf("Illegal rate: %f", rateHz)
		return
	}

	if window <= 0 {
		err = fmt.Errorf("Illegal window: %v", window)
		return
	}

	budget := rateHz * window.Seconds()
	c := math.Floor(budget / excessDivisor)
	if c < 1 {
		err = fmt.Errorf(
			"Can't use a token bucket to limit to %f Hz over a window of %v "+
				"(result is a capacity of %f)",
			rateHz,
			window,
			c)
		return
	}

	capacity = uint64(c)
	return
}
