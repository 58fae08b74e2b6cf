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

package clock

import (
	"sync"
	"time"

	"github.com/jacobsa/timeutil"
)

type afterWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// FakeClock is a Clock whose time only moves when AdvanceTime is called.
// Channels handed out by After fire once the simulated time reaches their
// deadline.
type FakeClock struct {
	sim timeutil.SimulatedClock

	mu      sync.Mutex
	waiters []*afterWaiter // GUARDED_BY(mu)
}

func NewFakeClock(start time.Time) *FakeClock {
	fc := &FakeClock{}
	fc.sim.SetTime(start)
	return fc
}

func (fc *FakeClock) Now() time.Time {
	return fc.sim.Now()
}

func (fc *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	now := fc.sim.Now()
	if d <= 0 {
		ch <- now
		return ch
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.waiters = append(fc.waiters, &afterWaiter{deadline: now.Add(d), ch: ch})
	return ch
}

// AdvanceTime moves the simulated time forward and fires every waiter whose
// deadline has passed.
func (fc *FakeClock) AdvanceTime(d time.Duration) {
	fc.sim.AdvanceTime(d)
	now := fc.sim.Now()

	fc.mu.Lock()
	defer fc.mu.Unlock()
	pending := fc.waiters[:0]
	for _, w := range fc.waiters {
		if now.Before(w.deadline) {
			pending = append(pending, w)
			continue
		}
		w.ch <- now
	}
	fc.waiters = pending
}

// WaiterCount returns the number of After channels that have not fired yet.
func (fc *FakeClock) WaiterCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.waiters)
}
