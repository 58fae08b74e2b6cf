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
	"time"

	"github.com/jacobsa/timeutil"
)

// RealClock follows the system time. Now is delegated to timeutil so that
// the whole process agrees on a single notion of wall time.
type RealClock struct {
	wall timeutil.Clock
}

// NewRealClock returns a Clock backed by the system time.
func NewRealClock() Clock {
	return &RealClock{wall: timeutil.RealClock()}
}

func (rc *RealClock) Now() time.Time {
	if rc.wall == nil {
		return time.Now()
	}
	return rc.wall.Now()
}

// Notifies on the return channel after the specified time has passed.
func (rc *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
