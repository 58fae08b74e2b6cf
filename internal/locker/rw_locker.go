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

package locker

import (
	"sync"
	"time"

	"github.com/sengine/sekernel/internal/logger"
)

type RWLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// NewRW returns a RW locker with potential capability for debugging.
//
// Note: the slow-holder report covers the writer lock only.
func NewRW(name string, check func()) RWLocker {
	var l RWLocker = &sync.RWMutex{}

	if gEnableInvariantsCheck {
		l = &rwChecker{
			locker: l,
			check:  check,
		}
	}

	if gEnableDebugMessages {
		l = &rwDebugger{
			locker: l,
			name:   name,
		}
	}

	return l
}

type rwChecker struct {
	locker RWLocker
	check  func()
}

func (c *rwChecker) Lock() {
	c.locker.Lock()
	c.check()
}

func (c *rwChecker) Unlock() {
	c.check()
	c.locker.Unlock()
}

func (c *rwChecker) RLock() {
	c.locker.RLock()
	c.check()
}

func (c *rwChecker) RUnlock() {
	c.check()
	c.locker.RUnlock()
}

// Readers are not tracked: several may hold the lock at once and keeping a
// holder per reader is not worth it for the paths that use NewRW.
type rwDebugger struct {
	locker RWLocker
	name   string
	holder string
	timer  *time.Timer
}

func (d *rwDebugger) Lock() {
	d.locker.Lock()

	d.holder = stackOfCaller()
	holder := d.holder
	d.timer = time.AfterFunc(slowHolderThreshold, func() {
		logger.Tracef("debug_mutex: Potential dead lock detected for a lock %q held by: %v\n", d.name, holder)
	})
}

func (d *rwDebugger) Unlock() {
	d.holder = ""
	d.timer.Stop()
	d.timer = nil

	d.locker.Unlock()
}

func (d *rwDebugger) RLock() {
	d.locker.RLock()
}

func (d *rwDebugger) RUnlock() {
	d.locker.RUnlock()
}
