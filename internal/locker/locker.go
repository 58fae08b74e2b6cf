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

// Package locker provides mutexes that can optionally check an invariant on
// every lock transition and report locks that are held for too long.
package locker

import (
	"runtime"
	"sync"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/sengine/sekernel/internal/logger"
)

var (
	gEnableInvariantsCheck bool
	gEnableDebugMessages   bool
)

// slowHolderThreshold is how long a lock may be held before the debugger
// reports its holder.
const slowHolderThreshold = 5 * time.Second

// EnableInvariantsCheck makes lockers created afterwards run their check
// function on every Lock and Unlock.
func EnableInvariantsCheck() {
	gEnableInvariantsCheck = true
	syncutil.EnableInvariantChecking()
}

// EnableDebugMessages makes lockers created afterwards log the stack of any
// holder that keeps the lock for longer than slowHolderThreshold.
func EnableDebugMessages() {
	gEnableDebugMessages = true
}

// Locker is the mutex handed to the rest of the module.
type Locker interface {
	sync.Locker
}

// New returns a mutex with potential capability for invariant checking and
// debugging. check must be safe to call with the lock held.
func New(name string, check func()) Locker {
	var l Locker = &sync.Mutex{}

	if gEnableInvariantsCheck {
		m := syncutil.NewInvariantMutex(check)
		l = &m
	}

	if gEnableDebugMessages {
		l = &debugger{
			locker: l,
			name:   name,
		}
	}

	return l
}

type debugger struct {
	locker Locker
	name   string
	holder string
	timer  *time.Timer
}

func (d *debugger) Lock() {
	d.locker.Lock()

	d.holder = stackOfCaller()
	holder := d.holder
	d.timer = time.AfterFunc(slowHolderThreshold, func() {
		logger.Tracef("debug_mutex: Potential dead lock detected for a lock %q held by: %v\n", d.name, holder)
	})
}

func (d *debugger) Unlock() {
	d.holder = ""
	d.timer.Stop()
	d.timer = nil

	d.locker.Unlock()
}

func stackOfCaller() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false /* all */)
	return string(buf[:n])
}
