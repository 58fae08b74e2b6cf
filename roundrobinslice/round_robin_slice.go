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

package roundrobinslice

import "sync"

// RoundRobin is a cursor over an immutable slice. Next scans forward from
// the cursor for the first item that satisfies a predicate, which is how the
// thread pool finds an idle worker without always favouring the first one.
type RoundRobin[T any] struct {
	mu    sync.Mutex
	items []T
	// current is the index of the element last accepted by Next. It starts at
	// len(items)-1 so the first scan begins at items[0].
	current int
}

// New creates a RoundRobin over items. The slice must not be modified
// afterwards. With an empty slice every lookup reports false.
func New[T any](items []T) *RoundRobin[T] {
	idx := -1
	if len(items) > 0 {
		idx = len(items) - 1
	}

	return &RoundRobin[T]{
		items:   items,
		current: idx,
	}
}

// Next visits at most one full rotation starting after the cursor and
// returns the first element accepted by match. The cursor only moves when an
// element is accepted.
func (rr *RoundRobin[T]) Next(match func(T) bool) (T, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	n := len(rr.items)
	for i := 1; i <= n; i++ {
		idx := (rr.current + i) % n
		if match(rr.items[idx]) {
			rr.current = idx
			return rr.items[idx], true
		}
	}

	var zero T
	return zero, false
}

// Ordered returns the elements in the order the next scan would visit them,
// without moving the cursor.
func (rr *RoundRobin[T]) Ordered() []T {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	n := len(rr.items)
	out := make([]T, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, rr.items[(rr.current+i)%n])
	}
	return out
}
