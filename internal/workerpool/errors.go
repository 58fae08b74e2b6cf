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
	"errors"
	"fmt"
)

// ErrWorkerBudgetExhausted is returned by Start when the process-wide worker
// budget has no room for another worker goroutine.
var ErrWorkerBudgetExhausted = errors.New("worker budget exhausted")

// JobPanicError records a panic raised by a job. The worker recovers from it,
// treats the job as finished and carries on with the queue.
type JobPanicError struct {
	ThreadID   string
	ThreadName string
	// Position is the 0-based submission index of the job on its thread.
	Position uint64
	Value    any
	Stack    []byte
}

func (e *JobPanicError) Error() string {
	return fmt.Sprintf("job %d on thread %s (%s) panicked: %v", e.Position, e.ThreadName, e.ThreadID, e.Value)
}

// Unwrap exposes the panic value when the job panicked with an error.
func (e *JobPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
