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

type queuedJob struct {
	job Job
	// position is the submission index of the job on its thread.
	position uint64
}

type jobNode struct {
	value queuedJob
	next  *jobNode
}

// jobQueue is a FIFO of pending jobs. It is not safe for concurrent use; the
// owning Thread guards it with its mutex.
type jobQueue struct {
	start, end *jobNode
	size       int
}

// push appends qj at the end of the queue.
func (q *jobQueue) push(qj queuedJob) {
	n := &jobNode{value: qj}
	if q.size == 0 {
		q.start = n
		q.end = n
	} else {
		q.end.next = n
		q.end = n
	}
	q.size++
}

// pop removes and returns the front job. ok is false when the queue is empty.
func (q *jobQueue) pop() (qj queuedJob, ok bool) {
	if q.size == 0 {
		return queuedJob{}, false
	}

	n := q.start
	if q.size == 1 {
		q.start = nil
		q.end = nil
	} else {
		q.start = q.start.next
	}
	q.size--
	return n.value, true
}

func (q *jobQueue) len() int {
	return q.size
}

// clear drops every pending job and returns how many were dropped.
func (q *jobQueue) clear() int {
	n := q.size
	q.start = nil
	q.end = nil
	q.size = 0
	return n
}
