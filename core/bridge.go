/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

// AsyncCounter is an asynchronous iterator over 1..Bound.
//
// Each NextAsync call is a separate task on the Executor, and all of
// those tasks share one Counter.  Callers normally await one step
// before asking for the next.  Concurrent steps are safe, but which
// step gets which value is then up to the Executor.
type AsyncCounter struct {
	count *Counter
	exec  Executor
}

// NewAsyncCounter makes an AsyncCounter at zero that submits its
// steps to exec.  The AsyncCounter does not own exec.
func NewAsyncCounter(exec Executor) *AsyncCounter {
	return &AsyncCounter{
		count: &Counter{},
		exec:  exec,
	}
}

// AsyncIter returns the receiver, which is its own async iterator.
func (a *AsyncCounter) AsyncIter() *AsyncCounter {
	return a
}

// NextAsync starts the next step and returns a pending Future.
//
// The Future resolves with the next value or rejects with
// ErrExhausted.  Once exhausted, every later step is exhausted too.
func (a *AsyncCounter) NextAsync() *Future {
	count := a.count
	return Promise(a.exec, func() StepResult {
		return count.Step(Bound)
	})
}

// Count returns the number of values produced so far.
func (a *AsyncCounter) Count() int {
	return a.count.Load()
}
