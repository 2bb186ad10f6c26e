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

import (
	"strconv"
	"sync"
)

// Bound is the number of values a Counter will produce before it
// reports exhaustion.
const Bound = 5

// StepResult is the outcome of advancing a Counter: either a value
// or exhaustion.
type StepResult struct {
	value     int
	exhausted bool
}

// Value makes a StepResult carrying n.
func Value(n int) StepResult {
	return StepResult{value: n}
}

// Exhausted makes a StepResult that signals the end of the sequence.
func Exhausted() StepResult {
	return StepResult{exhausted: true}
}

// Value returns the step's value.  The second result is false if the
// step signaled exhaustion.
func (r StepResult) Value() (int, bool) {
	return r.value, !r.exhausted
}

// Exhausted reports whether the step signaled exhaustion.
func (r StepResult) Exhausted() bool {
	return r.exhausted
}

func (r StepResult) String() string {
	if r.exhausted {
		return "Exhausted"
	}
	return "Value(" + strconv.Itoa(r.value) + ")"
}

// Counter is a bounded counter that is safe for concurrent use.  It
// is shared by pointer between an AsyncCounter and any tasks that
// AsyncCounter has in flight.
//
// The count only increases, by one per successful Step.
type Counter struct {
	mu sync.Mutex
	n  int
}

// Step advances the counter if it is below bound.
//
// The lock is held only for the check-and-increment.
func (c *Counter) Step(bound int) StepResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n < bound {
		c.n++
		return Value(c.n)
	}
	return Exhausted()
}

// Load returns the current count.
func (c *Counter) Load() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
