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
	"context"
	"runtime/debug"
	"sync"
)

// Executor runs submitted tasks in the background.
//
// Submit should not wait for the task to run.  An error means the
// task was not accepted and will never run.
type Executor interface {
	Submit(task func()) error
}

// Future is the eventual result of a task.  It settles exactly once,
// either with a value or with an error.
type Future struct {
	done chan struct{}

	mu        sync.Mutex
	settled   bool
	value     int
	err       error
	callbacks []func(int, error)
}

func newFuture() *Future {
	return &Future{
		done: make(chan struct{}),
	}
}

// settle records the outcome and runs any callbacks.  Only the first
// call has any effect.
func (f *Future) settle(value int, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value, f.err = value, err
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(value, err)
	}
	return true
}

// Done returns a channel that is closed when the Future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the Future has settled.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the Future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-f.done:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Then arranges for fn to be called once with the outcome.
//
// If the Future has already settled, fn is called immediately on the
// calling goroutine.  Otherwise fn is called on the goroutine that
// settles the Future.  fn should not block.
func (f *Future) Then(fn func(int, error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()
	fn(value, err)
}

// Promise submits step to exec and returns a Future for its outcome.
//
// The Future resolves with the step's value, or rejects with
// ErrExhausted when the step signals exhaustion.  If exec refuses the
// task, the Future is rejected with exec's error.  If step panics, the
// Future is rejected with a *TaskPanic.
//
// Promise returns without waiting for step to run.
func Promise(exec Executor, step func() StepResult) *Future {
	f := newFuture()
	err := exec.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				f.settle(0, &TaskPanic{
					Value: r,
					Stack: debug.Stack(),
				})
			}
		}()
		if n, ok := step().Value(); ok {
			f.settle(n, nil)
		} else {
			f.settle(0, ErrExhausted)
		}
	})
	if err != nil {
		f.settle(0, err)
	}
	return f
}
