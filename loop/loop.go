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

// Package loop provides a single-goroutine event loop around a goja
// runtime.
//
// A goja.Runtime is not safe for concurrent use, so everything that
// touches it, including settling promises that background work
// created, has to happen on one goroutine.  Other goroutines hand
// work to that goroutine with RunOnLoop.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Run if its context is done
	// before the loop finishes.
	Interrupted = errors.New(InterruptedMessage)
)

// Loop queues jobs for a goja runtime and runs them on one goroutine.
//
// Jobs can be queued from any goroutine.  They run in arrival order.
type Loop struct {
	vm *goja.Runtime

	mu      sync.Mutex
	queue   []func(*goja.Runtime)
	held    int
	running bool
	wakeup  chan struct{}
}

// New makes a Loop for the given runtime.
func New(vm *goja.Runtime) *Loop {
	return &Loop{
		vm:     vm,
		wakeup: make(chan struct{}, 1),
	}
}

// VM returns the loop's runtime.  Only use it on the loop goroutine.
func (l *Loop) VM() *goja.Runtime {
	return l.vm
}

func (l *Loop) wake() {
	select {
	case l.wakeup <- struct{}{}:
	default:
	}
}

// RunOnLoop queues job to run on the loop goroutine.
//
// RunOnLoop is safe for concurrent use and does not block.  A job
// queued after Run returns will run during the next Run, if any.
func (l *Loop) RunOnLoop(job func(*goja.Runtime)) {
	l.mu.Lock()
	l.queue = append(l.queue, job)
	l.mu.Unlock()
	l.wake()
}

// Hold keeps Run from returning until the returned release function
// is called.  Use it for background work that will eventually call
// RunOnLoop.
//
// release is safe to call from any goroutine, more than once.
func (l *Loop) Hold() (release func()) {
	l.mu.Lock()
	l.held++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.held--
			l.mu.Unlock()
			l.wake()
		})
	}
}

// Pending returns the number of queued jobs and outstanding holds.
func (l *Loop) Pending() (jobs, held int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue), l.held
}

// Run calls entry on the loop goroutine (the caller's), then runs
// queued jobs until the queue is empty and nothing is held.
//
// If ctx is done first, the runtime is interrupted and Run returns
// Interrupted.  A Go panic in a job is returned as an error.
func (l *Loop) Run(ctx context.Context, entry func(*goja.Runtime) error) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("loop already running")
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ictx.Done()
		if ctx.Err() != nil {
			l.vm.Interrupt(InterruptedMessage)
		}
	}()

	if entry != nil {
		if err := l.call(func(vm *goja.Runtime) error { return entry(vm) }); err != nil {
			return l.interrupted(ctx, err)
		}
	}

	for {
		if ctx.Err() != nil {
			return Interrupted
		}

		l.mu.Lock()
		jobs := l.queue
		l.queue = nil
		held := l.held
		l.mu.Unlock()

		if len(jobs) == 0 {
			if held == 0 {
				return nil
			}
			select {
			case <-ctx.Done():
				return Interrupted
			case <-l.wakeup:
			}
			continue
		}

		for _, job := range jobs {
			job := job
			err := l.call(func(vm *goja.Runtime) error {
				job(vm)
				return nil
			})
			if err != nil {
				return l.interrupted(ctx, err)
			}
		}
	}
}

func (l *Loop) interrupted(ctx context.Context, err error) error {
	if _, is := err.(*goja.InterruptedError); is || ctx.Err() != nil {
		return Interrupted
	}
	return err
}

// call runs f and turns a panic into an error.
func (l *Loop) call(f func(*goja.Runtime) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch vv := r.(type) {
			case error:
				err = vv
			case goja.Value:
				err = fmt.Errorf("uncaught: %s", vv.String())
			default:
				err = fmt.Errorf("panic in loop job: %v", r)
			}
		}
	}()
	return f(l.vm)
}
