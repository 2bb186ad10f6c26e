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

package ext

import (
	"github.com/dop251/goja"

	"github.com/Comcast/natives/core"
)

// Settler turns the outcome of a native Future into a settlement of
// a host promise.  It runs on the loop goroutine.
type Settler func(vm *goja.Runtime, value int, err error, resolve, reject func(interface{}))

// Promise returns a host promise that settles when f does.
//
// The loop is held until then, and settle always runs on the loop
// goroutine, never on the goroutine that settled f.
func (env Env) Promise(f *core.Future, settle Settler) *goja.Promise {
	p, resolveFn, rejectFn := env.VM.NewPromise()
	resolve := func(x interface{}) { resolveFn(x) }
	reject := func(x interface{}) { rejectFn(x) }

	release := env.Loop.Hold()
	f.Then(func(value int, err error) {
		env.Loop.RunOnLoop(func(vm *goja.Runtime) {
			defer release()
			settle(vm, value, err, resolve, reject)
		})
	})
	return p
}

// iterResult makes an iterator result object.
func iterResult(vm *goja.Runtime, value interface{}, done bool) *goja.Object {
	o := vm.NewObject()
	if done {
		o.Set("value", goja.Undefined())
	} else {
		o.Set("value", value)
	}
	o.Set("done", done)
	return o
}

// symbol returns the well-known symbol Symbol[name], or nil if the
// runtime doesn't have it.
func symbol(vm *goja.Runtime, name string) *goja.Symbol {
	v := vm.Get("Symbol")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	s, is := v.ToObject(vm).Get(name).(*goja.Symbol)
	if !is {
		return nil
	}
	return s
}

func returnThis(call goja.FunctionCall) goja.Value {
	return call.This
}
