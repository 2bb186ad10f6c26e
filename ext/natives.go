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
	"errors"
	"math"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"

	"github.com/Comcast/natives/core"
)

// NativesName is the name of the module returned by Natives.
const NativesName = "natives"

// StopAsyncIterationMessage is the message of the error that
// AsyncCounter.anext() rejects with once the counter is exhausted.
const StopAsyncIterationMessage = "stream exhausted"

// Natives returns the demonstration module.
//
// In a script:
//
//    natives.sumAsString(2, 3)       // "5"
//    var o = natives.returnMyClass() // o.num == 1
//    for (var n of new natives.CountIter()) { ... }
//    var c = new natives.AsyncCounter()
//    for (var r = await c.next(); !r.done; r = await c.next()) { ... }
func Natives() *Module {
	return &Module{
		Name: NativesName,
		Doc:  "Native functions, a class, and iterators implemented in Go.",
		Setup: func(env Env) error {
			if _, err := env.VM.RunString(asyncIteratorSrc); err != nil {
				return err
			}
			ctor, err := env.VM.RunString(stopAsyncIterationSrc)
			if err != nil {
				return err
			}
			return env.Module.Set("StopAsyncIteration", ctor)
		},
		Functions: []Function{
			{
				Name: "sumAsString",
				Doc:  "Formats the sum of two numbers as string.",
				Fn:   sumAsString,
			},
			{
				Name: "returnMyClass",
				Doc:  "Returns a new `MyClass` with `num` set to 1.",
				Fn: func(env Env, call goja.FunctionCall) goja.Value {
					return newMyClass(env, env.VM.NewObject(), core.NewHolder())
				},
			},
			{
				Name: "cronNext",
				Doc:  "Returns the next time (RFC3339, UTC) matching the given cron expression.",
				Fn:   cronNext,
			},
			{
				Name: "uuid",
				Doc:  "Returns a random UUID.",
				Fn: func(env Env, call goja.FunctionCall) goja.Value {
					return env.VM.ToValue(uuid.NewString())
				},
			},
		},
		Classes: []Class{
			{
				Name: "MyClass",
				Doc:  "A plain data holder with a read/write `num` property.",
				New: func(env Env, call goja.ConstructorCall) *goja.Object {
					h := core.NewHolder()
					if arg := call.Argument(0); !goja.IsUndefined(arg) {
						h.Num = toInt32(arg)
					}
					return newMyClass(env, call.This, h)
				},
			},
			{
				Name: "CountIter",
				Doc:  "An iterator that yields 1, 2, 3, 4, 5.",
				New:  newCountIter,
			},
			{
				Name: "AsyncCounter",
				Doc: "An async iterator that yields 1, 2, 3, 4, 5.\n\n" +
					"Each step runs on a background executor. `next()` resolves " +
					"`{done: true}` when the counter is exhausted; `anext()` rejects " +
					"with `StopAsyncIteration` instead.",
				New: newAsyncCounter,
			},
		},
	}
}

// asyncIteratorSrc defines Symbol.asyncIterator on runtimes that
// lack it.
const asyncIteratorSrc = `if (typeof Symbol.asyncIterator !== "symbol") {
  Object.defineProperty(Symbol, "asyncIterator", {value: Symbol("Symbol.asyncIterator")});
}`

const stopAsyncIterationSrc = `(function() {
  class StopAsyncIteration extends Error {
    constructor(message) {
      super(message);
      this.name = "StopAsyncIteration";
    }
  }
  return StopAsyncIteration;
})()`

func sumAsString(env Env, call goja.FunctionCall) goja.Value {
	a := toUint(env.VM, call.Argument(0), "a")
	b := toUint(env.VM, call.Argument(1), "b")
	return env.VM.ToValue(core.SumAsString(a, b))
}

// toUint converts v to a non-negative integer or throws a TypeError.
func toUint(vm *goja.Runtime, v goja.Value, name string) uint64 {
	switch vv := v.Export().(type) {
	case int64:
		if vv >= 0 {
			return uint64(vv)
		}
	case float64:
		if vv >= 0 && vv == math.Trunc(vv) && vv < math.MaxUint64 {
			return uint64(vv)
		}
	}
	panic(vm.NewTypeError("argument '%s' must be a non-negative integer, not %s", name, v.String()))
}

func toInt32(v goja.Value) int32 {
	return int32(v.ToInteger())
}

func cronNext(env Env, call goja.FunctionCall) goja.Value {
	expr, is := call.Argument(0).Export().(string)
	if !is {
		panic(env.VM.NewTypeError("not a string"))
	}
	c, err := cronexpr.Parse(expr)
	if err != nil {
		panic(env.VM.NewGoError(err))
	}
	return env.VM.ToValue(c.Next(time.Now()).UTC().Format(time.RFC3339Nano))
}

// newMyClass exposes h's Num as obj.num.
func newMyClass(env Env, obj *goja.Object, h *core.Holder) *goja.Object {
	vm := env.VM
	getter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(h.Num)
	})
	setter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		h.Num = toInt32(call.Argument(0))
		return goja.Undefined()
	})
	if err := obj.DefineAccessorProperty("num", getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		panic(vm.NewGoError(err))
	}
	return obj
}

func newCountIter(env Env, call goja.ConstructorCall) *goja.Object {
	vm := env.VM
	it := core.NewCountIter()
	obj := call.This

	obj.Set("next", func(call goja.FunctionCall) goja.Value {
		n, ok := it.Next()
		return iterResult(vm, n, !ok)
	})
	obj.SetSymbol(goja.SymIterator, returnThis)
	return nil
}

func newAsyncCounter(env Env, call goja.ConstructorCall) *goja.Object {
	vm := env.VM
	ac := core.NewAsyncCounter(env.Exec)
	obj := call.This

	// next follows the ECMAScript async iterator protocol:
	// exhaustion resolves {done: true}.
	obj.Set("next", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(env.Promise(ac.NextAsync(), func(vm *goja.Runtime, n int, err error, resolve, reject func(interface{})) {
			switch {
			case err == nil:
				resolve(iterResult(vm, n, false))
			case errors.Is(err, core.ErrExhausted):
				resolve(iterResult(vm, nil, true))
			default:
				reject(vm.NewGoError(err))
			}
		}))
	})

	// anext resolves with the bare value and rejects with
	// StopAsyncIteration on exhaustion.
	obj.Set("anext", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(env.Promise(ac.NextAsync(), func(vm *goja.Runtime, n int, err error, resolve, reject func(interface{})) {
			switch {
			case err == nil:
				resolve(n)
			case errors.Is(err, core.ErrExhausted):
				reject(stopAsyncIteration(env))
			default:
				reject(vm.NewGoError(err))
			}
		}))
	})

	obj.Set("count", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(ac.Count())
	})

	sym := symbol(vm, "asyncIterator")
	if sym == nil {
		panic(vm.NewTypeError("Symbol.asyncIterator is not defined"))
	}
	obj.SetSymbol(sym, returnThis)

	env.Log.Debug().Msg("AsyncCounter created")
	return nil
}

func stopAsyncIteration(env Env) goja.Value {
	ctor := env.Module.Get("StopAsyncIteration")
	e, err := env.VM.New(ctor, env.VM.ToValue(StopAsyncIterationMessage))
	if err != nil {
		env.Log.Error().Err(err).Msg("can't construct StopAsyncIteration")
		return env.VM.NewGoError(core.ErrExhausted)
	}
	return e
}
