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

// Package core provides the native side of the natives extension
// module: plain Go values and iterators that a host script runtime
// can wrap.
//
// The interesting type is AsyncCounter.  Each call to NextAsync
// submits a unit of work to an injected Executor and returns a
// pending Future at once.  The work locks a shared Counter, advances
// it if it is still below Bound, and settles the Future with either
// the new value or ErrExhausted.  ErrExhausted is a control-flow
// signal meaning "end of sequence", not a failure.
//
// The remaining types (Holder, CountIter, SumAsString) are the
// synchronous pieces of the same module.
//
// None of this code knows about a particular script runtime.  See
// package ext for the goja bindings.
package core
