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

import "strconv"

// SumAsString formats the sum of two numbers as string.
func SumAsString(a, b uint64) string {
	return strconv.FormatUint(a+b, 10)
}

// Holder is a plain data holder with one read/write field.
type Holder struct {
	Num int32 `json:"num"`
}

// NewHolder returns a Holder with Num set to 1.
func NewHolder() *Holder {
	return &Holder{Num: 1}
}

// CountIter is a synchronous iterator over 1..Bound.
//
// Not safe for concurrent use.
type CountIter struct {
	count int
}

// NewCountIter makes a CountIter at zero.
func NewCountIter() *CountIter {
	return &CountIter{}
}

// Iter returns the receiver, which is its own iterator.
func (c *CountIter) Iter() *CountIter {
	return c
}

// Next returns the next value.  The second result is false once the
// iterator is exhausted, and stays false.
func (c *CountIter) Next() (int, bool) {
	if c.count < Bound {
		c.count++
		return c.count, true
	}
	return 0, false
}
