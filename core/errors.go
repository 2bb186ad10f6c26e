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
	"errors"
	"fmt"
)

// ErrExhausted settles a Future when a sequence has no more values.
//
// Hosts should treat this error as the end of iteration rather than
// as a fault.
var ErrExhausted = errors.New("stream exhausted")

// TaskPanic occurs when a submitted task panics.  The Future that
// the task was supposed to settle is rejected with this error.
type TaskPanic struct {
	Value interface{}
	Stack []byte
}

func (e *TaskPanic) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// IsExhausted reports whether err is (or wraps) ErrExhausted.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}
