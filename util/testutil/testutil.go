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

// Package testutil has small helpers for tests that compare JSON-ish
// values.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/stretchr/testify/require"
)

// JS renders its argument as JSON or as a string indicating an error.
func JS(x interface{}) string {
	bs, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// Dwimjs, when given a string or bytes, parses that data as JSON.
// A string that isn't JSON is returned as is.  When given anything
// else, just returns what's given.
//
// See https://en.wikipedia.org/wiki/DWIM.
func Dwimjs(x interface{}) interface{} {
	switch vv := x.(type) {
	case []byte:
		return Dwimjs(string(vv))
	case string:
		var v interface{}
		if err := json.Unmarshal([]byte(vv), &v); err != nil {
			return vv
		}
		return v
	default:
		return x
	}
}

// Canonical round-trips x through JSON, so Go values compare equal to
// exported script values (numbers become float64, structs become
// maps).
func Canonical(x interface{}) interface{} {
	bs, err := json.Marshal(&x)
	if err != nil {
		return x
	}
	var y interface{}
	if err = json.Unmarshal(bs, &y); err != nil {
		return x
	}
	return y
}

// RequireJSON fails the test unless got has the same JSON value as
// want.
func RequireJSON(t require.TestingT, want string, got interface{}, msgAndArgs ...interface{}) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	require.Equal(t, Dwimjs(want), Canonical(got), msgAndArgs...)
}
