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

package sio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Stdio is a fairly simple Sink that writes each message as a line
// of JSON.
type Stdio struct {
	// Out receives the output.
	Out io.Writer

	// Timestamps prepends a timestamp to each output line.
	Timestamps bool

	// Tags prefixes each line with "emit".
	Tags bool

	mu sync.Mutex
}

// NewStdio creates a new Stdio that writes to out.
func NewStdio(out io.Writer) *Stdio {
	return &Stdio{
		Out: out,
	}
}

func (s *Stdio) Emit(ctx context.Context, msg interface{}) error {
	js, err := json.Marshal(&msg)
	if err != nil {
		return err
	}

	line := string(js)
	if s.Tags {
		line = "emit " + line
	}
	if s.Timestamps {
		line = time.Now().UTC().Format(time.RFC3339Nano) + " " + line
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(s.Out, line)
	return err
}

// Close does nothing.
func (s *Stdio) Close() error {
	return nil
}
