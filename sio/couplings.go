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

// Package sio couples messages that scripts emit (via _.out()) to
// the outside world.
package sio

import (
	"context"
	"errors"
)

// Sink receives emitted messages.
//
// For example, an implementation could publish messages to an MQTT
// broker or write them to a WebSocket.
type Sink interface {
	// Emit sends one message.  Emit must be safe for concurrent
	// use.
	Emit(ctx context.Context, msg interface{}) error

	// Close releases the sink's resources.
	Close() error
}

// Multi emits each message to every sink.  All sinks are tried; the
// errors are joined.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, msg interface{}) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Emit(ctx context.Context, msg interface{}) error { return nil }

func (Discard) Close() error { return nil }
