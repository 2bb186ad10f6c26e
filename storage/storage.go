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

// Package storage defines persistence for script libraries.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a library doesn't exist.
var ErrNotFound = errors.New("library not found")

// Storage is a persistence interface for script libraries.
type Storage interface {
	Put(ctx context.Context, name, src string) error

	Get(ctx context.Context, name string) (string, error)

	Delete(ctx context.Context, name string) error

	// List returns the library names in order.
	List(ctx context.Context) ([]string, error)

	Close() error
}
