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

// Package ext binds native Go capabilities into a goja runtime as
// extension modules.
//
// A Module is a named set of functions and classes.  Installing a
// Module builds a plain object whose properties are the module's
// functions and class constructors.  A Registry holds the modules a
// runtime should get.
//
// Natives returns the demonstration module: a string function, a
// data class, a synchronous iterator and an asynchronous iterator.
package ext

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/Comcast/natives/core"
	"github.com/Comcast/natives/loop"
)

// Env is what a module's functions and classes get to work with.
type Env struct {
	// VM is the runtime the module is installed into.
	VM *goja.Runtime

	// Loop settles promises on VM's goroutine.
	Loop *loop.Loop

	// Exec runs background work.  Modules never own it.
	Exec core.Executor

	Log zerolog.Logger

	// Module is the object being installed.  Set by Install.
	Module *goja.Object
}

// Function is a native function exposed to scripts.
type Function struct {
	Name string `json:"name" yaml:"name"`
	Doc  string `json:"doc,omitempty" yaml:"doc,omitempty"`

	Fn func(env Env, call goja.FunctionCall) goja.Value `json:"-" yaml:"-"`
}

// Class is a native class exposed to scripts.
//
// New initializes call.This (or returns a different object).
// Returning nil means call.This.
type Class struct {
	Name string `json:"name" yaml:"name"`
	Doc  string `json:"doc,omitempty" yaml:"doc,omitempty"`

	New func(env Env, call goja.ConstructorCall) *goja.Object `json:"-" yaml:"-"`
}

// Module is a named set of functions and classes.
type Module struct {
	Name      string     `json:"name" yaml:"name"`
	Doc       string     `json:"doc,omitempty" yaml:"doc,omitempty"`
	Functions []Function `json:"functions,omitempty" yaml:"functions,omitempty"`
	Classes   []Class    `json:"classes,omitempty" yaml:"classes,omitempty"`

	// Setup, if not nil, runs after the module object is created
	// and before functions and classes are added.
	Setup func(env Env) error `json:"-" yaml:"-"`
}

// Install builds the module object in env.VM.
//
// Install must run on env.VM's goroutine.
func (m *Module) Install(env Env) (*goja.Object, error) {
	vm := env.VM
	obj := vm.NewObject()
	env.Module = obj
	env.Log = env.Log.With().Str("module", m.Name).Logger()

	if m.Setup != nil {
		if err := m.Setup(env); err != nil {
			return nil, fmt.Errorf("module %s setup: %w", m.Name, err)
		}
	}

	seen := make(map[string]bool, len(m.Functions)+len(m.Classes))
	for _, f := range m.Functions {
		if seen[f.Name] {
			return nil, &DuplicateName{Kind: "function", Name: f.Name, Module: m.Name}
		}
		seen[f.Name] = true
		fn := f.Fn
		err := obj.Set(f.Name, func(call goja.FunctionCall) goja.Value {
			return fn(env, call)
		})
		if err != nil {
			return nil, err
		}
	}
	for _, c := range m.Classes {
		if seen[c.Name] {
			return nil, &DuplicateName{Kind: "class", Name: c.Name, Module: m.Name}
		}
		seen[c.Name] = true
		ctor := c.New
		err := obj.Set(c.Name, func(call goja.ConstructorCall) *goja.Object {
			return ctor(env, call)
		})
		if err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// DuplicateName occurs when two things in a Registry or Module have
// the same name.
type DuplicateName struct {
	Kind   string
	Name   string
	Module string
}

func (e *DuplicateName) Error() string {
	if e.Module == "" {
		return fmt.Sprintf(`%s "%s" already registered`, e.Kind, e.Name)
	}
	return fmt.Sprintf(`%s "%s" already defined in module "%s"`, e.Kind, e.Name, e.Module)
}

// Registry holds modules by name.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
}

// NewRegistry makes an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]*Module),
	}
}

// Standard returns a Registry with the Natives module.
func Standard() *Registry {
	r := NewRegistry()
	if err := r.Register(Natives()); err != nil {
		panic(err)
	}
	return r
}

// Register adds m.  Module names must be unique.
func (r *Registry) Register(m *Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, have := r.modules[m.Name]; have {
		return &DuplicateName{Kind: "module", Name: m.Name}
	}
	r.modules[m.Name] = m
	return nil
}

// Get returns the named module.
func (r *Registry) Get(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, have := r.modules[name]
	return m, have
}

// List returns the modules sorted by name.
func (r *Registry) List() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		acc = append(acc, m)
	}
	sort.Slice(acc, func(i, j int) bool {
		return acc[i].Name < acc[j].Name
	})
	return acc
}

// InstallAll installs every module as a property of target, which is
// usually the runtime's global object.
func (r *Registry) InstallAll(env Env, target *goja.Object) error {
	for _, m := range r.List() {
		obj, err := m.Install(env)
		if err != nil {
			return err
		}
		if err = target.Set(m.Name, obj); err != nil {
			return err
		}
	}
	return nil
}
