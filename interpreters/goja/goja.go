// Package goja runs scripts in a Goja runtime with native extension
// modules installed.
//
// Goja is a Go implementation of ECMAScript 5.1+.  See
// https://github.com/dop251/goja.
package goja

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Comcast/natives/core"
	"github.com/Comcast/natives/executor"
	"github.com/Comcast/natives/ext"
	"github.com/Comcast/natives/loop"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = loop.InterruptedMessage

	// Interrupted is returned by Exec if the execution is
	// interrupted.
	Interrupted = loop.Interrupted
)

// LibraryProvider resolves a library name into source code.
type LibraryProvider func(ctx context.Context, name string) (string, error)

// Interpreter compiles and runs scripts.
type Interpreter struct {

	// Testing is used to expose or hide some runtime
	// capabilities.
	Testing bool

	// LibraryProvider, if not nil, resolves the names in a
	// script's "requires".  DefaultLibraryProvider is used
	// otherwise.
	LibraryProvider LibraryProvider

	// Registry holds the modules to install as globals.  Nil
	// means ext.Standard().
	Registry *ext.Registry

	// Executor runs the modules' background work.  Nil means
	// executor.Goroutines.
	Executor core.Executor

	// Emit, if not nil, is called with each message a script
	// passes to _.out().  Emitted messages are also collected in
	// the Execution.
	Emit func(ctx context.Context, x interface{}) error

	Logger zerolog.Logger
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		Logger: zerolog.Nop(),
	}
}

// Execution is the outcome of running a script.
type Execution struct {
	// Result is the exported value the script returned (after
	// awaiting it).
	Result interface{} `json:"result,omitempty"`

	// Emitted holds the messages passed to _.out().
	Emitted []interface{} `json:"emitted,omitempty"`
}

// AddEmitted records an emitted message.
func (e *Execution) AddEmitted(x interface{}) {
	e.Emitted = append(e.Emitted, x)
}

// Rejected occurs when a script's promise is rejected or the script
// throws.
type Rejected struct {
	Reason string
}

func (e *Rejected) Error() string {
	return "script rejected: " + e.Reason
}

// ProvideLibrary resolves the library name into a library.
func (i *Interpreter) ProvideLibrary(ctx context.Context, name string) (string, error) {
	if i.LibraryProvider != nil {
		return i.LibraryProvider(ctx, name)
	}
	return DefaultLibraryProvider(ctx, name)
}

var DefaultLibraryProvider = MakeFileLibraryProvider(".")

// MakeFileLibraryProvider makes a provider that supports (barely)
// names that are URLs with protocols of "file", "http", and "https".
// There currently is no additional control when using HTTP/HTTPS.
func MakeFileLibraryProvider(dir string) LibraryProvider {
	return func(ctx context.Context, name string) (string, error) {
		parts := strings.SplitN(name, "://", 2)
		if 2 != len(parts) {
			return "", fmt.Errorf("bad link '%s'", name)
		}
		switch parts[0] {
		case "file":
			filename := filepath.Clean(parts[1])
			if strings.HasPrefix(filename, "..") {
				return "", fmt.Errorf("library '%s' outside of %s", name, dir)
			}
			bs, err := os.ReadFile(filepath.Join(dir, filename))
			if err != nil {
				return "", err
			}
			return string(bs), nil
		case "http", "https":
			req, err := http.NewRequestWithContext(ctx, "GET", name, nil)
			if err != nil {
				return "", err
			}
			client := http.Client{}
			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusOK:
				bs, err := io.ReadAll(resp.Body)
				if err != nil {
					return "", err
				}
				return string(bs), nil
			default:
				return "", fmt.Errorf("library fetch status %s %d",
					resp.Status, resp.StatusCode)
			}
		default:
			return "", fmt.Errorf("unknown protocol '%s'", parts[0])
		}
	}
}

func MakeMapLibraryProvider(srcs map[string]string) LibraryProvider {
	return func(ctx context.Context, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library '%s'", name)
		}
		return src, nil
	}
}

// MakeSchemeLibraryProvider dispatches on a name's protocol
// ("bolt://x" goes to schemes["bolt"]).  Names with other protocols
// go to fallback.
func MakeSchemeLibraryProvider(fallback LibraryProvider, schemes map[string]LibraryProvider) LibraryProvider {
	return func(ctx context.Context, name string) (string, error) {
		if i := strings.Index(name, "://"); 0 < i {
			if p, have := schemes[name[:i]]; have {
				return p(ctx, name)
			}
		}
		if fallback == nil {
			return "", fmt.Errorf("no provider for '%s'", name)
		}
		return fallback(ctx, name)
	}
}

// wrapSrc puts the script in an async function so that it can use
// await and return a value.
func wrapSrc(src string) string {
	return fmt.Sprintf("(async function() {\n%s\n}());\n", src)
}

// parseSource looks into the given map to try to find "requires" and
// "code" properties.
func parseSource(vv map[string]interface{}) (code string, libs []string, err error) {
	x := vv["code"]
	if s, is := x.(string); is {
		code = s
	} else {
		err = errors.New("bad script code")
		return
	}

	x = vv["requires"]
	switch vv := x.(type) {
	case string:
		libs = []string{vv}
	case []string:
		libs = vv
	case []interface{}:
		libs = make([]string, 0, len(vv))
		for _, x := range vv {
			switch vv := x.(type) {
			case string:
				libs = append(libs, vv)
			default:
				err = errors.New("bad library")
				return
			}
		}
	}

	return
}

// AsSource accepts a string (just code) or a map with "code" and
// "requires".  Maps with interface{} keys (as produced by some YAML
// parsers) are accepted too.
func AsSource(src interface{}) (code string, libs []string, err error) {
	switch vv := src.(type) {
	case string:
		code = vv
		return
	case map[interface{}]interface{}:
		m := make(map[string]interface{})
		for k, v := range vv {
			str, ok := k.(string)
			if !ok {
				err = fmt.Errorf("bad src key (%T)", k)
				return
			}
			m[str] = v
		}
		return parseSource(m)
	case map[string]interface{}:
		return parseSource(vv)
	default:
		err = fmt.Errorf("bad script source (%T)", src)
		return
	}
}

// Compile prepends any required libraries and calls goja.Compile.
//
// Libraries are top-level code; the script itself runs inside an
// async function.  This method can block if the interpreter's library
// provider blocks in order to obtain external libraries.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (*goja.Program, error) {
	code, libs, err := AsSource(src)
	if err != nil {
		return nil, err
	}

	code = wrapSrc(code)

	var libsSrc string
	for _, lib := range libs {
		libSrc, err := i.ProvideLibrary(ctx, lib)
		if err != nil {
			return nil, err
		}
		if libSrc, err = InlineRequires(ctx, libSrc, i.ProvideLibrary); err != nil {
			return nil, err
		}
		libsSrc += libSrc + "\n"
	}

	code = libsSrc + code

	p, err := goja.Compile("", code, true)
	if err != nil {
		return nil, errors.New(err.Error() + ": " + code)
	}

	return p, nil
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func (i *Interpreter) registry() *ext.Registry {
	if i.Registry != nil {
		return i.Registry
	}
	return ext.Standard()
}

func (i *Interpreter) executor() core.Executor {
	if i.Executor != nil {
		return i.Executor
	}
	return executor.Goroutines{}
}

// Exec runs a script to completion.
//
// Every module in the interpreter's Registry is a global (for
// example, "natives").  The following properties are available at _:
//
//    out(obj): Add the given object as a message to emit.
//    log(obj): Log the given object.
//    gensym(): generate a random string.
//    delay(ms): a promise that resolves after ms milliseconds.
//
// For testing only:
//
//    sleep(ms): block for the given number of milliseconds.
//
// The script's return value is awaited, so a script can finish
// asynchronous work before Exec returns.  If compiled is nil, src is
// compiled first.
func (i *Interpreter) Exec(ctx context.Context, src interface{}, compiled *goja.Program) (*Execution, error) {
	exe := &Execution{}

	p := compiled
	if p == nil {
		var err error
		if p, err = i.Compile(ctx, src); err != nil {
			return exe, err
		}
	}

	o := goja.New()
	l := loop.New(o)
	log := i.Logger.With().Str("component", "interpreter").Logger()

	env := map[string]interface{}{}

	if i.Testing {
		env["sleep"] = func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
	}

	env["gensym"] = func() interface{} {
		return uuid.NewString()
	}

	env["delay"] = func(ms int64) *goja.Promise {
		promise, resolve, _ := o.NewPromise()
		release := l.Hold()
		time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
			l.RunOnLoop(func(vm *goja.Runtime) {
				defer release()
				resolve(ms)
			})
		})
		return promise
	}

	// "out" adds the given message to the list of messages to
	// emit.
	env["out"] = func(x interface{}) interface{} {
		var err error

		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}

		if x, err = canonicalize(x); err != nil {
			// Will end up as a Javascript exception.
			protest(o, err.Error())
		}

		exe.AddEmitted(x)

		if i.Emit != nil {
			if err = i.Emit(ctx, x); err != nil {
				log.Warn().Err(err).Msg("emit")
			}
		}

		return x
	}

	env["log"] = func(x interface{}) interface{} {
		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}
		js, err := json.Marshal(&x)
		if err != nil {
			log.Warn().Err(err).Msg("script log (can't marshal)")
		} else {
			log.Info().RawJSON("value", js).Msg("script log")
		}

		return x
	}

	modEnv := ext.Env{
		VM:   o,
		Loop: l,
		Exec: i.executor(),
		Log:  i.Logger,
	}

	var result goja.Value
	err := l.Run(ctx, func(vm *goja.Runtime) error {
		if err := vm.Set("_", env); err != nil {
			return err
		}
		if err := i.registry().InstallAll(modEnv, vm.GlobalObject()); err != nil {
			return err
		}
		v, err := vm.RunProgram(p)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		if ex, is := err.(*goja.Exception); is {
			return exe, &Rejected{Reason: ex.Value().String()}
		}
		return exe, err
	}

	x := result.Export()
	if promise, is := x.(*goja.Promise); is {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			x = promise.Result().Export()
		case goja.PromiseStateRejected:
			return exe, &Rejected{Reason: promise.Result().String()}
		default:
			// Nothing is left that could settle it.
			return exe, &Rejected{Reason: "script never settled"}
		}
	}

	if exe.Result, err = canonicalize(x); err != nil {
		return exe, err
	}

	return exe, nil
}

// canonicalize is an abomination
func canonicalize(x interface{}) (interface{}, error) {
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, err
	}
	return y, nil
}
