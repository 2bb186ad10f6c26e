package ext

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Comcast/natives/core"
	"github.com/Comcast/natives/executor"
	"github.com/Comcast/natives/loop"
)

// run installs the standard registry, evaluates src (which should
// produce a promise), runs the loop, and returns the settled value.
func run(t *testing.T, exec core.Executor, src string) (interface{}, error) {
	t.Helper()

	vm := goja.New()
	l := loop.New(vm)
	env := Env{
		VM:   vm,
		Loop: l,
		Exec: exec,
		Log:  zerolog.Nop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var p *goja.Promise
	err := l.Run(ctx, func(vm *goja.Runtime) error {
		if err := Standard().InstallAll(env, vm.GlobalObject()); err != nil {
			return err
		}
		v, err := vm.RunString(src)
		if err != nil {
			return err
		}
		var is bool
		if p, is = v.Export().(*goja.Promise); !is {
			return errors.New("script didn't return a promise")
		}
		return nil
	})
	require.NoError(t, err)

	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result().Export(), nil
	case goja.PromiseStateRejected:
		return nil, errors.New(p.Result().String())
	default:
		t.Fatal("promise still pending")
		return nil, nil
	}
}

func TestSumAsString(t *testing.T) {
	x, err := run(t, executor.Goroutines{}, `(async function() {
  return natives.sumAsString(2, 3);
})()`)
	require.NoError(t, err)
	assert.Equal(t, "5", x)
}

func TestSumAsStringTypeError(t *testing.T) {
	x, err := run(t, executor.Goroutines{}, `(async function() {
  try {
    natives.sumAsString(-1, 3);
  } catch (e) {
    return e instanceof TypeError;
  }
  return false;
})()`)
	require.NoError(t, err)
	assert.Equal(t, true, x)
}

func TestMyClass(t *testing.T) {
	x, err := run(t, executor.Goroutines{}, `(async function() {
  var a = natives.returnMyClass();
  var b = new natives.MyClass(7);
  var before = a.num;
  a.num = 11;
  return [before, a.num, b.num];
})()`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(11), int64(7)}, x)
}

func TestCountIter(t *testing.T) {
	x, err := run(t, executor.Goroutines{}, `(async function() {
  var acc = [];
  for (var n of new natives.CountIter()) {
    acc.push(n);
  }
  var it = new natives.CountIter();
  for (var i = 0; i < 5; i++) { it.next(); }
  acc.push(it.next().done, it.next().done);
  return acc;
})()`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{
		int64(1), int64(2), int64(3), int64(4), int64(5), true, true,
	}, x)
}

func TestAsyncCounterNext(t *testing.T) {
	p := executor.New(executor.Config{Workers: 4}, zerolog.Nop())
	defer p.Stop(context.Background())

	x, err := run(t, p, `(async function() {
  var c = new natives.AsyncCounter();
  var acc = [];
  for (;;) {
    var r = await c.next();
    if (r.done) break;
    acc.push(r.value);
  }
  var again = await c.next();
  acc.push(again.done, c.count());
  return acc;
})()`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{
		int64(1), int64(2), int64(3), int64(4), int64(5), true, int64(5),
	}, x)
}

func TestAsyncCounterAnext(t *testing.T) {
	x, err := run(t, executor.Goroutines{}, `(async function() {
  var c = new natives.AsyncCounter();
  var acc = [];
  for (;;) {
    try {
      acc.push(await c.anext());
    } catch (e) {
      if (!(e instanceof natives.StopAsyncIteration)) throw e;
      acc.push(e.name + ": " + e.message);
      break;
    }
  }
  try {
    await c.anext();
  } catch (e) {
    acc.push(e.name);
  }
  return acc;
})()`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{
		int64(1), int64(2), int64(3), int64(4), int64(5),
		"StopAsyncIteration: stream exhausted",
		"StopAsyncIteration",
	}, x)
}

func TestAsyncCounterIndependent(t *testing.T) {
	x, err := run(t, executor.Goroutines{}, `(async function() {
  var a = new natives.AsyncCounter();
  var b = new natives.AsyncCounter();
  var as = [];
  for (var i = 0; i < 3; i++) { as.push((await a.next()).value); }
  var bs = [(await b.next()).value];
  return [as, bs];
})()`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{
		[]interface{}{int64(1), int64(2), int64(3)},
		[]interface{}{int64(1)},
	}, x)
}

func TestAsyncCounterPending(t *testing.T) {
	x, err := run(t, executor.Goroutines{}, `(async function() {
  var c = new natives.AsyncCounter();
  var p = c.next();
  var pending = p instanceof Promise;
  var r = await p;
  return [pending, r.value];
})()`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{true, int64(1)}, x)
}

func TestAsyncCounterIsOwnIterator(t *testing.T) {
	x, err := run(t, executor.Goroutines{}, `(async function() {
  var c = new natives.AsyncCounter();
  var it = c[Symbol.asyncIterator]();
  var acc = [];
  for (var r = await it.next(); !r.done; r = await it.next()) {
    acc.push(r.value);
  }
  return [typeof Symbol.asyncIterator, it === c, acc];
})()`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{
		"symbol",
		true,
		[]interface{}{int64(1), int64(2), int64(3), int64(4), int64(5)},
	}, x)
}

func TestAsyncIteratorSymbolDefinedOnce(t *testing.T) {
	vm := goja.New()
	env := Env{VM: vm, Loop: loop.New(vm), Exec: executor.Goroutines{}, Log: zerolog.Nop()}

	_, err := Natives().Install(env)
	require.NoError(t, err)
	first := symbol(vm, "asyncIterator")
	require.NotNil(t, first)

	_, err = Natives().Install(env)
	require.NoError(t, err)
	assert.Same(t, first, symbol(vm, "asyncIterator"))
}

func TestStopAsyncIterationFallbackIsLogged(t *testing.T) {
	var buf bytes.Buffer
	vm := goja.New()
	module := vm.NewObject()
	require.NoError(t, module.Set("StopAsyncIteration", 42))
	env := Env{VM: vm, Log: zerolog.New(&buf), Module: module}

	v := stopAsyncIteration(env)
	require.NotNil(t, v)
	assert.Contains(t, v.String(), core.ErrExhausted.Error())
	assert.Contains(t, buf.String(), "can't construct StopAsyncIteration")
}

type refusing struct{}

func (refusing) Submit(func()) error {
	return errors.New("no thanks")
}

func TestAsyncCounterExecutorError(t *testing.T) {
	_, err := run(t, refusing{}, `(async function() {
  return await new natives.AsyncCounter().next();
})()`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no thanks")
}

func TestUUIDAndCron(t *testing.T) {
	x, err := run(t, executor.Goroutines{}, `(async function() {
  return [natives.uuid().length, typeof natives.cronNext("* * * * *")];
})()`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(36), "string"}, x)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Module{Name: "b"}))
	require.NoError(t, r.Register(&Module{Name: "a"}))

	err := r.Register(&Module{Name: "a"})
	var dup *DuplicateName
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "module", dup.Kind)

	names := []string{}
	for _, m := range r.List() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)

	_, have := r.Get("c")
	assert.False(t, have)
}

func TestModuleDuplicateFunction(t *testing.T) {
	m := &Module{
		Name: "dup",
		Functions: []Function{
			{Name: "f", Fn: func(env Env, call goja.FunctionCall) goja.Value { return nil }},
		},
		Classes: []Class{
			{Name: "f", New: func(env Env, call goja.ConstructorCall) *goja.Object { return nil }},
		},
	}
	vm := goja.New()
	_, err := m.Install(Env{VM: vm, Loop: loop.New(vm), Log: zerolog.Nop()})
	var dup *DuplicateName
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "class", dup.Kind)
}
