package goja

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Comcast/natives/executor"
	. "github.com/Comcast/natives/util/testutil"
)

func exec(t *testing.T, i *Interpreter, code interface{}, timeout time.Duration) (*Execution, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	compiled, err := i.Compile(ctx, code)
	if err != nil {
		t.Fatal(err)
	}
	return i.Exec(ctx, code, compiled)
}

func TestExecSimple(t *testing.T) {
	code := `return {likes:"chips"};`

	i := NewInterpreter()
	i.Testing = true
	exe, err := exec(t, i, code, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	m, is := exe.Result.(map[string]interface{})
	if !is {
		t.Fatalf("result %#v is a %T", exe.Result, exe.Result)
	}
	if s, _ := m["likes"].(string); s != "chips" {
		t.Fatalf("didn't want \"%s\"", s)
	}
}

func TestExecNatives(t *testing.T) {
	code := `
var c = new natives.AsyncCounter();
var acc = [];
for (;;) {
  var r = await c.next();
  if (r.done) break;
  acc.push(r.value);
}
return {sum: natives.sumAsString(2, 3), values: acc, num: natives.returnMyClass().num};
`
	p := executor.New(executor.Config{Workers: 2}, zerolog.Nop())
	defer p.Stop(context.Background())

	i := NewInterpreter()
	i.Executor = p
	exe, err := exec(t, i, code, 2*time.Second)
	require.NoError(t, err)
	RequireJSON(t, `{"sum":"5","values":[1,2,3,4,5],"num":1}`, exe.Result)
}

func TestExecOut(t *testing.T) {
	code := `
for (var n of new natives.CountIter()) {
  _.out({n: n});
}
return null;
`
	var streamed []interface{}
	i := NewInterpreter()
	i.Emit = func(ctx context.Context, x interface{}) error {
		streamed = append(streamed, x)
		return nil
	}
	exe, err := exec(t, i, code, time.Second)
	require.NoError(t, err)
	require.Len(t, exe.Emitted, 5)
	assert.Equal(t, exe.Emitted, streamed)
	assert.Equal(t, `{"n":5}`, JS(exe.Emitted[4]))
	assert.Nil(t, exe.Result)
}

func TestExecEmitErrorIsLogged(t *testing.T) {
	i := NewInterpreter()
	i.Emit = func(ctx context.Context, x interface{}) error {
		return errors.New("sink down")
	}
	exe, err := exec(t, i, `_.out(1); return 2;`, time.Second)
	require.NoError(t, err)
	assert.Equal(t, float64(2), exe.Result)
}

func TestExecDelay(t *testing.T) {
	i := NewInterpreter()
	exe, err := exec(t, i, `var ms = await _.delay(5); return ms;`, time.Second)
	require.NoError(t, err)
	assert.Equal(t, float64(5), exe.Result)
}

func TestExecTimeout(t *testing.T) {
	code := `for (;;) { _.sleep(10); } return null;`

	i := NewInterpreter()
	i.Testing = true
	_, err := exec(t, i, code, 50*time.Millisecond)
	if err == nil {
		t.Fatal("didn't timeout")
	}
	msg := err.Error()
	if msg != InterruptedMessage {
		t.Fatalf("surprised by \"%s\"", msg)
	}
}

func TestExecAsyncTimeout(t *testing.T) {
	i := NewInterpreter()
	_, err := exec(t, i, `await _.delay(1000); return 1;`, 20*time.Millisecond)
	assert.Equal(t, Interrupted, err)
}

func TestExecError(t *testing.T) {
	code := `likes + tacos; return null;`

	i := NewInterpreter()
	_, err := exec(t, i, code, time.Second)
	var rejected *Rejected
	if !errors.As(err, &rejected) {
		t.Fatalf("didn't protest: %v", err)
	}
}

func TestExecThrowSync(t *testing.T) {
	// A library that throws at top level fails before the
	// script's async function runs.
	i := NewInterpreter()
	i.LibraryProvider = MakeMapLibraryProvider(map[string]string{
		"boom": `throw new Error("boom");`,
	})
	code := map[string]interface{}{
		"requires": "boom",
		"code":     `return 1;`,
	}
	_, err := exec(t, i, code, time.Second)
	var rejected *Rejected
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "boom")
}

func TestExecCronNextBad(t *testing.T) {
	code := `return {next: natives.cronNext("bad")};`

	i := NewInterpreter()
	if _, err := exec(t, i, code, time.Second); err == nil {
		t.Fatal("didn't protest")
	}
}

func TestExecUncompiled(t *testing.T) {
	i := NewInterpreter()
	exe, err := i.Exec(context.Background(), `return 1 + 1;`, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(2), exe.Result)
}

type countingExecutor struct {
	n int32
}

func (e *countingExecutor) Submit(task func()) error {
	atomic.AddInt32(&e.n, 1)
	go task()
	return nil
}

func TestExecUsesInjectedExecutor(t *testing.T) {
	code := `
var c = new natives.AsyncCounter();
while (!(await c.next()).done) {}
return c.count();
`
	e := &countingExecutor{}
	i := NewInterpreter()
	i.Executor = e
	exe, err := exec(t, i, code, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, float64(5), exe.Result)
	// Five values and one exhaustion.
	assert.Equal(t, int32(6), atomic.LoadInt32(&e.n))
}

func TestCompileError(t *testing.T) {
	i := NewInterpreter()
	i.LibraryProvider = MakeMapLibraryProvider(map[string]string{
		"foo": `
function foo() this cond won't compile { return 0; }
`,
	})
	code := map[string]interface{}{
		"requires": []interface{}{"foo"},
		"code":     `return foo();`,
	}
	if _, err := i.Compile(context.Background(), code); err == nil {
		t.Fatal("didn't protest")
	}
}

func TestRequireFile(t *testing.T) {
	code := map[string]interface{}{
		"requires": []interface{}{"file://libs/sum.js"},
		"code":     `return await sumAll(new natives.AsyncCounter());`,
	}

	i := NewInterpreter()
	exe, err := exec(t, i, code, time.Second)
	require.NoError(t, err)
	assert.Equal(t, float64(15), exe.Result)
}

func TestRequireHTTP(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `
function foo() { return "queso"; }
`)
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	code := map[string]interface{}{
		"requires": []interface{}{server.URL},
		"code":     `return {wants: foo()}`,
	}

	i := NewInterpreter()
	exe, err := exec(t, i, code, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, Dwimjs(`{"wants":"queso"}`), exe.Result)
}

func TestFileProviderRefusesParent(t *testing.T) {
	p := MakeFileLibraryProvider("libs")
	_, err := p(context.Background(), "file://../goja.go")
	assert.Error(t, err)
}

func TestSchemeLibraryProvider(t *testing.T) {
	p := MakeSchemeLibraryProvider(
		MakeMapLibraryProvider(map[string]string{"plain": "1"}),
		map[string]LibraryProvider{
			"mem": MakeMapLibraryProvider(map[string]string{"mem://x": "2"}),
		})

	ctx := context.Background()
	src, err := p(ctx, "mem://x")
	require.NoError(t, err)
	assert.Equal(t, "2", src)

	src, err = p(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, "1", src)

	_, err = MakeSchemeLibraryProvider(nil, nil)(ctx, "plain")
	assert.Error(t, err)
}

func TestAsSource(t *testing.T) {
	code, libs, err := AsSource(map[interface{}]interface{}{
		"code":     "return 1;",
		"requires": []interface{}{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "return 1;", code)
	assert.Equal(t, []string{"a", "b"}, libs)

	_, _, err = AsSource(42)
	assert.Error(t, err)

	_, _, err = AsSource(map[string]interface{}{"code": 1})
	assert.Error(t, err)
}

func BenchmarkExecAsyncCounter(b *testing.B) {
	p := executor.New(executor.Config{}, zerolog.Nop())
	defer p.Stop(context.Background())

	i := NewInterpreter()
	i.Executor = p
	ctx := context.Background()
	compiled, err := i.Compile(ctx, `var c = new natives.AsyncCounter(); while (!(await c.next()).done) {} return c.count();`)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		if _, err := i.Exec(ctx, nil, compiled); err != nil {
			b.Fatal(err)
		}
	}
}
