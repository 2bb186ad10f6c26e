package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Comcast/natives/ext"
	"github.com/Comcast/natives/sio"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	bs, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(bs)
}

func TestModules(t *testing.T) {
	s := New(Config{}, ext.Standard(), zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/modules")
	require.Equal(t, http.StatusOK, code)
	var names []string
	require.NoError(t, json.Unmarshal([]byte(body), &names))
	assert.Equal(t, []string{"natives"}, names)

	code, body = get(t, ts.URL+"/modules/natives")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "<title>natives</title>")

	code, body = get(t, ts.URL+"/modules/natives?format=md")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(body, "# natives"))

	code, _ = get(t, ts.URL+"/modules/natives?format=pdf")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, ts.URL+"/modules/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBroadcast(t *testing.T) {
	s := New(Config{}, ext.Standard(), zerolog.Nop())
	var _ sio.Sink = s

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Emit(context.Background(), map[string]interface{}{"value": 3}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, bs, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":3}`, string(bs))

	require.NoError(t, s.Close())
	assert.Zero(t, s.Clients())
}

func TestServeShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{MaxConns: 2}, ext.Standard(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	code, _ := get(t, "http://"+ln.Addr().String()+"/modules")
	assert.Equal(t, http.StatusOK, code)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("didn't shut down")
	}
}

func TestDropClosesOnce(t *testing.T) {
	s := New(Config{}, ext.Standard(), zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 10*time.Millisecond)

	s.mu.Lock()
	var c *client
	for c = range s.clients {
	}
	s.mu.Unlock()

	assert.True(t, s.drop(c))
	assert.False(t, s.drop(c))
	assert.Zero(t, s.Clients())

	// The handler sees the closed connection and drops again, which
	// is a no-op.
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
