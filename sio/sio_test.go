package sio

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdio(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdio(&buf)
	s.Tags = true

	ctx := context.Background()
	require.NoError(t, s.Emit(ctx, map[string]interface{}{"n": 1}))
	require.NoError(t, s.Emit(ctx, 2))
	require.NoError(t, s.Close())

	assert.Equal(t, "emit {\"n\":1}\nemit 2\n", buf.String())
}

func TestStdioUnmarshalable(t *testing.T) {
	s := NewStdio(&bytes.Buffer{})
	assert.Error(t, s.Emit(context.Background(), make(chan int)))
}

type failing struct{ closed bool }

func (f *failing) Emit(ctx context.Context, msg interface{}) error {
	return errors.New("nope")
}

func (f *failing) Close() error {
	f.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	var buf bytes.Buffer
	f := &failing{}
	m := Multi{f, NewStdio(&buf), Discard{}}

	err := m.Emit(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
	assert.Equal(t, "\"x\"\n", buf.String())

	require.NoError(t, m.Close())
	assert.True(t, f.closed)
}

func TestWebSocket(t *testing.T) {
	got := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, bs, err := conn.ReadMessage()
			if err != nil {
				return
			}
			got <- strings.TrimSpace(string(bs))
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s := NewWebSocket("ws"+strings.TrimPrefix(server.URL, "http"), zerolog.Nop())
	require.NoError(t, s.Dial(ctx))
	require.NoError(t, s.Emit(ctx, map[string]interface{}{"value": 1, "done": false}))

	select {
	case msg := <-got:
		assert.JSONEq(t, `{"value":1,"done":false}`, msg)
	case <-ctx.Done():
		t.Fatal("nothing heard")
	}

	require.NoError(t, s.Close())
	assert.Error(t, s.Emit(ctx, 2))
}

func TestMQTTOptions(t *testing.T) {
	o := MQTTOptions{ClientID: "natives-test", Port: 1884}.withDefaults()
	assert.Equal(t, "tcp://localhost", o.Broker)
	assert.Equal(t, 1884, o.Port)
	assert.Equal(t, "natives/out", o.Topic)

	opts := o.clientOptions(zerolog.Nop())
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "localhost:1884", opts.Servers[0].Host)
	assert.Equal(t, "natives-test", opts.ClientID)
}

func TestMQTTConnectFails(t *testing.T) {
	s := NewMQTT(MQTTOptions{
		Broker:  "tcp://127.0.0.1",
		Port:    1,
		Timeout: 200 * time.Millisecond,
	}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, s.Connect(ctx))
	assert.NoError(t, s.Close())
}
