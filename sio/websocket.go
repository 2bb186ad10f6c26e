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
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocket is a Sink that writes each message as a JSON text frame
// to a WebSocket server.
type WebSocket struct {
	URL string

	// WriteTimeout bounds each write.  Zero means no deadline
	// beyond the context's.
	WriteTimeout time.Duration

	logger zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocket makes a WebSocket sink for the given URL.  Dial
// connects.
func NewWebSocket(u string, logger zerolog.Logger) *WebSocket {
	return &WebSocket{
		URL:          u,
		WriteTimeout: 5 * time.Second,
		logger:       logger.With().Str("component", "sio.ws").Str("url", u).Logger(),
	}
}

// Dial creates the WebSocket session.
func (c *WebSocket) Dial(ctx context.Context) error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return err
	}

	c.logger.Debug().Msg("wsconnect")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// Drain control frames so pings and closes get handled.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				c.logger.Debug().Err(err).Msg("read loop done")
				return
			}
		}
	}()

	return nil
}

func (c *WebSocket) Emit(ctx context.Context, msg interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return websocket.ErrCloseSent
	}

	deadline, have := ctx.Deadline()
	if c.WriteTimeout > 0 {
		if d := time.Now().Add(c.WriteTimeout); !have || d.Before(deadline) {
			deadline, have = d, true
		}
	}
	if have {
		c.conn.SetWriteDeadline(deadline)
	}

	return c.conn.WriteJSON(msg)
}

// Close sends a close frame and closes the connection.
func (c *WebSocket) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}
