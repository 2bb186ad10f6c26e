// Package server serves module documentation over HTTP and
// broadcasts emitted messages to WebSocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"

	"github.com/Comcast/natives/ext"
	"github.com/Comcast/natives/tools"
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address, as in ":8080".
	Addr string `yaml:"addr" json:"addr"`

	// MaxConns limits concurrent connections.  Zero means no
	// limit.
	MaxConns int `yaml:"maxConns" json:"maxConns"`

	// WriteTimeout bounds each WebSocket write.
	WriteTimeout time.Duration `yaml:"writeTimeout" json:"writeTimeout"`
}

// Server has the routes:
//
//    GET /modules          JSON list of module names
//    GET /modules/{name}   module docs (?format=html|md|yaml)
//    GET /ws               WebSocket stream of emitted messages
//
// A Server is also a sio.Sink: Emit broadcasts to every WebSocket
// client.
type Server struct {
	cfg      Config
	registry *ext.Registry
	logger   zerolog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool
}

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// New makes a Server.
func New(cfg Config, registry *ext.Registry, logger zerolog.Logger) *Server {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   logger.With().Str("component", "server").Logger(),
		clients:  make(map[*client]bool),
	}

	r := mux.NewRouter()
	r.HandleFunc("/modules", s.listModules).Methods("GET")
	r.HandleFunc("/modules/{name}", s.moduleDoc).Methods("GET")
	r.HandleFunc("/ws", s.ws).Methods("GET")
	s.router = r

	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) listModules(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	for _, m := range s.registry.List() {
		names = append(names, m.Name)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(names)
}

func (s *Server) moduleDoc(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	m, have := s.registry.Get(name)
	if !have {
		http.Error(w, "no such module", http.StatusNotFound)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		others := []string{}
		for _, o := range s.registry.List() {
			if o.Name != name {
				others = append(others, o.Name)
			}
		}
		if err := tools.RenderModulePage(m, w, nil, others); err != nil {
			s.logger.Error().Err(err).Str("module", name).Msg("render")
		}
		return
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	case "yaml", "yml":
		w.Header().Set("Content-Type", "application/yaml")
	}
	if err := tools.Render(m, format, w); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func (s *Server) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("upgrade")
		return
	}
	c := &client{conn: conn}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("ws client connected")

	// Read (and discard) until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.drop(c)
}

// drop forgets c and closes its connection.  It reports whether c
// was still connected; only the first drop closes.
func (s *Server) drop(c *client) bool {
	s.mu.Lock()
	have := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if have {
		c.conn.Close()
	}
	return have
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Emit sends msg to every WebSocket client.  Clients that can't keep
// up are dropped.
func (s *Server) Emit(ctx context.Context, msg interface{}) error {
	js, err := json.Marshal(&msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		err := c.conn.WriteMessage(websocket.TextMessage, js)
		c.mu.Unlock()
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping ws client")
			s.drop(c)
		}
	}
	return nil
}

// Close disconnects every WebSocket client.
func (s *Server) Close() error {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*client]bool)
	s.mu.Unlock()

	for c := range clients {
		c.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		c.conn.Close()
	}
	return nil
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if 0 < s.cfg.MaxConns {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.Close()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("serving")
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
