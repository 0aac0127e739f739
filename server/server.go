// Package server exposes an editor over HTTP and pushes every editor event to
// WebSocket clients.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/flowcanvas/am"
	"github.com/teranos/flowcanvas/canvas/storage"
	"github.com/teranos/flowcanvas/editor"
	"github.com/teranos/flowcanvas/errors"
)

const (
	// MaxClients caps concurrent WebSocket clients
	MaxClients = 64

	// ShutdownTimeout bounds how long Stop waits for goroutines
	ShutdownTimeout = 5 * time.Second

	broadcastQueueSize = 256
	clientQueueSize    = 256
)

// Server serves one editor to HTTP and WebSocket clients
type Server struct {
	editor *editor.Editor
	graphs *storage.GraphStore // nil when no database is configured
	cfg    *am.Config
	logger *zap.SugaredLogger

	upgrader      websocket.Upgrader
	cursorLimiter *rate.Limiter // nil = unthrottled
	gestureOpen   bool          // only touched from the editor subscriber

	clients    map[*Client]bool
	mu         sync.RWMutex
	broadcast  chan interface{}
	register   chan *Client
	unregister chan *Client

	httpServer     *http.Server
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	broadcastDrops atomic.Int64
	unsubscribe    func()
	stopOnce       sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithGraphStore enables the saved-graph routes
func WithGraphStore(graphs *storage.GraphStore) Option {
	return func(s *Server) {
		s.graphs = graphs
	}
}

// WithConfig sets the server configuration (allowed origins, cursor rate)
func WithConfig(cfg *am.Config) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithLogger sets the server logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server for ed and starts its broadcast hub. Call Stop to release it.
func New(ed *editor.Editor, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		editor:     ed,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan interface{}, broadcastQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.cfg == nil {
		s.cfg = &am.Config{Server: am.ServerConfig{CursorRateHz: am.DefaultCursorRateHz}}
	}
	if hz := s.cfg.Server.CursorRateHz; hz > 0 {
		s.cursorLimiter = rate.NewLimiter(rate.Limit(hz), 1)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
	s.unsubscribe = ed.Subscribe(s.onEditorEvent)
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/health", s.cors(s.HandleHealth))
	mux.HandleFunc("/api/graph", s.cors(s.HandleGraph))                         // Current graph (GET) / clear (DELETE)
	mux.HandleFunc("/api/graph/nodes", s.cors(s.HandleNodes))                   // Instantiate (POST)
	mux.HandleFunc("/api/graph/nodes/", s.cors(s.HandleNodes))                  // Move (PUT), patch config (PATCH), delete (DELETE)
	mux.HandleFunc("/api/graph/connections", s.cors(s.HandleConnections))       // Connect (POST)
	mux.HandleFunc("/api/graph/connections/", s.cors(s.HandleConnections))      // Delete (DELETE)
	mux.HandleFunc("/api/graph/validate", s.cors(s.HandleValidate))             // Orphan report (GET)
	mux.HandleFunc("/api/graph/gesture/", s.cors(s.HandleGesture))              // begin/move/resolve/cancel (POST)
	mux.HandleFunc("/api/graph/select", s.cors(s.HandleSelect))                 // Clicks (POST)
	mux.HandleFunc("/api/graph/run", s.cors(s.HandleRun))                       // Toggle simulated run (POST)
	mux.HandleFunc("/api/graph/export", s.cors(s.HandleExport))                 // Document (GET)
	mux.HandleFunc("/api/graph/import", s.cors(s.HandleImport))                 // Document (POST)
	mux.HandleFunc("/api/templates", s.cors(s.HandleTemplates))                 // Palette (GET), custom template (POST)
	mux.HandleFunc("/api/graphs", s.cors(s.HandleSavedGraphs))                  // Saved graphs (GET)
	mux.HandleFunc("/api/graphs/", s.cors(s.HandleSavedGraphs))                 // Saved graph by name (GET/PUT/POST/DELETE)
	return mux
}

// ListenAndServe serves on port until Stop is called
func (s *Server) ListenAndServe(port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infow("Server ready", "url", fmt.Sprintf("http://localhost:%d", port), "port", port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrapf(err, "listen on port %d", port)
}

// Stop closes client connections, stops the hub and shuts down the HTTP
// server if one is running
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Infow("Initiating server shutdown")
		if s.unsubscribe != nil {
			s.unsubscribe()
		}

		s.mu.Lock()
		clients := make([]*Client, 0, len(s.clients))
		for c := range s.clients {
			clients = append(clients, c)
		}
		s.mu.Unlock()
		for _, c := range clients {
			c.conn.Close()
		}

		s.cancel()

		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			err = errors.Wrap(s.httpServer.Shutdown(ctx), "shutdown http server")
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			s.logger.Infow("All goroutines stopped cleanly")
		case <-time.After(ShutdownTimeout):
			s.logger.Warnw("Goroutine shutdown timed out", "timeout", ShutdownTimeout)
		}

		s.logger.Infow("Server shutdown complete", "broadcast_drops", s.broadcastDrops.Load())
	})
	return err
}

// ClientCount returns the number of connected WebSocket clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// run is the hub loop. It alone adds, removes and closes clients.
func (s *Server) run() {
	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			for c := range s.clients {
				delete(s.clients, c)
				c.close()
			}
			s.mu.Unlock()
			return
		case c := <-s.register:
			s.handleClientRegister(c)
		case c := <-s.unregister:
			s.handleClientUnregister(c)
		case msg := <-s.broadcast:
			s.fanOut(msg)
		}
	}
}

func (s *Server) handleClientRegister(c *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection", "client_id", c.id, "max_clients", MaxClients)
		c.close()
		return
	}
	s.clients[c] = true
	total := len(s.clients)
	s.mu.Unlock()

	// Only the hub fans out, so the snapshot taken here precedes every event
	// the client receives after it.
	c.send <- c.hello()

	s.logger.Infow("Client connected", "client_id", c.id, "total_clients", total)
}

func (s *Server) handleClientUnregister(c *Client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	total := len(s.clients)
	s.mu.Unlock()

	c.close()
	s.logger.Infow("Client disconnected", "client_id", c.id, "total_clients", total)
}

func (s *Server) fanOut(msg interface{}) {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			s.removeSlowClient(c)
		}
	}
}

// removeSlowClient drops a client whose send queue is full. Hub only.
func (s *Server) removeSlowClient(c *Client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	s.mu.Unlock()

	c.close()
	s.logger.Warnw("Client send queue full, removing client", "client_id", c.id)
}
