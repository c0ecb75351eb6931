package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rowsync/internal/schema"
)

// Config holds relay server configuration.
type Config struct {
	// Port to listen on. 0 picks a free port (tests rely on this).
	Port int

	// Seed is an optional YAML file of entities loaded into the table
	// at startup.
	Seed string

	// Watch reloads the seed file on change, broadcasting the diff.
	// Requires Seed.
	Watch bool

	// Logger for server activity. Defaults to log.Default().
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:   8787,
		Logger: log.Default(),
	}
}

// Server is the reference sync authority: it accepts one WebSocket per
// client at /ws/{client_id}, applies every inbound mutation to its
// table, and broadcasts the stamped result to all connected clients,
// including the sender. That echo is what the client's reconciler
// converges on.
type Server struct {
	config   Config
	addr     string
	listener net.Listener
	server   *http.Server
	table    *Table
	metrics  *metrics

	clients   map[string]*websocket.Conn
	clientsMu sync.RWMutex

	broadcast chan *schema.Mutation

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a relay server around an empty table.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config:    *config,
		addr:      fmt.Sprintf(":%d", config.Port),
		table:     NewTable(),
		metrics:   newMetrics(),
		clients:   make(map[string]*websocket.Conn),
		broadcast: make(chan *schema.Mutation, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start loads the seed, begins listening and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	if s.config.Seed != "" {
		seeded, err := LoadSeed(s.config.Seed)
		if err != nil {
			_ = ln.Close()
			return err
		}
		for _, e := range seeded {
			if _, err := s.table.Apply(schema.NewAdd(e)); err != nil {
				_ = ln.Close()
				return fmt.Errorf("failed to seed %s: %w", e.Name, err)
			}
		}
		s.logger.Printf("seeded %d entities from %s", len(seeded), s.config.Seed)

		if s.config.Watch {
			if err := s.watchSeed(s.config.Seed); err != nil {
				_ = ln.Close()
				return err
			}
		}
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws/{client_id}", s.handleWebSocket)
	r.HandleFunc("/db", s.handleDB).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Handler:     r,
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("relay listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down: closes every client
// connection, stops the HTTP listener and waits for the goroutines.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for id, ws := range s.clients {
		_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, id)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the listening address, resolved after Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Table exposes the authoritative table (tests and the /db handler).
func (s *Server) Table() *Table {
	return s.table
}

// handleWebSocket upgrades the connection and reads mutations from the
// client until it disconnects. A reconnect under the same client id
// replaces the previous registration.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]
	if clientID == "" {
		http.Error(w, "client id required", http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("websocket upgrade failed for %s: %v", clientID, err)
		return
	}

	s.clientsMu.Lock()
	if old, ok := s.clients[clientID]; ok {
		_ = old.Close(websocket.StatusPolicyViolation, "replaced by new connection")
	}
	s.clients[clientID] = ws
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.metrics.clients.Set(float64(count))
	s.logger.Printf("client %s connected (total: %d)", clientID, count)

	s.wg.Add(1)
	go s.readLoop(clientID, ws)
}

// readLoop applies each inbound mutation and queues the stamped result
// for broadcast. Mutations are applied one at a time per client, in
// arrival order.
func (s *Server) readLoop(clientID string, ws *websocket.Conn) {
	defer s.wg.Done()
	defer s.removeClient(clientID, ws)

	for {
		_, data, err := ws.Read(s.ctx)
		if err != nil {
			return
		}

		mut, err := schema.Decode(data)
		if err != nil {
			s.metrics.rejected.Inc()
			s.logger.Printf("rejecting payload from %s: %v", clientID, err)
			continue
		}

		stamped, err := s.table.Apply(mut)
		if err != nil {
			s.metrics.rejected.Inc()
			s.logger.Printf("rejecting %s from %s: %v", mut.Type, clientID, err)
			continue
		}

		s.metrics.mutations.WithLabelValues(string(stamped.Type)).Inc()
		s.enqueueBroadcast(stamped)
	}
}

// enqueueBroadcast hands a stamped mutation to the broadcast loop.
func (s *Server) enqueueBroadcast(mut *schema.Mutation) {
	select {
	case s.broadcast <- mut:
	case <-s.ctx.Done():
	default:
		s.logger.Printf("broadcast channel full, dropping %s %s", mut.Type, mut.Key)
	}
}

// broadcastLoop fans every queued mutation out to all connected
// clients. A failed write disconnects that client; the others still
// receive the message.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case mut := <-s.broadcast:
			data, err := json.Marshal(mut)
			if err != nil {
				s.logger.Printf("failed to marshal broadcast: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make(map[string]*websocket.Conn, len(s.clients))
			for id, ws := range s.clients {
				conns[id] = ws
			}
			s.clientsMu.RUnlock()

			for id, ws := range conns {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := ws.Write(ctx, websocket.MessageText, data)
				cancel()

				s.metrics.broadcasts.Inc()
				if err != nil {
					s.logger.Printf("failed to send to %s: %v", id, err)
					s.removeClient(id, ws)
				}
			}
		}
	}
}

// removeClient drops a client registration if it still points at ws.
func (s *Server) removeClient(clientID string, ws *websocket.Conn) {
	s.clientsMu.Lock()
	current, ok := s.clients[clientID]
	if !ok || current != ws {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, clientID)
	count := len(s.clients)
	s.clientsMu.Unlock()

	_ = ws.Close(websocket.StatusNormalClosure, "")
	s.metrics.clients.Set(float64(count))
	s.logger.Printf("client %s disconnected (total: %d)", clientID, count)
}

// handleDB returns the current table as JSON, a debugging aid.
func (s *Server) handleDB(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.table.Snapshot())
}

// handleHealthz reports liveness and the connected-client count.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
		"version": s.table.Version(),
	})
}
