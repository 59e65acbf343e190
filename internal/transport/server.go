// Package transport binds the inward API (spec's orchestrator.RunAnalysis
// and RunContext) to HTTP and WebSocket, structurally grounded on the
// reference's internal/server (gorilla/mux router construction,
// gorilla/websocket upgrade loop).
package transport

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/brandista/swarm/internal/natsbridge"
	"github.com/brandista/swarm/internal/notifications"
	"github.com/brandista/swarm/internal/orchestrator"
	"github.com/brandista/swarm/internal/persistence"
)

// Server is the HTTP/WS binding for one or more concurrent analysis runs.
type Server struct {
	addr       string
	httpServer *http.Server
	router     *mux.Router

	orch  *orchestrator.Orchestrator
	store *persistence.RunStore

	// notify, notifyMgr, and bridge are optional: nil unless Wire* is
	// called, in which case every run created through this server has them
	// attached via RunContext.SetNotifications/SetNatsBridge.
	notify    *notifications.Router
	notifyMgr *notifications.Manager
	bridge    *natsbridge.Bridge

	mu      sync.Mutex
	streams map[string]*streamHub
}

// NewServer builds a Server that drives runs through orch and, when store
// is non-nil, persists completed runs and serves their event history.
func NewServer(addr string, orch *orchestrator.Orchestrator, store *persistence.RunStore) *Server {
	s := &Server{
		addr:    addr,
		orch:    orch,
		store:   store,
		streams: make(map[string]*streamHub),
	}
	s.router = mux.NewRouter()
	s.router.Use(securityHeadersMiddleware)
	s.router.HandleFunc("/runs", s.handleCreateRun).Methods(http.MethodPost)
	s.router.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{id}", s.handleDeleteRun).Methods(http.MethodDelete)
	s.router.HandleFunc("/runs/{id}/events", s.handleListEvents).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{id}/stream", s.handleStream)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// WireNotifications attaches an external-notification router/manager to
// every run this server subsequently creates.
func (s *Server) WireNotifications(router *notifications.Router, mgr *notifications.Manager) {
	s.notify = router
	s.notifyMgr = mgr
}

// WireNatsBridge attaches a NATS bridge to every run this server
// subsequently creates.
func (s *Server) WireNatsBridge(b *natsbridge.Bridge) {
	s.bridge = b
}

// ServeHTTP makes Server usable directly with httptest.NewServer.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start begins serving in the background. It returns once the listener is
// bound so callers can read back the chosen port immediately (addr ":0").
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, err
	}
	go s.httpServer.Serve(ln)
	return ln.Addr(), nil
}

// Shutdown gracefully stops the HTTP server and drops all open streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for id, hub := range s.streams {
		hub.closeAll()
		delete(s.streams, id)
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}
