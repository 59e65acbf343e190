// Package natsbridge mirrors a run's swarm events onto an embedded NATS
// server so external subscribers (a dashboard, another process) can watch
// a run live without going through internal/transport's HTTP/WS surface.
// Adapted from _examples/ODSapper-CLIAIMONITOR/internal/nats/server.go and
// client.go; JetStream (streams.go there) is dropped since persisted
// replay is internal/persistence's job here, not a stream's.
package natsbridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServerConfig configures the in-process NATS server.
type EmbeddedServerConfig struct {
	Port int // 0 picks an OS-assigned ephemeral port
}

// EmbeddedServer wraps a nats-server instance running in this process.
type EmbeddedServer struct {
	config  EmbeddedServerConfig
	server  *server.Server
	mu      sync.RWMutex
	running bool
}

// NewEmbeddedServer creates (but does not start) an embedded NATS server.
func NewEmbeddedServer(config EmbeddedServerConfig) (*EmbeddedServer, error) {
	return &EmbeddedServer{config: config}, nil
}

// Start starts the embedded NATS server and blocks until ready for
// connections.
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("natsbridge: server already running")
	}

	port := e.config.Port
	if port == 0 {
		// nats-server reads 0 as its default port 4222; RANDOM_PORT lets the OS choose.
		port = server.RANDOM_PORT
	}
	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("natsbridge: create server: %w", err)
	}
	e.server = ns
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("natsbridge: server not ready for connections")
	}
	e.running = true
	return nil
}

// Shutdown gracefully stops the embedded server.
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.server == nil {
		return
	}
	e.server.Shutdown()
	e.server.WaitForShutdown()
	e.running = false
}

// URL returns the connection URL for the running embedded server.
func (e *EmbeddedServer) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.server == nil {
		return ""
	}
	return e.server.ClientURL()
}

// IsRunning reports whether the embedded server is accepting connections.
func (e *EmbeddedServer) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
